package synth

import "time"

// Config captures the runtime configuration for the native synth module.
type Config struct {
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
	CloseFactorBps          uint64 `toml:"CloseFactorBps"`
	MaxQuoteAgeSeconds      int64  `toml:"MaxQuoteAgeSeconds"`
}

// Normalise applies defaults to unset or out-of-range configuration values.
func (c Config) Normalise() Config {
	cfg := c
	if cfg.LiquidationThresholdBps == 0 || cfg.LiquidationThresholdBps > 10_000 {
		cfg.LiquidationThresholdBps = 5_000
	}
	if cfg.LiquidationBonusBps == 0 {
		cfg.LiquidationBonusBps = 1_000
	}
	if cfg.CloseFactorBps == 0 || cfg.CloseFactorBps > 10_000 {
		cfg.CloseFactorBps = 5_000
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = 3 * 60 * 60
	}
	return cfg
}

// RiskParameters converts the normalised configuration into the engine's risk
// parameter set.
func (c Config) RiskParameters() RiskParameters {
	cfg := c.Normalise()
	return RiskParameters{
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationBonusBps:     cfg.LiquidationBonusBps,
		CloseFactorBps:          cfg.CloseFactorBps,
		MaxQuoteAge:             time.Duration(cfg.MaxQuoteAgeSeconds) * time.Second,
	}
}
