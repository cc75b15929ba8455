package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"synthmint/native/synth"
)

// Feed kinds accepted in asset configuration.
const (
	FeedKindManual = "manual"
	FeedKindHTTP   = "http"
)

// Config is the daemon configuration persisted as TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	Synthetic string       `toml:"Synthetic"`
	Engine    synth.Config `toml:"engine"`
	Assets    []Asset      `toml:"asset"`
}

// Asset declares one collateral asset and its price feed.
type Asset struct {
	Symbol      string `toml:"Symbol"`
	Feed        string `toml:"Feed"`
	FeedURL     string `toml:"FeedURL"`
	ManualPrice string `toml:"ManualPrice"`
}

// Load reads the configuration at path, creating a default file when none
// exists yet. The returned config always passes Validate.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./synthmint-data"
	}
	if strings.TrimSpace(c.Synthetic) == "" {
		c.Synthetic = "sUSD"
	}
	c.Engine = c.Engine.Normalise()
}

// Validate checks asset declarations for completeness and duplicates.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one collateral asset is required")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		symbol := strings.TrimSpace(asset.Symbol)
		if symbol == "" {
			return fmt.Errorf("config: asset %d is missing a symbol", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate asset symbol %q", symbol)
		}
		seen[symbol] = struct{}{}
		switch asset.Feed {
		case FeedKindManual:
			if strings.TrimSpace(asset.ManualPrice) == "" {
				return fmt.Errorf("config: asset %q uses a manual feed but sets no ManualPrice", symbol)
			}
		case FeedKindHTTP:
			if strings.TrimSpace(asset.FeedURL) == "" {
				return fmt.Errorf("config: asset %q uses an http feed but sets no FeedURL", symbol)
			}
		default:
			return fmt.Errorf("config: asset %q has unknown feed kind %q", symbol, asset.Feed)
		}
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./synthmint-data",
		Synthetic:     "sUSD",
		Assets: []Asset{
			{Symbol: "WETH", Feed: FeedKindManual, ManualPrice: "2000"},
			{Symbol: "WBTC", Feed: FeedKindManual, ManualPrice: "30000"},
		},
	}
	cfg.Engine = cfg.Engine.Normalise()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
