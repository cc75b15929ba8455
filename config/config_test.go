package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthmint.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, "sUSD", cfg.Synthetic)
	require.Len(t, cfg.Assets, 2)
	require.EqualValues(t, 5000, cfg.Engine.LiquidationThresholdBps)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	// Loading the freshly written file round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Assets, again.Assets)
}

func TestLoadParsesAssets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthmint.toml")
	raw := `
ListenAddress = ":9090"
Synthetic = "sEUR"

[engine]
LiquidationThresholdBps = 6000

[[asset]]
Symbol = "WETH"
Feed = "http"
FeedURL = "http://oracle.internal/weth"

[[asset]]
Symbol = "WBTC"
Feed = "manual"
ManualPrice = "30000"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, "sEUR", cfg.Synthetic)
	require.EqualValues(t, 6000, cfg.Engine.LiquidationThresholdBps)
	require.EqualValues(t, 1000, cfg.Engine.LiquidationBonusBps, "unset fields take defaults")
	require.Equal(t, "http://oracle.internal/weth", cfg.Assets[0].FeedURL)
}

func TestLoadRejectsInvalidAssets(t *testing.T) {
	cases := map[string]string{
		"no assets": `
ListenAddress = ":8080"
`,
		"duplicate symbol": `
[[asset]]
Symbol = "WETH"
Feed = "manual"
ManualPrice = "2000"

[[asset]]
Symbol = "WETH"
Feed = "manual"
ManualPrice = "2100"
`,
		"http without url": `
[[asset]]
Symbol = "WETH"
Feed = "http"
`,
		"unknown feed kind": `
[[asset]]
Symbol = "WETH"
Feed = "chainlink"
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "synthmint.toml")
			require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
