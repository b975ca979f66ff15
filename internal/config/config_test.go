package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Router.SubmitTimeout)
	assert.Equal(t, 1024, cfg.Router.UpdateQueueSize)
	assert.True(t, cfg.Scorer.AdaptiveWeights)
	assert.Equal(t, 0.5, cfg.Scorer.DefaultScore)
	assert.True(t, cfg.Scorer.BaseQuantity.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 0.9, cfg.Stats.DecayFactor)
	assert.Equal(t, 10, cfg.Algo.TwapSlices)
	assert.Equal(t, "sor:venue_stats", cfg.Stats.SnapshotKey)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
router:
  submit_timeout: 3s
  cancel_timeout: 5s
  update_queue_size: 256
scorer:
  adaptive_weights: false
  recalc_interval: 30s
  base_quantity: "2.5"
algo:
  twap_slices: 4
  twap_interval: 15s
  iceberg_clip: 0.1
venues:
  binance:
    adapter: binance
    taker_fee_bps: 10
    test_net: true
    symbols:
      - BTCUSDT
      - ETHUSDT
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3*time.Second, cfg.Router.SubmitTimeout)
	assert.Equal(t, 256, cfg.Router.UpdateQueueSize)
	assert.False(t, cfg.Scorer.AdaptiveWeights)
	assert.Equal(t, 30*time.Second, cfg.Scorer.RecalcInterval)
	assert.True(t, cfg.Scorer.BaseQuantity.Equal(decimal.NewFromFloat(2.5)))
	assert.Equal(t, 4, cfg.Algo.TwapSlices)
	assert.True(t, cfg.Algo.IcebergClip.Equal(decimal.NewFromFloat(0.1)))

	require.Contains(t, cfg.Venues, "binance")
	venue := cfg.Venues["binance"]
	assert.Equal(t, "binance", venue.Adapter)
	assert.True(t, venue.TestNet)
	assert.Equal(t, 10.0, venue.TakerFeeBps)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, venue.Symbols)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
