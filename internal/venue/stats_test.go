package venue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatsStore_RecordExecution(t *testing.T) {
	store := NewStatsStore(0.9, 1e-9)

	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(2), 100*time.Millisecond, 0.001, true)
	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(3), 300*time.Millisecond, 0.003, true)

	st, ok := store.Get("binance", "BTCUSDT")
	assert.True(t, ok)
	assert.True(t, st.TotalVolume.Equal(decimal.NewFromInt(5)))
	// (100 + 300) / 2 = 200ms
	assert.Equal(t, 200*time.Millisecond, st.AverageResponseTime)
	assert.InDelta(t, 0.002, st.AverageSlippage, 1e-9)
	assert.Equal(t, 1.0, st.SuccessRate)
}

func TestStatsStore_SuccessRate(t *testing.T) {
	store := NewStatsStore(0.9, 1e-9)

	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(1), time.Millisecond, 0, true)
	store.RecordExecution("binance", "BTCUSDT", decimal.Zero, time.Millisecond, 0, false)
	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(1), time.Millisecond, 0, true)
	store.RecordExecution("binance", "BTCUSDT", decimal.Zero, time.Millisecond, 0, false)

	st, _ := store.Get("binance", "BTCUSDT")
	// 2 errors out of 4 executions
	assert.InDelta(t, 0.5, st.SuccessRate, 1e-9)
}

func TestStatsStore_Decay(t *testing.T) {
	store := NewStatsStore(0.5, 1e-9)

	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(8), time.Millisecond, 0, true)
	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(8), time.Millisecond, 0, true)

	store.Decay()

	st, ok := store.Get("binance", "BTCUSDT")
	assert.True(t, ok)
	assert.True(t, st.TotalVolume.Equal(decimal.NewFromInt(8)))
	assert.InDelta(t, 1.0, st.RecentExecutions, 1e-9)
}

func TestStatsStore_DecayPrunesIdlePairs(t *testing.T) {
	store := NewStatsStore(0.5, 1e-9)

	store.RecordExecution("binance", "BTCUSDT", decimal.Zero, time.Millisecond, 0, false)

	// one failed execution: count 1 decays to 0.5, volume stays zero
	store.Decay()

	_, ok := store.Get("binance", "BTCUSDT")
	assert.False(t, ok)
}

func TestStatsStore_SymbolStats(t *testing.T) {
	store := NewStatsStore(0.9, 1e-9)

	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(1), time.Millisecond, 0, true)
	store.RecordExecution("okx", "BTCUSDT", decimal.NewFromInt(2), time.Millisecond, 0, true)
	store.RecordExecution("binance", "ETHUSDT", decimal.NewFromInt(3), time.Millisecond, 0, true)

	stats := store.SymbolStats("BTCUSDT")
	assert.Len(t, stats, 2)
	assert.True(t, stats["binance"].TotalVolume.Equal(decimal.NewFromInt(1)))
	assert.True(t, stats["okx"].TotalVolume.Equal(decimal.NewFromInt(2)))

	symbols := store.SymbolsForVenue("binance")
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
}

func TestStatsStore_SnapshotRestore(t *testing.T) {
	store := NewStatsStore(0.9, 1e-9)
	store.RecordExecution("binance", "BTCUSDT", decimal.NewFromInt(5), 50*time.Millisecond, 0.001, true)

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 1)

	restored := NewStatsStore(0.9, 1e-9)
	restored.Restore(snapshot)

	st, ok := restored.Get("binance", "BTCUSDT")
	assert.True(t, ok)
	assert.True(t, st.TotalVolume.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 50*time.Millisecond, st.AverageResponseTime)
}
