package algo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/internal/routing"
	"github.com/mExOms/sor/pkg/types"
)

func testOrder(qty int64) *types.SmartOrder {
	return &types.SmartOrder{
		ID:       "order-1",
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: decimal.NewFromInt(qty),
		Price:    decimal.NewFromInt(100),
	}
}

func singleAllocation(qty int64) []routing.VenueAllocation {
	return []routing.VenueAllocation{
		{Venue: "binance", Quantity: decimal.NewFromInt(qty)},
	}
}

func drain(t *testing.T, a Algorithm) []*Slice {
	t.Helper()
	var slices []*Slice
	for i := 0; i < 100; i++ {
		slice, err := a.NextSlice(context.Background())
		require.NoError(t, err)
		if slice == nil {
			return slices
		}
		slices = append(slices, slice)
	}
	t.Fatal("algorithm never exhausted")
	return nil
}

func TestRegistry_UnknownAlgorithm(t *testing.T) {
	registry := NewRegistry(config.AlgoConfig{})

	_, err := registry.New("vwap")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestRegistry_FreshInstancePerOrder(t *testing.T) {
	registry := NewRegistry(config.AlgoConfig{})

	first, err := registry.New(NameBestVenue)
	require.NoError(t, err)
	second, err := registry.New(NameBestVenue)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestBestVenue_SingleFullSlice(t *testing.T) {
	a, err := NewRegistry(config.AlgoConfig{}).New(NameBestVenue)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(testOrder(10), singleAllocation(10)))

	slices := drain(t, a)
	require.Len(t, slices, 1)
	assert.Equal(t, "binance", slices[0].Venue)
	assert.True(t, slices[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, types.OrderTypeLimit, slices[0].OrderType)
}

func TestSplit_OneSlicePerAllocation(t *testing.T) {
	a, err := NewRegistry(config.AlgoConfig{}).New(NameSplit)
	require.NoError(t, err)

	allocations := []routing.VenueAllocation{
		{Venue: "binance", Quantity: decimal.NewFromInt(6)},
		{Venue: "okx", Quantity: decimal.NewFromInt(4)},
	}
	require.NoError(t, a.Initialize(testOrder(10), allocations))

	slices := drain(t, a)
	require.Len(t, slices, 2)
	assert.Equal(t, "binance", slices[0].Venue)
	assert.True(t, slices[0].Quantity.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, "okx", slices[1].Venue)
	assert.True(t, slices[1].Quantity.Equal(decimal.NewFromInt(4)))
}

func TestSplit_ClampsToOrderQuantity(t *testing.T) {
	a, err := NewRegistry(config.AlgoConfig{}).New(NameSplit)
	require.NoError(t, err)

	// allocations oversubscribe the order; emitted total must not
	allocations := []routing.VenueAllocation{
		{Venue: "binance", Quantity: decimal.NewFromInt(8)},
		{Venue: "okx", Quantity: decimal.NewFromInt(8)},
	}
	require.NoError(t, a.Initialize(testOrder(10), allocations))

	slices := drain(t, a)
	total := decimal.Zero
	for _, s := range slices {
		total = total.Add(s.Quantity)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10)))
}

func TestTWAP_EqualSlicesWithRemainder(t *testing.T) {
	cfg := config.AlgoConfig{TwapSlices: 3, TwapInterval: time.Minute}
	a, err := NewRegistry(cfg).New(NameTWAP)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(testOrder(10), singleAllocation(10)))

	slices := drain(t, a)
	require.Len(t, slices, 3)

	total := decimal.Zero
	for _, s := range slices {
		total = total.Add(s.Quantity)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, time.Minute, a.NextEvaluationTime())
}

func TestIceberg_FixedClips(t *testing.T) {
	cfg := config.AlgoConfig{IcebergClip: decimal.NewFromInt(3)}
	a, err := NewRegistry(cfg).New(NameIceberg)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(testOrder(10), singleAllocation(10)))

	slices := drain(t, a)
	// 3 + 3 + 3 + 1
	require.Len(t, slices, 4)
	assert.True(t, slices[0].Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, slices[3].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestIceberg_DefaultClipIsTenth(t *testing.T) {
	a, err := NewRegistry(config.AlgoConfig{}).New(NameIceberg)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(testOrder(100), singleAllocation(100)))

	slice, err := a.NextSlice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slice)
	assert.True(t, slice.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestReclaim_FailedSliceIsReEmitted(t *testing.T) {
	a, err := NewRegistry(config.AlgoConfig{}).New(NameBestVenue)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(testOrder(10), singleAllocation(10)))

	slice, err := a.NextSlice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slice)

	a.Reclaim(slice)

	retry, err := a.NextSlice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, slice.Venue, retry.Venue)
	assert.True(t, retry.Quantity.Equal(slice.Quantity))

	// once the retry is out the algorithm is exhausted again
	assert.Empty(t, drain(t, a))
}

func TestReclaim_TWAPDoesNotOversizeTotal(t *testing.T) {
	cfg := config.AlgoConfig{TwapSlices: 3, TwapInterval: time.Minute}
	a, err := NewRegistry(cfg).New(NameTWAP)
	require.NoError(t, err)
	require.NoError(t, a.Initialize(testOrder(10), singleAllocation(10)))

	first, err := a.NextSlice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	a.Reclaim(first)

	total := decimal.Zero
	for _, s := range drain(t, a) {
		total = total.Add(s.Quantity)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10)))
}

func TestInitialize_RequiresAllocations(t *testing.T) {
	a, err := NewRegistry(config.AlgoConfig{}).New(NameBestVenue)
	require.NoError(t, err)
	assert.Error(t, a.Initialize(testOrder(10), nil))
}
