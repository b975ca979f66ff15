package routing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/internal/venue"
	"github.com/mExOms/sor/pkg/types"
)

type fakeBooks struct {
	venues map[string][]string
	books  map[string]*types.OrderBook
}

func (f *fakeBooks) CachedBook(venueID, symbol string) (*types.OrderBook, bool) {
	book, ok := f.books[venueID+":"+symbol]
	return book, ok
}

func (f *fakeBooks) VenuesForSymbol(symbol string) []string {
	return f.venues[symbol]
}

func newTestResolver(t *testing.T) (*Resolver, *venue.Registry, *venue.StatsStore) {
	t.Helper()

	registry := venue.NewRegistry()
	registry.Register("binance", nil, 10)
	registry.Register("okx", nil, 10)
	registry.Register("bybit", nil, 10)

	books := &fakeBooks{
		venues: map[string][]string{
			"BTCUSDT": {"binance", "okx", "bybit"},
		},
		books: map[string]*types.OrderBook{},
	}

	stats := venue.NewStatsStore(0.9, 1e-9)
	scorer := venue.NewScorer(registry, stats, books, config.ScorerConfig{
		DefaultSpreadPct: 0.001,
		DefaultScore:     0.5,
		BaseQuantity:     decimal.NewFromInt(1),
	})

	return NewResolver(registry, scorer, books), registry, stats
}

func marketOrder(symbol string, qty int64) *types.SmartOrder {
	return &types.SmartOrder{
		ID:       "order-1",
		ClientID: "client-1",
		Symbol:   symbol,
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: decimal.NewFromInt(qty),
	}
}

func TestSelectVenues_NoVenuesForSymbol(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	_, err := resolver.SelectVenues(marketOrder("DOGEUSDT", 1))
	assert.ErrorIs(t, err, ErrNoVenuesAvailable)
}

func TestSelectVenues_CustomSplit(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	order := marketOrder("BTCUSDT", 10)
	order.RoutingInstructions = []types.RoutingInstruction{
		{Venue: "binance", Percentage: 60},
		{Venue: "okx", Percentage: 40},
	}

	allocations, err := resolver.SelectVenues(order)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	assert.Equal(t, "binance", allocations[0].Venue)
	assert.True(t, allocations[0].Quantity.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, "okx", allocations[1].Venue)
	assert.True(t, allocations[1].Quantity.Equal(decimal.NewFromInt(4)))
}

func TestSelectVenues_CustomSplitBadSum(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	for _, percentages := range [][]float64{{60, 39}, {60, 41}, {100, 1}} {
		order := marketOrder("BTCUSDT", 10)
		order.RoutingInstructions = []types.RoutingInstruction{
			{Venue: "binance", Percentage: percentages[0]},
			{Venue: "okx", Percentage: percentages[1]},
		}
		_, err := resolver.SelectVenues(order)
		assert.ErrorIs(t, err, ErrInvalidRouting)
	}
}

func TestSelectVenues_CustomSplitWithinTolerance(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	order := marketOrder("BTCUSDT", 10)
	order.RoutingInstructions = []types.RoutingInstruction{
		{Venue: "binance", Percentage: 59.9996},
		{Venue: "okx", Percentage: 40.0003},
	}

	_, err := resolver.SelectVenues(order)
	assert.NoError(t, err)
}

func TestSelectVenues_CustomSplitUnknownVenue(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	order := marketOrder("BTCUSDT", 10)
	order.RoutingInstructions = []types.RoutingInstruction{
		{Venue: "kraken", Percentage: 100},
	}

	_, err := resolver.SelectVenues(order)
	assert.ErrorIs(t, err, ErrNoVenuesAvailable)
}

func TestSelectVenues_RankedIsDeterministic(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	// no stats and no books: every venue scores the same, so ties must
	// keep registration order
	first, err := resolver.SelectVenues(marketOrder("BTCUSDT", 1))
	require.NoError(t, err)
	second, err := resolver.SelectVenues(marketOrder("BTCUSDT", 1))
	require.NoError(t, err)

	require.Len(t, first, 3)
	assert.Equal(t, "binance", first[0].Venue)
	assert.Equal(t, "okx", first[1].Venue)
	assert.Equal(t, "bybit", first[2].Venue)
	for i := range first {
		assert.Equal(t, first[i].Venue, second[i].Venue)
	}
}

func TestSelectVenues_RankedPrefersReliableVenue(t *testing.T) {
	resolver, _, stats := newTestResolver(t)

	for i := 0; i < 10; i++ {
		stats.RecordExecution("okx", "BTCUSDT", decimal.NewFromInt(1), time.Millisecond, 0, true)
		stats.RecordExecution("binance", "BTCUSDT", decimal.Zero, time.Millisecond, 0, false)
	}

	allocations, err := resolver.SelectVenues(marketOrder("BTCUSDT", 1))
	require.NoError(t, err)
	assert.Equal(t, "okx", allocations[0].Venue)
}

func TestSelectVenues_ExplicitVenueList(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	order := marketOrder("BTCUSDT", 1)
	order.Venues = []string{"okx"}

	allocations, err := resolver.SelectVenues(order)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "okx", allocations[0].Venue)
}

func TestSelectVenues_ExplicitVenueListNoOverlap(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	order := marketOrder("BTCUSDT", 1)
	order.Venues = []string{"kraken"}

	_, err := resolver.SelectVenues(order)
	assert.ErrorIs(t, err, ErrNoVenuesAvailable)
}
