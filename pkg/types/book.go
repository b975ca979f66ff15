package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one price/quantity level of an order book side
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook is a venue order book snapshot. Bids are sorted descending,
// asks ascending; snapshots may be cached and slightly stale.
type OrderBook struct {
	Venue     string       `json:"venue"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid, or zero if the book is empty
func (b *OrderBook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask, or zero if the book is empty
func (b *OrderBook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// SpreadPct returns (ask-bid)/mid as a fraction, or zero without a two-sided book
func (b *OrderBook) SpreadPct() decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid.IsZero() || ask.IsZero() {
		return decimal.Zero
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return decimal.Zero
	}
	return ask.Sub(bid).Div(mid)
}

// SideLevels returns the book side an aggressive order of the given side consumes
func (b *OrderBook) SideLevels(side OrderSide) []PriceLevel {
	if side == OrderSideBuy {
		return b.Asks
	}
	return b.Bids
}
