package routing

import (
	"github.com/shopspring/decimal"

	"github.com/mExOms/sor/pkg/types"
)

// CostEstimate is the projected outcome of sweeping one venue's book
type CostEstimate struct {
	Cost           decimal.Decimal
	AveragePrice   decimal.Decimal
	SlippagePct    decimal.Decimal
	FilledQuantity decimal.Decimal
	Unfilled       decimal.Decimal
}

var one = decimal.NewFromInt(1)

// EstimateCost walks the relevant book side consuming levels until the
// requested quantity is filled, adding taker fees on the swept notional.
// When the book cannot fill the full quantity the cost is multiplied by
// 1 + unfilledFraction to disfavor venues that would slip badly.
func EstimateCost(book *types.OrderBook, side types.OrderSide, quantity decimal.Decimal, takerFeeBps float64) CostEstimate {
	est := CostEstimate{Unfilled: quantity}
	if book == nil || quantity.IsZero() || quantity.IsNegative() {
		return est
	}

	levels := book.SideLevels(side)
	if len(levels) == 0 {
		return est
	}

	remaining := quantity
	notional := decimal.Zero
	for _, level := range levels {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, level.Quantity)
		notional = notional.Add(take.Mul(level.Price))
		remaining = remaining.Sub(take)
	}

	filled := quantity.Sub(remaining)
	if filled.IsZero() {
		return est
	}

	fee := notional.Mul(decimal.NewFromFloat(takerFeeBps / 10000))
	cost := notional.Add(fee)

	if remaining.IsPositive() {
		unfilledFraction := remaining.Div(quantity)
		cost = cost.Mul(one.Add(unfilledFraction))
	}

	avgPrice := notional.Div(filled)
	best := levels[0].Price
	slippage := decimal.Zero
	if best.IsPositive() {
		slippage = avgPrice.Sub(best).Div(best)
		if side == types.OrderSideSell {
			slippage = slippage.Neg()
		}
	}

	est.Cost = cost
	est.AveragePrice = avgPrice
	est.SlippagePct = slippage
	est.FilledQuantity = filled
	est.Unfilled = remaining
	return est
}
