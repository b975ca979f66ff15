package algo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/internal/routing"
	"github.com/mExOms/sor/pkg/types"
)

// bestVenue sends the whole order to the top-ranked venue in one slice
type bestVenue struct {
	plan
	done bool
}

func newBestVenue(cfg config.AlgoConfig) *bestVenue {
	return &bestVenue{plan: plan{evalEvery: cfg.EvalInterval}}
}

func (a *bestVenue) Initialize(order *types.SmartOrder, allocations []routing.VenueAllocation) error {
	return a.init(order, allocations)
}

func (a *bestVenue) NextSlice(ctx context.Context) (*Slice, error) {
	if retry := a.takeRetry(); retry != nil {
		return retry, nil
	}
	if a.done {
		return nil, nil
	}
	a.done = true
	return a.emit(a.allocations[0].Venue, a.remaining()), nil
}

// split emits one slice per resolved allocation, in allocation order.
// Used for client-specified custom routing.
type split struct {
	plan
	next int
}

func newSplit(cfg config.AlgoConfig) *split {
	return &split{plan: plan{evalEvery: cfg.EvalInterval}}
}

func (a *split) Initialize(order *types.SmartOrder, allocations []routing.VenueAllocation) error {
	return a.init(order, allocations)
}

func (a *split) NextSlice(ctx context.Context) (*Slice, error) {
	if retry := a.takeRetry(); retry != nil {
		return retry, nil
	}
	for a.next < len(a.allocations) {
		alloc := a.allocations[a.next]
		a.next++
		if slice := a.emit(alloc.Venue, alloc.Quantity); slice != nil {
			return slice, nil
		}
	}
	return nil, nil
}

// twap spreads the order over a fixed number of equal slices on the
// top-ranked venue, one slice per interval; the last slice absorbs the
// rounding remainder
type twap struct {
	plan
	slices  int
	emitted int
}

func newTWAP(cfg config.AlgoConfig) *twap {
	slices := cfg.TwapSlices
	if slices <= 0 {
		slices = 10
	}
	interval := cfg.TwapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &twap{
		plan:   plan{evalEvery: interval},
		slices: slices,
	}
}

func (a *twap) Initialize(order *types.SmartOrder, allocations []routing.VenueAllocation) error {
	return a.init(order, allocations)
}

func (a *twap) NextSlice(ctx context.Context) (*Slice, error) {
	if retry := a.takeRetry(); retry != nil {
		return retry, nil
	}
	if a.emitted >= a.slices {
		return nil, nil
	}
	a.emitted++

	qty := a.order.Quantity.Div(decimal.NewFromInt(int64(a.slices)))
	if a.emitted == a.slices {
		qty = a.remaining()
	}
	return a.emit(a.allocations[0].Venue, qty), nil
}

// iceberg repeatedly shows a fixed clip on the top-ranked venue until the
// full quantity has been emitted
type iceberg struct {
	plan
	clip decimal.Decimal
}

func newIceberg(cfg config.AlgoConfig) *iceberg {
	return &iceberg{
		plan: plan{evalEvery: cfg.EvalInterval},
		clip: cfg.IcebergClip,
	}
}

func (a *iceberg) Initialize(order *types.SmartOrder, allocations []routing.VenueAllocation) error {
	if err := a.init(order, allocations); err != nil {
		return err
	}
	if !a.clip.IsPositive() {
		a.clip = order.Quantity.Div(decimal.NewFromInt(10))
	}
	return nil
}

func (a *iceberg) NextSlice(ctx context.Context) (*Slice, error) {
	if retry := a.takeRetry(); retry != nil {
		return retry, nil
	}
	if !a.remaining().IsPositive() {
		return nil, nil
	}
	return a.emit(a.allocations[0].Venue, a.clip), nil
}
