package algo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/internal/routing"
	"github.com/mExOms/sor/pkg/types"
)

// ErrUnknownAlgorithm means no algorithm is registered under the requested
// name; routing fails before any child order is created
var ErrUnknownAlgorithm = errors.New("unknown execution algorithm")

// Slice is the next child order an algorithm wants submitted
type Slice struct {
	Venue     string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	OrderType types.OrderType
}

// Algorithm yields successive time-sliced child orders for one parent
// order. Each active order owns its instance exclusively, so
// implementations keep plain mutable state. A nil slice from NextSlice
// means the algorithm has no more work; completion is judged by executed
// quantity, not by algorithm exhaustion. A slice whose submission failed
// is handed back through Reclaim so a later NextSlice re-emits the
// quantity instead of losing it.
type Algorithm interface {
	Initialize(order *types.SmartOrder, allocations []routing.VenueAllocation) error
	NextSlice(ctx context.Context) (*Slice, error)
	Reclaim(slice *Slice)
	NextEvaluationTime() time.Duration
}

// Factory builds a fresh algorithm instance for one order
type Factory func(cfg config.AlgoConfig) Algorithm

// Registry maps algorithm names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cfg       config.AlgoConfig
}

// Built-in algorithm names
const (
	NameBestVenue = "bestvenue"
	NameSplit     = "split"
	NameTWAP      = "twap"
	NameIceberg   = "iceberg"
)

// NewRegistry creates a registry with the built-in algorithms installed
func NewRegistry(cfg config.AlgoConfig) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		cfg:       cfg,
	}
	r.Register(NameBestVenue, func(cfg config.AlgoConfig) Algorithm { return newBestVenue(cfg) })
	r.Register(NameSplit, func(cfg config.AlgoConfig) Algorithm { return newSplit(cfg) })
	r.Register(NameTWAP, func(cfg config.AlgoConfig) Algorithm { return newTWAP(cfg) })
	r.Register(NameIceberg, func(cfg config.AlgoConfig) Algorithm { return newIceberg(cfg) })
	return r
}

// Register installs a factory under a name, replacing any previous one
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New builds a fresh instance of the named algorithm
func (r *Registry) New(name string) (Algorithm, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return factory(r.cfg), nil
}

// plan is the shared bookkeeping of the built-in algorithms: the immutable
// execution plan, how much quantity has been emitted so far and the queue
// of reclaimed slices awaiting a retry
type plan struct {
	order       *types.SmartOrder
	allocations []routing.VenueAllocation
	emitted     decimal.Decimal
	retries     []Slice
	evalEvery   time.Duration
}

func (p *plan) init(order *types.SmartOrder, allocations []routing.VenueAllocation) error {
	if len(allocations) == 0 {
		return fmt.Errorf("algorithm initialized with no venue allocations")
	}
	p.order = order
	p.allocations = allocations
	p.emitted = decimal.Zero
	p.retries = nil
	return nil
}

// remaining is the quantity not yet emitted as slices. Slices are clamped
// to it so the algorithm can never oversize the parent order.
func (p *plan) remaining() decimal.Decimal {
	return p.order.Quantity.Sub(p.emitted)
}

func (p *plan) emit(venue string, quantity decimal.Decimal) *Slice {
	quantity = decimal.Min(quantity, p.remaining())
	if !quantity.IsPositive() {
		return nil
	}
	p.emitted = p.emitted.Add(quantity)
	return &Slice{
		Venue:     venue,
		Quantity:  quantity,
		Price:     p.order.Price,
		OrderType: p.order.Type,
	}
}

// Reclaim returns a failed slice's quantity to the plan and queues the
// slice for a retry on the next evaluation
func (p *plan) Reclaim(slice *Slice) {
	if slice == nil || !slice.Quantity.IsPositive() {
		return
	}
	p.emitted = p.emitted.Sub(slice.Quantity)
	if p.emitted.IsNegative() {
		p.emitted = decimal.Zero
	}
	p.retries = append(p.retries, *slice)
}

// takeRetry pops the oldest reclaimed slice, re-registering its quantity
// as emitted. Returns nil when no retry is pending.
func (p *plan) takeRetry() *Slice {
	for len(p.retries) > 0 {
		next := p.retries[0]
		p.retries = p.retries[1:]
		if slice := p.emit(next.Venue, next.Quantity); slice != nil {
			return slice
		}
	}
	return nil
}

func (p *plan) NextEvaluationTime() time.Duration {
	if p.evalEvery <= 0 {
		return time.Second
	}
	return p.evalEvery
}
