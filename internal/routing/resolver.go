package routing

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/internal/venue"
	"github.com/mExOms/sor/pkg/types"
)

const percentageTolerance = 0.001

// Resolver turns a smart order into concrete venue allocations: an
// explicit allow-list, a client-specified custom split, or a ranked list
// produced by the venue scorer.
type Resolver struct {
	registry *venue.Registry
	scorer   *venue.Scorer
	books    venue.BookSource
	logger   *logrus.Entry
}

// NewResolver creates a routing strategy resolver
func NewResolver(registry *venue.Registry, scorer *venue.Scorer, books venue.BookSource) *Resolver {
	return &Resolver{
		registry: registry,
		scorer:   scorer,
		books:    books,
		logger:   logrus.WithField("component", "routing-resolver"),
	}
}

// SelectVenues resolves the order into one or more venue allocations.
// It performs no side effects; errors reject the order before any child
// order exists.
func (r *Resolver) SelectVenues(order *types.SmartOrder) ([]VenueAllocation, error) {
	eligible := r.eligibleVenues(order.Symbol)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVenuesAvailable, order.Symbol)
	}

	if len(order.RoutingInstructions) > 0 {
		return r.resolveCustom(order, eligible)
	}

	if len(order.Venues) > 0 {
		allowed := intersect(eligible, order.Venues)
		if len(allowed) == 0 {
			return nil, fmt.Errorf("%w: %s (explicit venue list)", ErrNoVenuesAvailable, order.Symbol)
		}
		return r.resolveRanked(order, allowed), nil
	}

	return r.resolveRanked(order, eligible), nil
}

// eligibleVenues lists registered venues trading the symbol, preserving
// registration order so ties break deterministically
func (r *Resolver) eligibleVenues(symbol string) []string {
	var venues []string
	for _, id := range r.books.VenuesForSymbol(symbol) {
		if r.registry.Contains(id) {
			venues = append(venues, id)
		}
	}
	return venues
}

// resolveCustom builds one allocation per client instruction. Percentages
// must sum to 100 within tolerance.
func (r *Resolver) resolveCustom(order *types.SmartOrder, eligible []string) ([]VenueAllocation, error) {
	total := 0.0
	for _, inst := range order.RoutingInstructions {
		if inst.Percentage <= 0 {
			return nil, fmt.Errorf("%w: non-positive percentage for venue %s", ErrInvalidRouting, inst.Venue)
		}
		total += inst.Percentage
	}
	if math.Abs(total-100) > percentageTolerance {
		return nil, fmt.Errorf("%w: percentages sum to %.3f, want 100", ErrInvalidRouting, total)
	}

	eligibleSet := make(map[string]struct{}, len(eligible))
	for _, v := range eligible {
		eligibleSet[v] = struct{}{}
	}

	hundred := decimal.NewFromInt(100)
	allocations := make([]VenueAllocation, 0, len(order.RoutingInstructions))
	for _, inst := range order.RoutingInstructions {
		if _, ok := eligibleSet[inst.Venue]; !ok {
			return nil, fmt.Errorf("%w: venue %s does not trade %s", ErrNoVenuesAvailable, inst.Venue, order.Symbol)
		}

		pct := decimal.NewFromFloat(inst.Percentage)
		qty := order.Quantity.Mul(pct).Div(hundred)
		alloc := VenueAllocation{
			Venue:       inst.Venue,
			Quantity:    qty,
			Percentage:  pct,
			OrderParams: inst.OrderParams,
		}
		r.fillEstimates(&alloc, order.Symbol, order.Side, qty)
		allocations = append(allocations, alloc)
	}

	return allocations, nil
}

// resolveRanked scores every candidate venue and returns the full ranked
// list, best first. Equal scores keep registration order.
func (r *Resolver) resolveRanked(order *types.SmartOrder, candidates []string) []VenueAllocation {
	allocations := make([]VenueAllocation, 0, len(candidates))
	for _, id := range candidates {
		alloc := VenueAllocation{
			Venue:    id,
			Quantity: order.Quantity,
			Score:    r.scorer.Score(id, order.Symbol, order.Quantity),
		}
		r.fillEstimates(&alloc, order.Symbol, order.Side, order.Quantity)
		allocations = append(allocations, alloc)
	}

	sort.SliceStable(allocations, func(i, j int) bool {
		return allocations[i].Score > allocations[j].Score
	})

	if len(allocations) > 0 {
		r.logger.WithFields(logrus.Fields{
			"symbol": order.Symbol,
			"best":   allocations[0].Venue,
			"score":  allocations[0].Score,
		}).Debug("venues ranked")
	}
	return allocations
}

// fillEstimates attaches book-walk cost estimates when a snapshot exists
func (r *Resolver) fillEstimates(alloc *VenueAllocation, symbol string, side types.OrderSide, quantity decimal.Decimal) {
	book, ok := r.books.CachedBook(alloc.Venue, symbol)
	if !ok {
		return
	}
	var feeBps float64
	if info, ok := r.registry.Info(alloc.Venue); ok {
		feeBps = info.TakerFeeBps
	}
	est := EstimateCost(book, side, quantity, feeBps)
	alloc.EstimatedCost = est.Cost
	alloc.EstimatedSlippage = est.SlippagePct
}

// intersect keeps members of base that also appear in allowed, preserving
// base order
func intersect(base, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		allowedSet[v] = struct{}{}
	}
	var out []string
	for _, v := range base {
		if _, ok := allowedSet[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
