package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/mExOms/sor/pkg/types"
)

// Adapter is the venue connectivity surface consumed by the router.
// Implementations wrap each venue's own API; they are not defined here.
type Adapter interface {
	SubmitOrder(ctx context.Context, order *types.ChildOrder) (string, error)
	CancelOrder(ctx context.Context, venueOrderID string) error
	GetOrder(ctx context.Context, venueOrderID string) (*types.OrderUpdate, error)
}

// Weights holds the six scoring factor weights for a venue
type Weights struct {
	Liquidity    float64 `json:"liquidity"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
	Reliability  float64 `json:"reliability"`
	Spread       float64 `json:"spread"`
	Slippage     float64 `json:"slippage"`
}

// DefaultWeights returns the initial factor weights for a new venue
func DefaultWeights() Weights {
	return Weights{
		Liquidity:    1.0,
		Cost:         1.0,
		ResponseTime: 1.0,
		Reliability:  1.0,
		Spread:       1.0,
		Slippage:     1.0,
	}
}

func (w Weights) slice() [6]float64 {
	return [6]float64{w.Liquidity, w.Cost, w.ResponseTime, w.Reliability, w.Spread, w.Slippage}
}

func (w *Weights) setSlice(v [6]float64) {
	w.Liquidity, w.Cost, w.ResponseTime, w.Reliability, w.Spread, w.Slippage =
		v[0], v[1], v[2], v[3], v[4], v[5]
}

// Sum returns the total weight budget
func (w Weights) Sum() float64 {
	s := w.slice()
	total := 0.0
	for _, v := range s {
		total += v
	}
	return total
}

// Scores holds the six normalized sub-scores from the last evaluation
type Scores struct {
	Liquidity    float64 `json:"liquidity_score"`
	Cost         float64 `json:"cost_score"`
	ResponseTime float64 `json:"response_time_score"`
	Reliability  float64 `json:"reliability_score"`
	Spread       float64 `json:"spread_score"`
	Slippage     float64 `json:"slippage_score"`
}

func (s Scores) slice() [6]float64 {
	return [6]float64{s.Liquidity, s.Cost, s.ResponseTime, s.Reliability, s.Spread, s.Slippage}
}

// Info describes a registered venue and its scoring state
type Info struct {
	ID          string  `json:"id"`
	TakerFeeBps float64 `json:"taker_fee_bps"`
	Weights     Weights `json:"weights"`
	Scores      Scores  `json:"scores"`
}

type entry struct {
	info    *Info
	adapter Adapter
}

// Registry holds the venues known to the router. Registration order is
// preserved so that score ties break deterministically.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	venues map[string]*entry
}

// NewRegistry creates an empty venue registry
func NewRegistry() *Registry {
	return &Registry{venues: make(map[string]*entry)}
}

// Register adds a venue; re-registering an id replaces its adapter but
// keeps its position and scoring state
func (r *Registry) Register(id string, adapter Adapter, takerFeeBps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.venues[id]; ok {
		existing.adapter = adapter
		existing.info.TakerFeeBps = takerFeeBps
		return
	}

	r.venues[id] = &entry{
		info: &Info{
			ID:          id,
			TakerFeeBps: takerFeeBps,
			Weights:     DefaultWeights(),
		},
		adapter: adapter,
	}
	r.order = append(r.order, id)
}

// Remove deletes a venue from the registry
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.venues[id]; !ok {
		return
	}
	delete(r.venues, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Adapter returns the adapter for a venue id
func (r *Registry) Adapter(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.venues[id]
	if !ok {
		return nil, fmt.Errorf("venue %s not registered", id)
	}
	return e.adapter, nil
}

// Info returns a copy of the venue's scoring state
func (r *Registry) Info(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.venues[id]
	if !ok {
		return Info{}, false
	}
	return *e.info, true
}

// IDs returns venue ids in registration order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Contains reports whether a venue id is registered
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.venues[id]
	return ok
}

// updateInfo applies fn to the venue's info under the registry lock
func (r *Registry) updateInfo(id string, fn func(*Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.venues[id]; ok {
		fn(e.info)
	}
}
