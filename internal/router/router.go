package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/internal/algo"
	"github.com/mExOms/sor/internal/config"
	"github.com/mExOms/sor/internal/routing"
	"github.com/mExOms/sor/internal/venue"
	"github.com/mExOms/sor/pkg/types"
)

// ErrValidation rejects a malformed smart order before any side effects
var ErrValidation = errors.New("invalid smart order")

// UpdateSource delivers venue-reported order updates. The router
// subscribes once at construction; updates are matched to parents by id.
type UpdateSource interface {
	Subscribe(handler func(types.OrderUpdate)) error
}

// managedOrder is the router-private state of one active smart order:
// the order itself, its algorithm instance and its stop signal. The
// mutex serializes the execution loop against the reconciler.
type managedOrder struct {
	mu        sync.RWMutex
	order     *types.SmartOrder
	algorithm algo.Algorithm

	childByID      map[string]*types.ChildOrder
	childByVenueID map[string]*types.ChildOrder

	canceling atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// signalStop wakes the execution loop out of its evaluation sleep
func (m *managedOrder) signalStop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// SmartOrderRouter validates client orders, resolves venues, drives each
// order's execution algorithm through time-sliced child orders and
// reconciles the fills that flow back from venues.
type SmartOrderRouter struct {
	cfg        config.RouterConfig
	registry   *venue.Registry
	resolver   *routing.Resolver
	algorithms *algo.Registry
	stats      *venue.StatsStore
	logger     *logrus.Entry

	mu     sync.RWMutex
	orders map[string]*managedOrder

	updates chan types.OrderUpdate
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSmartOrderRouter creates a router and subscribes it to the update
// source. Call Start to begin reconciling fills.
func NewSmartOrderRouter(
	cfg config.RouterConfig,
	registry *venue.Registry,
	resolver *routing.Resolver,
	algorithms *algo.Registry,
	stats *venue.StatsStore,
	source UpdateSource,
) (*SmartOrderRouter, error) {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = 10 * time.Second
	}
	if cfg.UpdateQueueSize <= 0 {
		cfg.UpdateQueueSize = 1024
	}

	r := &SmartOrderRouter{
		cfg:        cfg,
		registry:   registry,
		resolver:   resolver,
		algorithms: algorithms,
		stats:      stats,
		logger:     logrus.WithField("component", "smart-order-router"),
		orders:     make(map[string]*managedOrder),
		updates:    make(chan types.OrderUpdate, cfg.UpdateQueueSize),
		stopCh:     make(chan struct{}),
	}

	if source != nil {
		if err := source.Subscribe(r.enqueueUpdate); err != nil {
			return nil, fmt.Errorf("subscribe order updates: %w", err)
		}
	}

	return r, nil
}

// Start launches the reconciliation worker and, when configured, the
// order poll loop
func (r *SmartOrderRouter) Start() {
	r.wg.Add(1)
	go r.reconcileLoop()

	if r.cfg.PollInterval > 0 {
		r.wg.Add(1)
		go r.pollLoop()
	}
}

// Stop halts execution loops and reconciliation and waits for them
func (r *SmartOrderRouter) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// RouteOrder validates the order, resolves its venue allocations,
// initializes its algorithm and starts the execution loop. Any failure
// here rejects the order before a single child order or network call.
func (r *SmartOrderRouter) RouteOrder(order *types.SmartOrder) (string, error) {
	if err := validateOrder(order); err != nil {
		return "", err
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.Status = types.SmartOrderPending
	order.ExecutedQuantity = decimal.Zero
	order.ExecutedPrice = decimal.Zero

	allocations, err := r.resolver.SelectVenues(order)
	if err != nil {
		return "", err
	}

	algorithm, err := r.algorithms.New(algorithmName(order))
	if err != nil {
		return "", err
	}
	if err := algorithm.Initialize(order, allocations); err != nil {
		return "", fmt.Errorf("initialize algorithm: %w", err)
	}

	managed := &managedOrder{
		order:          order,
		algorithm:      algorithm,
		childByID:      make(map[string]*types.ChildOrder),
		childByVenueID: make(map[string]*types.ChildOrder),
		stopCh:         make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.orders[order.ID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: duplicate order id %s", ErrValidation, order.ID)
	}
	r.orders[order.ID] = managed
	r.mu.Unlock()

	order.Status = types.SmartOrderInProgress

	r.logger.WithFields(logrus.Fields{
		"order":     order.ID,
		"client":    order.ClientID,
		"symbol":    order.Symbol,
		"algorithm": algorithmName(order),
		"venues":    len(allocations),
	}).Info("smart order accepted")

	r.wg.Add(1)
	go r.executeLoop(managed)

	return order.ID, nil
}

// CancelSmartOrder cancels every live child order best-effort, then
// marks the parent CANCELED. Returns false when the order is unknown,
// already terminal or already being canceled.
func (r *SmartOrderRouter) CancelSmartOrder(ctx context.Context, orderID string) bool {
	managed := r.managed(orderID)
	if managed == nil {
		return false
	}

	managed.mu.RLock()
	terminal := managed.order.Status.IsTerminal()
	managed.mu.RUnlock()
	if terminal {
		return false
	}
	if !managed.canceling.CompareAndSwap(false, true) {
		return false
	}

	managed.mu.RLock()
	var live []*types.ChildOrder
	for _, child := range managed.order.ChildOrders {
		if !child.Status.IsTerminal() && child.VenueOrderID != "" {
			live = append(live, child)
		}
	}
	managed.mu.RUnlock()

	var wg sync.WaitGroup
	for _, child := range live {
		wg.Add(1)
		go func(child *types.ChildOrder) {
			defer wg.Done()

			adapter, err := r.registry.Adapter(child.Venue)
			if err != nil {
				r.logger.WithError(err).WithField("child", child.ID).Warn("cancel: adapter unavailable")
				return
			}

			cancelCtx, cancel := context.WithTimeout(ctx, r.cfg.CancelTimeout)
			defer cancel()
			if err := adapter.CancelOrder(cancelCtx, child.VenueOrderID); err != nil {
				// best effort: a failed venue cancel does not block the parent
				r.logger.WithError(err).WithFields(logrus.Fields{
					"child": child.ID,
					"venue": child.Venue,
				}).Warn("child cancel failed")
			}
		}(child)
	}
	wg.Wait()

	managed.mu.Lock()
	now := time.Now()
	managed.order.Status = types.SmartOrderCanceled
	managed.order.CanceledAt = &now
	for _, child := range managed.order.ChildOrders {
		if !child.Status.IsTerminal() {
			child.Status = types.ChildOrderCanceled
		}
	}
	managed.mu.Unlock()
	managed.signalStop()

	r.logger.WithField("order", orderID).Info("smart order canceled")
	return true
}

// GetSmartOrder returns a copy of the order, or nil if unknown
func (r *SmartOrderRouter) GetSmartOrder(orderID string) *types.SmartOrder {
	managed := r.managed(orderID)
	if managed == nil {
		return nil
	}
	managed.mu.RLock()
	defer managed.mu.RUnlock()
	return managed.order.Clone()
}

// ActiveOrdersForClient returns copies of the client's non-terminal orders
func (r *SmartOrderRouter) ActiveOrdersForClient(clientID string) []*types.SmartOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*types.SmartOrder
	for _, managed := range r.orders {
		managed.mu.RLock()
		if managed.order.ClientID == clientID && !managed.order.Status.IsTerminal() {
			active = append(active, managed.order.Clone())
		}
		managed.mu.RUnlock()
	}
	return active
}

func (r *SmartOrderRouter) managed(orderID string) *managedOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orders[orderID]
}

// validateOrder checks the client's trading intent; failures are
// synchronous and leave no trace in the router
func validateOrder(order *types.SmartOrder) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrValidation)
	}
	if order.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if order.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrValidation)
	}
	if order.Side != types.OrderSideBuy && order.Side != types.OrderSideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if order.Type != types.OrderTypeLimit && order.Type != types.OrderTypeMarket {
		return fmt.Errorf("%w: type must be LIMIT or MARKET", ErrValidation)
	}
	if !order.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if order.Type == types.OrderTypeLimit && !order.Price.IsPositive() {
		return fmt.Errorf("%w: price is required for limit orders", ErrValidation)
	}
	return nil
}

// algorithmName picks a default when the client named no algorithm:
// custom splits execute per instruction, everything else goes best-venue
func algorithmName(order *types.SmartOrder) string {
	if order.Algorithm != "" {
		return order.Algorithm
	}
	if len(order.RoutingInstructions) > 0 {
		return algo.NameSplit
	}
	return algo.NameBestVenue
}
