package router

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/pkg/types"
)

// enqueueUpdate hands a venue update to the reconciliation worker. The
// queue is bounded; when it is full the update is dropped and a later
// status poll has to repair the order.
func (r *SmartOrderRouter) enqueueUpdate(update types.OrderUpdate) {
	select {
	case r.updates <- update:
	default:
		r.logger.WithFields(logrus.Fields{
			"child": update.ID,
			"venue": update.Venue,
		}).Warn("update queue full, dropping order update")
	}
}

// reconcileLoop is the single consumer of the update queue. Serializing
// reconciliation here means per-order aggregates never race between
// updates for the same parent.
func (r *SmartOrderRouter) reconcileLoop() {
	defer r.wg.Done()

	for {
		select {
		case update := <-r.updates:
			r.applyUpdate(update)
		case <-r.stopCh:
			return
		}
	}
}

// applyUpdate matches an update to its child order, folds the new fill
// into the venue stats and recomputes the parent's aggregates
func (r *SmartOrderRouter) applyUpdate(update types.OrderUpdate) {
	managed := r.managedForUpdate(update)
	if managed == nil {
		r.logger.WithFields(logrus.Fields{
			"child": update.ID,
			"venue": update.Venue,
		}).Debug("update for unknown order, ignoring")
		return
	}

	managed.mu.Lock()

	child := managed.childByID[update.ID]
	if child == nil {
		child = managed.childByVenueID[update.ID]
	}
	if child == nil {
		managed.mu.Unlock()
		r.logger.WithFields(logrus.Fields{
			"order": managed.order.ID,
			"child": update.ID,
		}).Debug("update for unknown child, ignoring")
		return
	}

	// executed quantity is cumulative and only moves forward; a stale
	// update arriving late must not shrink it
	executed := update.ExecutedQuantity
	if executed.LessThan(child.ExecutedQuantity) {
		executed = child.ExecutedQuantity
	}
	if executed.GreaterThan(child.Quantity) {
		r.logger.WithFields(logrus.Fields{
			"order":    managed.order.ID,
			"child":    child.ID,
			"venue":    child.Venue,
			"reported": executed,
			"placed":   child.Quantity,
		}).Warn("venue reported more than placed, clamping")
		executed = child.Quantity
	}

	fillDelta := executed.Sub(child.ExecutedQuantity)

	previousStatus := child.Status
	child.ExecutedQuantity = executed
	if update.ExecutedPrice.IsPositive() {
		child.ExecutedPrice = update.ExecutedPrice
	}
	// a terminal child status never regresses to a live one
	if !previousStatus.IsTerminal() || update.Status.IsTerminal() {
		child.Status = update.Status
	}

	r.recomputeAggregates(managed)
	completed := false
	if !managed.order.Status.IsTerminal() &&
		managed.order.ExecutedQuantity.GreaterThanOrEqual(managed.order.Quantity) {
		now := time.Now()
		managed.order.Status = types.SmartOrderCompleted
		managed.order.CompletedAt = &now
		completed = true
	}
	orderID := managed.order.ID
	venueID := child.Venue
	symbol := child.Symbol
	slippage := realizedSlippage(managed.order, child)
	managed.mu.Unlock()

	if fillDelta.IsPositive() {
		r.stats.RecordExecution(venueID, symbol, fillDelta, update.ResponseTime, slippage, true)
	}

	if completed {
		managed.signalStop()
		r.logger.WithField("order", orderID).Info("smart order completed")
	}
}

// managedForUpdate resolves the parent order: directly by ParentID when
// the feed carries it, otherwise by scanning child indexes
func (r *SmartOrderRouter) managedForUpdate(update types.OrderUpdate) *managedOrder {
	if update.ParentID != "" {
		return r.managed(update.ParentID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, managed := range r.orders {
		managed.mu.RLock()
		_, byID := managed.childByID[update.ID]
		_, byVenue := managed.childByVenueID[update.ID]
		managed.mu.RUnlock()
		if byID || byVenue {
			return managed
		}
	}
	return nil
}

// recomputeAggregates rebuilds the parent's executed quantity and VWAP
// from its children. Fills reported without a price contribute quantity
// but are left out of the VWAP so they cannot deflate it. Caller holds
// the order lock.
func (r *SmartOrderRouter) recomputeAggregates(managed *managedOrder) {
	total := decimal.Zero
	priced := decimal.Zero
	notional := decimal.Zero
	for _, child := range managed.order.ChildOrders {
		if !child.ExecutedQuantity.IsPositive() {
			continue
		}
		total = total.Add(child.ExecutedQuantity)
		if child.ExecutedPrice.IsPositive() {
			priced = priced.Add(child.ExecutedQuantity)
			notional = notional.Add(child.ExecutedQuantity.Mul(child.ExecutedPrice))
		}
	}

	managed.order.ExecutedQuantity = total
	if priced.IsPositive() {
		managed.order.ExecutedPrice = notional.Div(priced)
	}
	if total.IsPositive() {
		if !managed.order.Status.IsTerminal() {
			managed.order.Status = types.SmartOrderPartiallyFilled
		}
	}
}

// realizedSlippage compares the child's fill price against the parent's
// limit price; market orders have no reference price and report zero
func realizedSlippage(order *types.SmartOrder, child *types.ChildOrder) float64 {
	if !order.Price.IsPositive() || !child.ExecutedPrice.IsPositive() {
		return 0
	}
	diff := child.ExecutedPrice.Sub(order.Price).Div(order.Price)
	if order.Side == types.OrderSideSell {
		diff = diff.Neg()
	}
	slip, _ := diff.Float64()
	if slip < 0 {
		return 0
	}
	return slip
}
