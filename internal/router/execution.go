package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/internal/algo"
	"github.com/mExOms/sor/pkg/types"
)

// executeLoop drives one smart order: it asks the algorithm for the next
// slice, submits it, and sleeps until the algorithm's next evaluation
// time. Submission errors are recorded on the order and the failed
// quantity is reclaimed for a retry on the next evaluation; the loop
// exits on terminal status or router shutdown.
func (r *SmartOrderRouter) executeLoop(managed *managedOrder) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-managed.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := r.logger.WithField("order", managed.order.ID)

	for {
		managed.mu.RLock()
		terminal := managed.order.Status.IsTerminal()
		managed.mu.RUnlock()
		if terminal {
			return
		}

		slice, err := managed.algorithm.NextSlice(ctx)
		if err != nil {
			// unrecoverable algorithm failure pauses the order; fills
			// already in flight can still complete it
			managed.mu.Lock()
			managed.order.LastError = err.Error()
			managed.mu.Unlock()
			logger.WithError(err).Error("algorithm failed, pausing order")
			return
		}

		if slice == nil {
			r.finishIfComplete(managed)
			return
		}

		r.submitSlice(ctx, managed, slice, logger)

		select {
		case <-time.After(managed.algorithm.NextEvaluationTime()):
		case <-managed.stopCh:
			return
		case <-r.stopCh:
			return
		}
	}
}

// submitSlice turns a slice into a child order and hands it to the venue
// adapter. The child is appended before submission so fills arriving
// immediately can be matched.
func (r *SmartOrderRouter) submitSlice(ctx context.Context, managed *managedOrder, slice *algo.Slice, logger *logrus.Entry) {
	child := &types.ChildOrder{
		ID:        uuid.NewString(),
		ParentID:  managed.order.ID,
		Venue:     slice.Venue,
		Symbol:    managed.order.Symbol,
		Side:      managed.order.Side,
		Type:      slice.OrderType,
		Quantity:  slice.Quantity,
		Price:     slice.Price,
		Status:    types.ChildOrderNew,
		CreatedAt: time.Now(),
	}

	managed.mu.Lock()
	// a cancellation may have landed while the slice was being computed
	if managed.order.Status.IsTerminal() {
		managed.mu.Unlock()
		return
	}
	managed.order.ChildOrders = append(managed.order.ChildOrders, child)
	managed.childByID[child.ID] = child
	managed.mu.Unlock()

	adapter, err := r.registry.Adapter(slice.Venue)
	if err != nil {
		r.recordSubmitFailure(managed, child, err, 0)
		managed.algorithm.Reclaim(slice)
		logger.WithError(err).WithField("venue", slice.Venue).Warn("slice submission failed")
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	venueOrderID, err := adapter.SubmitOrder(submitCtx, child)
	elapsed := time.Since(start)

	if err != nil {
		r.recordSubmitFailure(managed, child, err, elapsed)
		managed.algorithm.Reclaim(slice)
		logger.WithError(err).WithFields(logrus.Fields{
			"child": child.ID,
			"venue": slice.Venue,
		}).Warn("slice submission failed")
		return
	}

	managed.mu.Lock()
	child.VenueOrderID = venueOrderID
	managed.childByVenueID[venueOrderID] = child
	managed.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"child":    child.ID,
		"venue":    slice.Venue,
		"quantity": slice.Quantity,
	}).Debug("slice submitted")
}

// recordSubmitFailure marks the child rejected, notes the error on the
// parent and feeds the failure into the venue stats
func (r *SmartOrderRouter) recordSubmitFailure(managed *managedOrder, child *types.ChildOrder, err error, elapsed time.Duration) {
	managed.mu.Lock()
	child.Status = types.ChildOrderRejected
	managed.order.LastError = err.Error()
	managed.mu.Unlock()

	r.stats.RecordExecution(child.Venue, child.Symbol, decimal.Zero, elapsed, 0, false)
}

// finishIfComplete marks the order COMPLETED when the executed quantity
// has reached the target. Otherwise the order stays open awaiting fills.
func (r *SmartOrderRouter) finishIfComplete(managed *managedOrder) {
	managed.mu.Lock()
	defer managed.mu.Unlock()

	if managed.order.Status.IsTerminal() {
		return
	}
	if managed.order.ExecutedQuantity.GreaterThanOrEqual(managed.order.Quantity) {
		now := time.Now()
		managed.order.Status = types.SmartOrderCompleted
		managed.order.CompletedAt = &now
		r.logger.WithField("order", managed.order.ID).Info("smart order completed")
	}
}
