package router

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/pkg/types"
)

// pollLoop periodically asks venues for the state of every live child
// order and feeds the answers through the normal reconciliation path.
// It backstops the push feed: a dropped or missed update is repaired on
// the next poll.
func (r *SmartOrderRouter) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.pollOnce()
		case <-r.stopCh:
			return
		}
	}
}

func (r *SmartOrderRouter) pollOnce() {
	for _, child := range r.liveChildren() {
		adapter, err := r.registry.Adapter(child.Venue)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SubmitTimeout)
		update, err := adapter.GetOrder(ctx, child.VenueOrderID)
		cancel()
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"child": child.ID,
				"venue": child.Venue,
			}).Debug("order poll failed")
			continue
		}

		update.ID = child.ID
		update.ParentID = child.ParentID
		r.enqueueUpdate(*update)
	}
}

// liveChildren snapshots every non-terminal child that has a venue order id
func (r *SmartOrderRouter) liveChildren() []types.ChildOrder {
	r.mu.RLock()
	managedOrders := make([]*managedOrder, 0, len(r.orders))
	for _, managed := range r.orders {
		managedOrders = append(managedOrders, managed)
	}
	r.mu.RUnlock()

	var live []types.ChildOrder
	for _, managed := range managedOrders {
		managed.mu.RLock()
		if !managed.order.Status.IsTerminal() {
			for _, child := range managed.order.ChildOrders {
				if !child.Status.IsTerminal() && child.VenueOrderID != "" {
					live = append(live, *child)
				}
			}
		}
		managed.mu.RUnlock()
	}
	return live
}
