package reconciliation

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const expiryReason = "payment window expired"

// ExpirySummary counts one sweep. Err combines the per-order failures.
type ExpirySummary struct {
	Checked   int
	Cancelled int
	Skipped   int
	Errors    int
	Err       error
}

// ExpiryWindow is how long an order may wait for payment.
func (e *Engine) ExpiryWindow() time.Duration {
	return e.expiryWindow
}

// ExpireOrder cancels ref when it is still unpaid at createdAt + window or later.
// It reports false for orders that are paid, already cancelled, or not yet due.
func (e *Engine) ExpireOrder(ctx context.Context, ref string) (bool, error) {
	now := e.now()
	guard := func(order *models.Order) error {
		if order.Status != enums.OrderStatusWaitingPayment {
			return errNotEligible
		}
		if now.Before(order.CreatedAt.Add(e.expiryWindow)) {
			return errNotEligible
		}
		return nil
	}
	_, changed, err := e.transition(ctx, ref, enums.OrderStatusCancelled, enums.TriggerExpiry, enums.ActorSystemAuto,
		TransitionMeta{Reason: expiryReason}, guard)
	if err == errNotEligible {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return changed, nil
}

// RunExpirySweep cancels every unpaid order past the expiry window with bounded
// concurrency. Only the initial listing can fail the sweep as a whole.
func (e *Engine) RunExpirySweep(ctx context.Context) (ExpirySummary, error) {
	cutoff := e.now().Add(-e.expiryWindow)
	candidates, err := e.orders.List(ctx, orders.Filter{
		Statuses:      []enums.OrderStatus{enums.OrderStatusWaitingPayment},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return ExpirySummary{}, err
	}

	var (
		mu      sync.Mutex
		summary = ExpirySummary{Checked: len(candidates)}
		g       errgroup.Group
	)
	g.SetLimit(e.sweepConcurrency)
	for i := range candidates {
		ref := candidates[i].Ref
		g.Go(func() error {
			cancelled, err := e.ExpireOrder(ctx, ref)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Errors++
				summary.Err = multierr.Append(summary.Err, err)
			case cancelled:
				summary.Cancelled++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"checked":   summary.Checked,
		"cancelled": summary.Cancelled,
		"skipped":   summary.Skipped,
		"errors":    summary.Errors,
	})
	e.logg.Info(logCtx, "expiry sweep complete")
	return summary, nil
}
