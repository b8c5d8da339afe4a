package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-orders/internal/customerindex"
	"github.com/angelmondragon/storefront-orders/internal/notifications"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/verifier"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/metrics"
	"github.com/shopspring/decimal"
)

const (
	DefaultExpiryWindow     = 24 * time.Hour
	DefaultSweepConcurrency = 8

	// a conditional write that keeps losing is re-evaluated this many times
	maxConflictRetries = 3
)

const (
	actionCreated    = "order_created"
	actionPayment    = "payment_attempt"
	actionTransition = "transition"
	actionRefund     = "refund_recorded"
	actionGateway    = "gateway_event"
	actionCartEdit   = "cart_edited"
	actionContact    = "contact_updated"
)

type customerIndex interface {
	Upsert(ctx context.Context, customerKey string, summary customerindex.Summary) error
	Get(ctx context.Context, customerKey string) ([]customerindex.Summary, error)
	Rebuild(ctx context.Context, customerKey string) (int, error)
}

type paymentVerifier interface {
	Verify(ctx context.Context, evidence verifier.Evidence, expected decimal.Decimal) (verifier.Outcome, error)
}

type evidenceRegistry interface {
	Owner(ctx context.Context, fingerprint string) (string, bool, error)
	Claim(ctx context.Context, fingerprint, ref string) (string, bool, error)
	Release(ctx context.Context, fingerprint, ref string) error
}

type auditLog interface {
	Record(ctx context.Context, event *models.AuditEvent) error
}

type notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
}

type exportTrigger interface {
	Trigger()
}

type permissionResolver interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
}

type EngineParams struct {
	Orders      orders.Store
	Index       customerIndex
	Verifier    paymentVerifier
	Evidence    evidenceRegistry
	Audit       auditLog
	Notifier    notifier
	Permissions permissionResolver
	// Exporter is optional; nil disables export triggers.
	Exporter         exportTrigger
	Metrics          *metrics.ReconciliationMetrics
	Logger           *logger.Logger
	ExpiryWindow     time.Duration
	SweepConcurrency int
	Clock            func() time.Time
}

// Engine owns the order state machine. Every status change goes through a
// conditional single-record write; index, audit, notification and export
// work happens after that commit point and never undoes it.
type Engine struct {
	orders      orders.Store
	index       customerIndex
	verifier    paymentVerifier
	evidence    evidenceRegistry
	audit       auditLog
	notifier    notifier
	permissions permissionResolver
	exporter    exportTrigger
	metrics     *metrics.ReconciliationMetrics
	logg        *logger.Logger

	expiryWindow     time.Duration
	sweepConcurrency int
	now              func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	case params.Index == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "customer index required")
	case params.Verifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment verifier required")
	case params.Evidence == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "evidence registry required")
	case params.Audit == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit log required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	case params.Permissions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "permission resolver required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	window := params.ExpiryWindow
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	concurrency := params.SweepConcurrency
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		orders:           params.Orders,
		index:            params.Index,
		verifier:         params.Verifier,
		evidence:         params.Evidence,
		audit:            params.Audit,
		notifier:         params.Notifier,
		permissions:      params.Permissions,
		exporter:         params.Exporter,
		metrics:          params.Metrics,
		logg:             params.Logger,
		expiryWindow:     window,
		sweepConcurrency: concurrency,
		now:              func() time.Time { return clock().UTC() },
	}, nil
}

// TransitionMeta carries the optional fields an accepted transition records.
type TransitionMeta struct {
	Reason           string
	TrackingNumber   string
	ShippingProvider string
	PickupProductID  string
	PickupLocation   string
}

func (m TransitionMeta) details() map[string]any {
	details := map[string]any{}
	if m.Reason != "" {
		details["reason"] = m.Reason
	}
	if m.TrackingNumber != "" {
		details["tracking_number"] = m.TrackingNumber
	}
	if m.ShippingProvider != "" {
		details["shipping_provider"] = m.ShippingProvider
	}
	if m.PickupProductID != "" {
		details["pickup_product_id"] = m.PickupProductID
	}
	if m.PickupLocation != "" {
		details["pickup_location"] = m.PickupLocation
	}
	return details
}

// errNotEligible lets a guard skip an order without reporting an error.
var errNotEligible = errors.New("order not eligible")

type transitionGuard func(order *models.Order) error

// GetOrder loads one order.
func (e *Engine) GetOrder(ctx context.Context, ref string) (*models.Order, error) {
	return e.orders.Get(ctx, ref)
}

// ApplyTransition moves the order to the target status. It is a no-op
// returning changed=false when the order is already there.
func (e *Engine) ApplyTransition(ctx context.Context, ref string, to enums.OrderStatus, trigger enums.TransitionTrigger, actor string, meta TransitionMeta) (*models.Order, bool, error) {
	return e.transition(ctx, ref, to, trigger, actor, meta, nil)
}

// ApplyAdminTransition applies an administrator's status change.
func (e *Engine) ApplyAdminTransition(ctx context.Context, ref string, to enums.OrderStatus, adminEmail string, meta TransitionMeta) (*models.Order, error) {
	if err := e.requireAdmin(ctx, adminEmail); err != nil {
		return nil, err
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown target status")
	}
	order, _, err := e.transition(ctx, ref, to, enums.TriggerAdmin, enums.AdminActor(adminEmail), meta, nil)
	return order, err
}

func (e *Engine) transition(ctx context.Context, ref string, to enums.OrderStatus, trigger enums.TransitionTrigger, actor string, meta TransitionMeta, guard transitionGuard) (*models.Order, bool, error) {
	ctx = e.logg.WithOrderRef(ctx, ref)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		order, err := e.orders.Get(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		if order.Status == to {
			return order, false, nil
		}
		if guard != nil {
			if err := guard(order); err != nil {
				return order, false, err
			}
		}
		if err := CheckTransition(order, to, trigger); err != nil {
			e.rejectTransition(ctx, order, to, trigger, actor, err)
			return order, false, err
		}

		next := e.applyMeta(order, to, actor, meta)
		if err := e.orders.CompareAndPut(ctx, next, order.Status, order.Version); err != nil {
			if errors.Is(err, orders.ErrStatusConflict) {
				continue
			}
			return nil, false, err
		}
		e.afterTransition(ctx, order, next, trigger, actor, meta.details())
		return next, true, nil
	}
	return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, orders.ErrStatusConflict, "order kept changing concurrently")
}

func (e *Engine) applyMeta(order *models.Order, to enums.OrderStatus, actor string, meta TransitionMeta) *models.Order {
	now := e.now()
	next := order.Clone()
	next.Status = to
	next.UpdatedAt = now
	next.Version++

	switch to {
	case enums.OrderStatusCancelled:
		reason := meta.Reason
		if reason == "" {
			reason = "cancelled"
		}
		next.CancelReason = &reason
		next.CancelledAt = &now
		cancelledBy := actor
		next.CancelledBy = &cancelledBy
	case enums.OrderStatusShipped:
		if meta.TrackingNumber != "" {
			tracking := meta.TrackingNumber
			next.TrackingNumber = &tracking
		}
		if meta.ShippingProvider != "" {
			provider := meta.ShippingProvider
			next.ShippingProvider = &provider
		}
	case enums.OrderStatusReady:
		if meta.PickupProductID != "" {
			next.Pickup = &models.Pickup{
				ProductID: meta.PickupProductID,
				Location:  meta.PickupLocation,
				EnabledAt: now,
			}
		}
	}
	return next
}

func (e *Engine) rejectTransition(ctx context.Context, order *models.Order, to enums.OrderStatus, trigger enums.TransitionTrigger, actor string, cause error) {
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"status_from": string(order.Status),
		"status_to":   string(to),
		"trigger":     string(trigger),
		"actor":       actor,
	})
	e.logg.Error(logCtx, "transition rejected", cause)
	e.record(ctx, &models.AuditEvent{
		OrderRef:   order.Ref,
		Action:     actionTransition,
		Actor:      actor,
		Trigger:    trigger,
		FromStatus: order.Status,
		ToStatus:   to,
		Accepted:   false,
		Reason:     "TRANSITION_NOT_ALLOWED",
	})
}

// afterTransition runs the best-effort work that follows a committed status change.
func (e *Engine) afterTransition(ctx context.Context, prev, next *models.Order, trigger enums.TransitionTrigger, actor string, details map[string]any) {
	e.metrics.IncTransition(string(prev.Status), string(next.Status), string(trigger))
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"status_from": string(prev.Status),
		"status_to":   string(next.Status),
		"trigger":     string(trigger),
		"actor":       actor,
	})
	e.logg.Info(logCtx, "order transitioned")

	e.syncIndex(ctx, next)
	reason, _ := details["reason"].(string)
	e.record(ctx, &models.AuditEvent{
		OrderRef:   next.Ref,
		Action:     actionTransition,
		Actor:      actor,
		Trigger:    trigger,
		FromStatus: prev.Status,
		ToStatus:   next.Status,
		Accepted:   true,
		Reason:     reason,
		Details:    details,
	})
	e.notifier.Notify(ctx, notifications.FromOrder(next, prev.Status, trigger, actor, reason))
	e.triggerExport()
}

func (e *Engine) syncIndex(ctx context.Context, order *models.Order) {
	if err := e.index.Upsert(ctx, order.CustomerKey, customerindex.SummaryFromOrder(order)); err != nil {
		e.metrics.IncIndexFailure()
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "reconciliation: customer index upsert failed after order write")
	}
}

func (e *Engine) record(ctx context.Context, event *models.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now()
	}
	if err := e.audit.Record(ctx, event); err != nil {
		e.metrics.IncSideEffectFailure("audit")
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "audit record failed")
	}
}

func (e *Engine) triggerExport() {
	if e.exporter != nil {
		e.exporter.Trigger()
	}
}

func (e *Engine) requireAdmin(ctx context.Context, email string) error {
	ok, err := e.permissions.IsAdmin(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve admin permissions")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return nil
}

func errIsConflict(err error) bool {
	return errors.Is(err, orders.ErrStatusConflict)
}
