package reconciliation

import (
	"context"

	"github.com/angelmondragon/storefront-orders/internal/gateway"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/verifier"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

const reasonRefundAlreadyApplied = "REFUND_ALREADY_APPLIED"

// GatewayResult reports whether a gateway callback changed the order.
type GatewayResult struct {
	Applied bool
	Reason  enums.PaymentReason
	Order   *models.Order
}

// HandleGatewayEvent applies a signature-verified, de-duplicated gateway callback.
// Events that no longer fit the order's state are audited and reported as not applied.
func (e *Engine) HandleGatewayEvent(ctx context.Context, evt gateway.Event) (GatewayResult, error) {
	if evt.Provider == "" {
		return GatewayResult{}, pkgerrors.New(pkgerrors.CodeValidation, "gateway provider required")
	}
	actor := enums.GatewayActor(evt.Provider)
	ctx = e.logg.WithFields(ctx, map[string]any{
		"delivery_id":  evt.DeliveryID,
		"gateway_kind": string(evt.Kind),
	})

	switch evt.Kind {
	case enums.GatewayEventChargeSucceeded:
		res, err := e.RequestPayment(ctx, evt.OrderRef, verifier.Evidence{
			Kind:     enums.EvidenceKindGatewayCharge,
			Provider: evt.Provider,
			ChargeID: evt.ChargeRef,
			Amount:   evt.Amount,
		}, actor)
		if err != nil {
			return GatewayResult{}, err
		}
		return GatewayResult{
			Applied: res.Accepted && res.Reason == enums.PaymentReasonVerified,
			Reason:  res.Reason,
			Order:   res.Order,
		}, nil
	case enums.GatewayEventChargeFailed:
		order, err := e.orders.Get(ctx, evt.OrderRef)
		if err != nil {
			return GatewayResult{}, err
		}
		res := e.settleAttempt(ctx, order, actor, false, enums.PaymentReasonPaymentFailed, map[string]any{"charge_ref": evt.ChargeRef})
		return GatewayResult{Reason: res.Reason, Order: order}, nil
	case enums.GatewayEventChargeExpired:
		return e.expireCharge(ctx, evt, actor)
	case enums.GatewayEventRefundIssued:
		return e.applyRefund(ctx, evt, actor)
	default:
		return GatewayResult{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown gateway event kind")
	}
}

func (e *Engine) expireCharge(ctx context.Context, evt gateway.Event, actor string) (GatewayResult, error) {
	guard := func(order *models.Order) error {
		if order.Status != enums.OrderStatusWaitingPayment {
			return errNotEligible
		}
		return nil
	}
	order, changed, err := e.transition(ctx, evt.OrderRef, enums.OrderStatusCancelled, enums.TriggerGatewayExpiry, actor,
		TransitionMeta{Reason: "gateway charge expired"}, guard)
	switch {
	case err == errNotEligible:
		e.record(ctx, &models.AuditEvent{
			OrderRef:   order.Ref,
			Action:     actionGateway,
			Actor:      actor,
			Trigger:    enums.TriggerGatewayExpiry,
			FromStatus: order.Status,
			ToStatus:   order.Status,
			Reason:     string(enums.PaymentReasonOrderNotPayable),
			Details:    map[string]any{"charge_ref": evt.ChargeRef},
		})
		return GatewayResult{Reason: enums.PaymentReasonOrderNotPayable, Order: order}, nil
	case err != nil:
		return GatewayResult{}, err
	}
	return GatewayResult{Applied: changed, Order: order}, nil
}

// applyRefund adds the refund to the cumulative refunded amount. The order
// becomes REFUNDED once that reaches the accepted charge, PARTIALLY_REFUNDED before.
// A refund ref is applied once; the gateway reports the same refund under
// several deliveries (created, then updated).
func (e *Engine) applyRefund(ctx context.Context, evt gateway.Event, actor string) (GatewayResult, error) {
	if !evt.Amount.IsPositive() {
		return GatewayResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	details := map[string]any{
		"refund_ref":    evt.RefundRef,
		"charge_ref":    evt.ChargeRef,
		"refund_amount": evt.Amount.String(),
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		order, err := e.orderForRefund(ctx, evt)
		if err != nil {
			return GatewayResult{}, err
		}
		ctx := e.logg.WithOrderRef(ctx, order.Ref)

		if evt.RefundRef != "" && order.HasRefund(evt.RefundRef) {
			e.logg.Info(e.logg.WithField(ctx, "refund_ref", evt.RefundRef), "refund already applied")
			e.record(ctx, &models.AuditEvent{
				OrderRef:   order.Ref,
				Action:     actionRefund,
				Actor:      actor,
				Trigger:    enums.TriggerGatewayRefund,
				FromStatus: order.Status,
				ToStatus:   order.Status,
				Reason:     reasonRefundAlreadyApplied,
				Details:    details,
			})
			return GatewayResult{Order: order}, nil
		}

		refundedTotal := order.RefundedAmount.Add(evt.Amount)
		charged := order.AmountDue()
		if order.PaymentEvidence != nil && order.PaymentEvidence.Amount.IsPositive() {
			charged = order.PaymentEvidence.Amount
		}
		target := enums.OrderStatusPartiallyRefunded
		if refundedTotal.GreaterThanOrEqual(charged) {
			target = enums.OrderStatusRefunded
		}

		next := order.Clone()
		next.RefundedAmount = refundedTotal
		if evt.RefundRef != "" {
			next.RefundRefs = append(next.RefundRefs, evt.RefundRef)
		}
		next.UpdatedAt = e.now()
		next.Version++

		if order.Status == enums.OrderStatusPartiallyRefunded && target == enums.OrderStatusPartiallyRefunded {
			// another partial refund: money moved but the status holds
			if err := e.orders.CompareAndPut(ctx, next, order.Status, order.Version); err != nil {
				if errIsConflict(err) {
					continue
				}
				return GatewayResult{}, err
			}
			e.syncIndex(ctx, next)
			e.record(ctx, &models.AuditEvent{
				OrderRef:   next.Ref,
				Action:     actionRefund,
				Actor:      actor,
				Trigger:    enums.TriggerGatewayRefund,
				FromStatus: order.Status,
				ToStatus:   next.Status,
				Accepted:   true,
				Details:    details,
			})
			e.triggerExport()
			return GatewayResult{Applied: true, Order: next}, nil
		}

		if err := CheckTransition(order, target, enums.TriggerGatewayRefund); err != nil {
			e.rejectTransition(ctx, order, target, enums.TriggerGatewayRefund, actor, err)
			return GatewayResult{Order: order}, nil
		}
		next.Status = target
		if err := e.orders.CompareAndPut(ctx, next, order.Status, order.Version); err != nil {
			if errIsConflict(err) {
				continue
			}
			return GatewayResult{}, err
		}
		e.afterTransition(ctx, order, next, enums.TriggerGatewayRefund, actor, details)
		return GatewayResult{Applied: true, Order: next}, nil
	}
	return GatewayResult{}, pkgerrors.Wrap(pkgerrors.CodeConflict, orders.ErrStatusConflict, "order kept changing concurrently")
}

func (e *Engine) orderForRefund(ctx context.Context, evt gateway.Event) (*models.Order, error) {
	if evt.OrderRef != "" {
		return e.orders.Get(ctx, evt.OrderRef)
	}
	if evt.ChargeRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund has neither order ref nor charge ref")
	}
	matches, err := e.orders.List(ctx, orders.Filter{GatewayRef: evt.ChargeRef, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, orders.ErrNotFound, "no order for refunded charge")
	}
	return &matches[0], nil
}
