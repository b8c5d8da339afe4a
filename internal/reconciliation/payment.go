package reconciliation

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-orders/internal/evidence"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/verifier"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// PaymentResult is the answer to one payment attempt. A rejection is not an error.
type PaymentResult struct {
	Accepted bool
	Reason   enums.PaymentReason
	Message  string
	Order    *models.Order
}

func paymentResult(accepted bool, reason enums.PaymentReason, order *models.Order) PaymentResult {
	return PaymentResult{Accepted: accepted, Reason: reason, Message: reason.Message(), Order: order}
}

// RequestPayment verifies evidence for an order and, when accepted, commits
// WAITING_PAYMENT -> PAID. Replays and races resolve to ALREADY_PAID.
func (e *Engine) RequestPayment(ctx context.Context, ref string, ev verifier.Evidence, actor string) (PaymentResult, error) {
	if !ev.Kind.IsValid() {
		return PaymentResult{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown evidence kind")
	}
	ctx = e.logg.WithOrderRef(ctx, ref)
	order, err := e.orders.Get(ctx, ref)
	if err != nil {
		return PaymentResult{}, err
	}
	if order.Status.IsPaidOrLater() {
		return e.settleAttempt(ctx, order, actor, true, enums.PaymentReasonAlreadyPaid, nil), nil
	}
	if order.Status != enums.OrderStatusWaitingPayment {
		return e.settleAttempt(ctx, order, actor, false, enums.PaymentReasonOrderNotPayable, nil), nil
	}

	fingerprint := fingerprintFor(ev)
	if fingerprint != "" {
		owner, found, err := e.evidence.Owner(ctx, fingerprint)
		if err != nil {
			return PaymentResult{}, err
		}
		if found && owner != ref {
			return e.settleAttempt(ctx, order, actor, false, enums.PaymentReasonDuplicateSlip, map[string]any{"claimed_by": owner}), nil
		}
	}

	outcome, err := e.verifier.Verify(ctx, ev, order.AmountDue())
	if err != nil {
		e.logg.Error(ctx, "payment verification failed", err)
		outcome = verifier.Outcome{Reason: enums.PaymentReasonInconclusive}
	}
	if !outcome.Accepted || !outcome.AmountMatched || fingerprint == "" {
		reason := outcome.Reason
		if reason == "" || reason == enums.PaymentReasonVerified {
			reason = enums.PaymentReasonUnreadable
		}
		return e.settleAttempt(ctx, order, actor, false, reason, outcomeDetails(outcome)), nil
	}

	owner, claimed, err := e.evidence.Claim(ctx, fingerprint, ref)
	if err != nil {
		return PaymentResult{}, err
	}
	if !claimed {
		return e.settleAttempt(ctx, order, actor, false, enums.PaymentReasonDuplicateSlip, map[string]any{"claimed_by": owner}), nil
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		next := e.markPaid(order, ev, outcome, fingerprint)
		err := e.orders.CompareAndPut(ctx, next, enums.OrderStatusWaitingPayment, order.Version)
		if err == nil {
			e.metrics.IncPaymentAttempt(string(enums.PaymentReasonVerified))
			details := outcomeDetails(outcome)
			details["reason"] = string(enums.PaymentReasonVerified)
			details["evidence_kind"] = string(ev.Kind)
			e.afterTransition(ctx, order, next, enums.TriggerPayment, actor, details)
			return paymentResult(true, enums.PaymentReasonVerified, next), nil
		}
		if !errors.Is(err, orders.ErrStatusConflict) {
			e.releaseEvidence(ctx, fingerprint, ref)
			return PaymentResult{}, err
		}
		current, res, settled, err := e.resolvePaymentConflict(ctx, order, outcome, fingerprint, actor)
		if err != nil || settled {
			return res, err
		}
		order = current
	}
	e.releaseEvidence(ctx, fingerprint, ref)
	return PaymentResult{}, pkgerrors.Wrap(pkgerrors.CodeConflict, orders.ErrStatusConflict, "order kept changing concurrently")
}

// resolvePaymentConflict handles losing the conditional write. A payment that
// won decides the answer and our claim is dropped unless the winner used it.
// An order still waiting for payment is committed again only while the amount
// due is the one the evidence was verified against.
func (e *Engine) resolvePaymentConflict(ctx context.Context, read *models.Order, outcome verifier.Outcome, fingerprint, actor string) (*models.Order, PaymentResult, bool, error) {
	current, err := e.orders.Get(ctx, read.Ref)
	if err != nil {
		e.releaseEvidence(ctx, fingerprint, read.Ref)
		return nil, PaymentResult{}, true, err
	}
	if current.PaymentEvidence == nil || current.PaymentEvidence.Fingerprint != fingerprint {
		if current.Status == enums.OrderStatusWaitingPayment && current.AmountDue().Equal(read.AmountDue()) {
			return current, PaymentResult{}, false, nil
		}
		e.releaseEvidence(ctx, fingerprint, read.Ref)
	}
	switch {
	case current.Status.IsPaidOrLater():
		return current, e.settleAttempt(ctx, current, actor, true, enums.PaymentReasonAlreadyPaid, nil), true, nil
	case current.Status == enums.OrderStatusWaitingPayment:
		details := outcomeDetails(outcome)
		details["amount_due"] = current.AmountDue().String()
		return current, e.settleAttempt(ctx, current, actor, false, enums.PaymentReasonAmountMismatch, details), true, nil
	default:
		return current, e.settleAttempt(ctx, current, actor, false, enums.PaymentReasonOrderNotPayable, nil), true, nil
	}
}

func (e *Engine) markPaid(order *models.Order, ev verifier.Evidence, outcome verifier.Outcome, fingerprint string) *models.Order {
	now := e.now()
	next := order.Clone()
	next.Status = enums.OrderStatusPaid
	next.UpdatedAt = now
	next.Version++
	next.PaymentEvidence = &models.PaymentEvidence{
		Kind:        ev.Kind,
		Fingerprint: fingerprint,
		Amount:      outcome.Amount,
		Reason:      enums.PaymentReasonVerified,
		RawRef:      outcome.RawRef,
		VerifiedAt:  now,
	}
	if ev.Kind == enums.EvidenceKindGatewayCharge {
		next.PaymentEvidence.GatewayProvider = ev.Provider
		next.PaymentEvidence.GatewayRef = ev.ChargeID
		chargeID := ev.ChargeID
		next.GatewayRef = &chargeID
	}
	return next
}

// settleAttempt records a payment attempt that did not change the order.
func (e *Engine) settleAttempt(ctx context.Context, order *models.Order, actor string, accepted bool, reason enums.PaymentReason, details map[string]any) PaymentResult {
	e.metrics.IncPaymentAttempt(string(reason))
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"status": string(order.Status),
		"reason": string(reason),
		"actor":  actor,
	})
	e.logg.Info(logCtx, "payment attempt settled without transition")
	e.record(ctx, &models.AuditEvent{
		OrderRef:   order.Ref,
		Action:     actionPayment,
		Actor:      actor,
		Trigger:    enums.TriggerPayment,
		FromStatus: order.Status,
		ToStatus:   order.Status,
		Accepted:   accepted,
		Reason:     string(reason),
		Details:    details,
	})
	return paymentResult(accepted, reason, order)
}

func (e *Engine) releaseEvidence(ctx context.Context, fingerprint, ref string) {
	if err := e.evidence.Release(ctx, fingerprint, ref); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "evidence claim release failed")
	}
}

func fingerprintFor(ev verifier.Evidence) string {
	switch ev.Kind {
	case enums.EvidenceKindSlip:
		if len(ev.Image) == 0 {
			return ""
		}
		return evidence.SlipFingerprint(ev.Image)
	case enums.EvidenceKindGatewayCharge:
		if ev.ChargeID == "" {
			return ""
		}
		return evidence.GatewayFingerprint(ev.Provider, ev.ChargeID)
	default:
		return ""
	}
}

func outcomeDetails(outcome verifier.Outcome) map[string]any {
	details := map[string]any{}
	if !outcome.Amount.IsZero() {
		details["amount"] = outcome.Amount.String()
	}
	if outcome.RawRef != "" {
		details["raw_ref"] = outcome.RawRef
	}
	return details
}
