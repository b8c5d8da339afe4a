package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/square"
	sq "github.com/square/square-go-sdk"
)

type paymentLookup interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareNormalizer turns Square webhook deliveries into gateway events.
// With a lookup configured, successful charges are re-read from Square
// so a forged or stale payload cannot mark an order paid.
type SquareNormalizer struct {
	lookup paymentLookup
}

func NewSquareNormalizer(lookup paymentLookup) *SquareNormalizer {
	return &SquareNormalizer{lookup: lookup}
}

type squareEnvelope struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Data       struct {
		Type   string          `json:"type"`
		ID     string          `json:"id"`
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type squareRefund struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	PaymentID   string    `json:"payment_id"`
	AmountMoney *sq.Money `json:"amount_money"`
}

// Normalize decodes one delivery. ok is false for event types that carry no
// reconciliation meaning (pending payments, unrelated resources).
func (n *SquareNormalizer) Normalize(ctx context.Context, body []byte) (Event, bool, error) {
	var envelope squareEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Event{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event")
	}
	deliveryID := strings.TrimSpace(envelope.EventID)
	if deliveryID == "" {
		return Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "square event id missing")
	}

	switch strings.ToLower(envelope.Type) {
	case "payment.created", "payment.updated":
		var object struct {
			Payment *sq.Payment `json:"payment"`
		}
		if err := json.Unmarshal(envelope.Data.Object, &object); err != nil || object.Payment == nil {
			return Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "square payment payload missing")
		}
		return n.paymentEvent(ctx, deliveryID, object.Payment)
	case "refund.created", "refund.updated":
		var object struct {
			Refund *squareRefund `json:"refund"`
		}
		if err := json.Unmarshal(envelope.Data.Object, &object); err != nil || object.Refund == nil {
			return Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "square refund payload missing")
		}
		return refundEvent(deliveryID, envelope.Data.ID, object.Refund)
	default:
		return Event{}, false, nil
	}
}

func (n *SquareNormalizer) paymentEvent(ctx context.Context, deliveryID string, payment *sq.Payment) (Event, bool, error) {
	kind, ok := squarePaymentKind(deref(payment.GetStatus()))
	if !ok {
		return Event{}, false, nil
	}
	if kind == enums.GatewayEventChargeSucceeded && n.lookup != nil {
		fresh, err := n.lookup.GetPayment(ctx, deref(payment.GetID()))
		if err != nil {
			return Event{}, false, err
		}
		if fresh != nil {
			payment = fresh
		}
		if kind, ok = squarePaymentKind(deref(payment.GetStatus())); !ok {
			return Event{}, false, nil
		}
	}

	ref := strings.TrimSpace(deref(payment.GetReferenceID()))
	if ref == "" {
		return Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "square payment has no order reference")
	}
	amount, currency := square.MoneyAmount(payment.GetAmountMoney())
	return Event{
		DeliveryID: deliveryID,
		Provider:   ProviderSquare,
		Kind:       kind,
		OrderRef:   ref,
		ChargeRef:  deref(payment.GetID()),
		Amount:     amount,
		Currency:   currency,
	}, true, nil
}

func refundEvent(deliveryID, dataID string, refund *squareRefund) (Event, bool, error) {
	if !strings.EqualFold(refund.Status, "COMPLETED") {
		return Event{}, false, nil
	}
	if strings.TrimSpace(refund.PaymentID) == "" {
		return Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "square refund has no payment id")
	}
	refundID := strings.TrimSpace(dataID)
	if refundID == "" {
		refundID = refund.ID
	}
	amount, currency := square.MoneyAmount(refund.AmountMoney)
	return Event{
		DeliveryID: deliveryID,
		Provider:   ProviderSquare,
		Kind:       enums.GatewayEventRefundIssued,
		ChargeRef:  refund.PaymentID,
		RefundRef:  refundID,
		Amount:     amount,
		Currency:   currency,
	}, true, nil
}

func squarePaymentKind(status string) (enums.GatewayEventKind, bool) {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return enums.GatewayEventChargeSucceeded, true
	case "FAILED":
		return enums.GatewayEventChargeFailed, true
	case "CANCELED":
		return enums.GatewayEventChargeExpired, true
	default:
		return "", false
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
