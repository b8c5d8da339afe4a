package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/shopspring/decimal"
)

func TestPubSubSinkPublishesNotification(t *testing.T) {
	var got *pubsub.Message
	sink := &PubSubSink{publish: func(_ context.Context, msg *pubsub.Message) (string, error) {
		got = msg
		return "server-1", nil
	}}

	order := &models.Order{
		Ref:           "ORD-20250101-AAAAAA",
		Status:        enums.OrderStatusPaid,
		CustomerEmail: "a@example.com",
		CustomerName:  "A",
		Currency:      enums.CurrencyTHB,
		TotalAmount:   decimal.NewFromInt(340),
		UpdatedAt:     time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	n := FromOrder(order, enums.OrderStatusWaitingPayment, enums.TriggerPayment, enums.ActorCustomer, "")
	if err := sink.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a published message")
	}
	if got.Attributes["event_type"] != EventOrderStatusChanged || got.Attributes["status"] != "PAID" {
		t.Fatalf("unexpected attributes %+v", got.Attributes)
	}
	var decoded Notification
	if err := json.Unmarshal(got.Data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.OrderRef != order.Ref || decoded.From != enums.OrderStatusWaitingPayment || !decoded.AmountDue.Equal(decimal.NewFromInt(340)) {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestNewPubSubSinkRequiresPublisher(t *testing.T) {
	if _, err := NewPubSubSink(nil); err == nil {
		t.Fatalf("expected error")
	}
}
