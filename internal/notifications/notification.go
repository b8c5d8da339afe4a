package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventOrderStatusChanged = "order.status_changed"

// Notification describes one accepted order transition for customer-facing delivery.
type Notification struct {
	ID            uuid.UUID               `json:"id"`
	OrderRef      string                  `json:"orderRef"`
	CustomerEmail string                  `json:"customerEmail"`
	CustomerName  string                  `json:"customerName"`
	From          enums.OrderStatus       `json:"from,omitempty"`
	To            enums.OrderStatus       `json:"to"`
	Trigger       enums.TransitionTrigger `json:"trigger,omitempty"`
	Actor         string                  `json:"actor"`
	AmountDue     decimal.Decimal         `json:"amountDue"`
	Currency      enums.Currency          `json:"currency"`
	Reason        string                  `json:"reason,omitempty"`
	OccurredAt    time.Time               `json:"occurredAt"`
}

// FromOrder builds the notification for order having just moved out of from.
func FromOrder(order *models.Order, from enums.OrderStatus, trigger enums.TransitionTrigger, actor, reason string) Notification {
	return Notification{
		ID:            uuid.New(),
		OrderRef:      order.Ref,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		From:          from,
		To:            order.Status,
		Trigger:       trigger,
		Actor:         actor,
		AmountDue:     order.AmountDue(),
		Currency:      order.Currency,
		Reason:        reason,
		OccurredAt:    order.UpdatedAt,
	}
}

// Sink delivers a notification to an outside channel.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}
