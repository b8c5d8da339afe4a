package controllers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/internal/bulk"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

type lineItemRequest struct {
	ProductID string            `json:"product_id" validate:"required,max=64"`
	Size      string            `json:"size" validate:"max=32"`
	Quantity  int               `json:"quantity" validate:"required,min=1,max=999"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Options   map[string]string `json:"options"`
}

func (l lineItemRequest) toModel() models.LineItem {
	return models.LineItem{
		ProductID: l.ProductID,
		Size:      l.Size,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		Options:   l.Options,
	}
}

func lineItems(items []lineItemRequest) []models.LineItem {
	out := make([]models.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.toModel())
	}
	return out
}

type createOrderRequest struct {
	CustomerEmail   string            `json:"customer_email" validate:"required,email,max=254"`
	CustomerName    string            `json:"customer_name" validate:"required,max=120"`
	CustomerPhone   string            `json:"customer_phone" validate:"max=32"`
	CustomerAddress string            `json:"customer_address" validate:"max=500"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	Cart            []lineItemRequest `json:"cart" validate:"required,min=1,max=100,dive"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
}

func (r createOrderRequest) toInput() reconciliation.CreateOrderInput {
	return reconciliation.CreateOrderInput{
		CustomerEmail:   r.CustomerEmail,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		Currency:        enums.Currency(strings.ToUpper(r.Currency)),
		Cart:            lineItems(r.Cart),
		DiscountAmount:  r.DiscountAmount,
	}
}

type contactRequest struct {
	CustomerEmail   string  `json:"customer_email" validate:"omitempty,email"`
	CustomerName    *string `json:"customer_name" validate:"omitempty,max=120"`
	CustomerPhone   *string `json:"customer_phone" validate:"omitempty,max=32"`
	CustomerAddress *string `json:"customer_address" validate:"omitempty,max=500"`
}

func (r contactRequest) toUpdate() reconciliation.ContactUpdate {
	return reconciliation.ContactUpdate{
		Name:    r.CustomerName,
		Phone:   r.CustomerPhone,
		Address: r.CustomerAddress,
	}
}

type transitionRequest struct {
	Status           string `json:"status" validate:"required"`
	Reason           string `json:"reason" validate:"max=500"`
	TrackingNumber   string `json:"tracking_number" validate:"max=64"`
	ShippingProvider string `json:"shipping_provider" validate:"max=64"`
}

type cartEditRequest struct {
	Cart           []lineItemRequest `json:"cart" validate:"required,min=1,max=100,dive"`
	DiscountAmount *decimal.Decimal  `json:"discount_amount"`
}

type pickupRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Location  string `json:"location" validate:"max=200"`
}

type rebuildIndexRequest struct {
	CustomerEmail string `json:"customer_email" validate:"required,email"`
}

type lineItemResponse struct {
	ProductID string            `json:"product_id"`
	Size      string            `json:"size,omitempty"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Options   map[string]string `json:"options,omitempty"`
}

type paymentResponse struct {
	Kind       enums.EvidenceKind `json:"kind"`
	Amount     decimal.Decimal    `json:"amount"`
	Provider   string             `json:"provider,omitempty"`
	VerifiedAt time.Time          `json:"verified_at"`
}

type pickupResponse struct {
	ProductID string    `json:"product_id"`
	Location  string    `json:"location,omitempty"`
	EnabledAt time.Time `json:"enabled_at"`
}

type orderResponse struct {
	Ref              string             `json:"ref"`
	Status           enums.OrderStatus  `json:"status"`
	CustomerEmail    string             `json:"customer_email"`
	CustomerName     string             `json:"customer_name"`
	CustomerPhone    *string            `json:"customer_phone,omitempty"`
	CustomerAddress  *string            `json:"customer_address,omitempty"`
	Currency         enums.Currency     `json:"currency"`
	Cart             []lineItemResponse `json:"cart"`
	TotalAmount      decimal.Decimal    `json:"total_amount"`
	DiscountAmount   decimal.Decimal    `json:"discount_amount"`
	AmountDue        decimal.Decimal    `json:"amount_due"`
	RefundedAmount   decimal.Decimal    `json:"refunded_amount"`
	Payment          *paymentResponse   `json:"payment,omitempty"`
	TrackingNumber   *string            `json:"tracking_number,omitempty"`
	ShippingProvider *string            `json:"shipping_provider,omitempty"`
	Pickup           *pickupResponse    `json:"pickup,omitempty"`
	CancelReason     *string            `json:"cancel_reason,omitempty"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
	Version          int64              `json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func newOrderResponse(order *models.Order) *orderResponse {
	if order == nil {
		return nil
	}
	resp := &orderResponse{
		Ref:              order.Ref,
		Status:           order.Status,
		CustomerEmail:    order.CustomerEmail,
		CustomerName:     order.CustomerName,
		CustomerPhone:    order.CustomerPhone,
		CustomerAddress:  order.CustomerAddress,
		Currency:         order.Currency,
		Cart:             make([]lineItemResponse, 0, len(order.Cart)),
		TotalAmount:      order.TotalAmount,
		DiscountAmount:   order.DiscountAmount,
		AmountDue:        order.AmountDue(),
		RefundedAmount:   order.RefundedAmount,
		TrackingNumber:   order.TrackingNumber,
		ShippingProvider: order.ShippingProvider,
		CancelReason:     order.CancelReason,
		CancelledAt:      order.CancelledAt,
		Version:          order.Version,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, item := range order.Cart {
		resp.Cart = append(resp.Cart, lineItemResponse{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
			Options:   item.Options,
		})
	}
	if ev := order.PaymentEvidence; ev != nil {
		resp.Payment = &paymentResponse{
			Kind:       ev.Kind,
			Amount:     ev.Amount,
			Provider:   ev.GatewayProvider,
			VerifiedAt: ev.VerifiedAt,
		}
	}
	if p := order.Pickup; p != nil {
		resp.Pickup = &pickupResponse{ProductID: p.ProductID, Location: p.Location, EnabledAt: p.EnabledAt}
	}
	return resp
}

type paymentAttemptResponse struct {
	Accepted bool                `json:"accepted"`
	Reason   enums.PaymentReason `json:"reason"`
	Message  string              `json:"message"`
	Order    *orderResponse      `json:"order,omitempty"`
}

func newPaymentAttemptResponse(result reconciliation.PaymentResult) paymentAttemptResponse {
	return paymentAttemptResponse{
		Accepted: result.Accepted,
		Reason:   result.Reason,
		Message:  result.Message,
		Order:    newOrderResponse(result.Order),
	}
}

type auditEventResponse struct {
	Action    string                  `json:"action"`
	Actor     string                  `json:"actor"`
	Trigger   enums.TransitionTrigger `json:"trigger,omitempty"`
	From      enums.OrderStatus       `json:"from,omitempty"`
	To        enums.OrderStatus       `json:"to,omitempty"`
	Accepted  bool                    `json:"accepted"`
	Reason    string                  `json:"reason,omitempty"`
	Details   map[string]any          `json:"details,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

type adminOrderResponse struct {
	Order *orderResponse       `json:"order"`
	Audit []auditEventResponse `json:"audit"`
}

func newAdminOrderResponse(order *models.Order, events []models.AuditEvent) adminOrderResponse {
	resp := adminOrderResponse{Order: newOrderResponse(order), Audit: make([]auditEventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Audit = append(resp.Audit, auditEventResponse{
			Action:    ev.Action,
			Actor:     ev.Actor,
			Trigger:   ev.Trigger,
			From:      ev.FromStatus,
			To:        ev.ToStatus,
			Accepted:  ev.Accepted,
			Reason:    ev.Reason,
			Details:   ev.Details,
			CreatedAt: ev.CreatedAt,
		})
	}
	return resp
}

type expiryResponse struct {
	Checked   int `json:"checked"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

type bulkResponse struct {
	bulk.Result
	ProductID string `json:"product_id"`
}
