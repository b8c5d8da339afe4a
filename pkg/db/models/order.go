package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// Order is the aggregate root for a storefront purchase.
type Order struct {
	Ref              string            `gorm:"column:ref;primaryKey"`
	Partition        string            `gorm:"column:partition_key;not null;index"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	CustomerEmail    string            `gorm:"column:customer_email;not null"`
	CustomerKey      string            `gorm:"column:customer_key;not null;index"`
	CustomerName     string            `gorm:"column:customer_name;not null"`
	CustomerPhone    *string           `gorm:"column:customer_phone"`
	CustomerAddress  *string           `gorm:"column:customer_address"`
	Currency         enums.Currency    `gorm:"column:currency;type:text;not null;default:'THB'"`
	Cart             []LineItem        `gorm:"column:cart;type:jsonb;serializer:json"`
	DiscountAmount   decimal.Decimal   `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount      decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	RefundedAmount   decimal.Decimal   `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	RefundRefs       []string          `gorm:"column:refund_refs;type:jsonb;serializer:json"`
	PaymentEvidence  *PaymentEvidence  `gorm:"column:payment_evidence;type:jsonb;serializer:json"`
	GatewayRef       *string           `gorm:"column:gateway_ref;index"`
	TrackingNumber   *string           `gorm:"column:tracking_number"`
	ShippingProvider *string           `gorm:"column:shipping_provider"`
	Pickup           *Pickup           `gorm:"column:pickup;type:jsonb;serializer:json"`
	CancelReason     *string           `gorm:"column:cancel_reason"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	CancelledBy      *string           `gorm:"column:cancelled_by"`
	Version          int64             `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time         `gorm:"column:created_at;not null;index;autoCreateTime:false"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Order) TableName() string { return "orders" }

// AmountDue is the cart total less the accepted discount.
func (o *Order) AmountDue() decimal.Decimal {
	due := o.TotalAmount.Sub(o.DiscountAmount)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// ItemCount sums quantities across the cart.
func (o *Order) ItemCount() int {
	total := 0
	for _, item := range o.Cart {
		total += item.Quantity
	}
	return total
}

// ContainsProduct reports whether any cart line references productID.
func (o *Order) ContainsProduct(productID string) bool {
	for _, item := range o.Cart {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// HasRefund reports whether the gateway refund with refundRef was already applied.
func (o *Order) HasRefund(refundRef string) bool {
	for _, ref := range o.RefundRefs {
		if ref == refundRef {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	out.Cart = make([]LineItem, len(o.Cart))
	for i, item := range o.Cart {
		out.Cart[i] = item
		if item.Options != nil {
			out.Cart[i].Options = make(map[string]string, len(item.Options))
			for k, v := range item.Options {
				out.Cart[i].Options[k] = v
			}
		}
	}
	if o.RefundRefs != nil {
		out.RefundRefs = append([]string(nil), o.RefundRefs...)
	}
	if o.PaymentEvidence != nil {
		evidence := *o.PaymentEvidence
		out.PaymentEvidence = &evidence
	}
	if o.Pickup != nil {
		pickup := *o.Pickup
		out.Pickup = &pickup
	}
	return &out
}

// LineItem is one cart line.
type LineItem struct {
	ProductID string            `json:"productId"`
	Size      string            `json:"size,omitempty"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unitPrice"`
	Options   map[string]string `json:"options,omitempty"`
}

// Subtotal returns unitPrice × quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PaymentEvidence is the single accepted proof of payment for an order.
type PaymentEvidence struct {
	Kind            enums.EvidenceKind  `json:"kind"`
	Fingerprint     string              `json:"fingerprint"`
	GatewayProvider string              `json:"gatewayProvider,omitempty"`
	GatewayRef      string              `json:"gatewayRef,omitempty"`
	Amount          decimal.Decimal     `json:"amount"`
	Reason          enums.PaymentReason `json:"reason"`
	RawRef          string              `json:"rawRef,omitempty"`
	VerifiedAt      time.Time           `json:"verifiedAt"`
}

// Pickup records an in-store pickup enablement.
type Pickup struct {
	ProductID string    `json:"productId"`
	Location  string    `json:"location,omitempty"`
	EnabledAt time.Time `json:"enabledAt"`
}
