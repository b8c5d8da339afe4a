package gateway

import (
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/shopspring/decimal"
)

const ProviderSquare = "square"

// Event is a provider callback normalized into the shape reconciliation consumes.
type Event struct {
	DeliveryID string
	Provider   string
	Kind       enums.GatewayEventKind
	// OrderRef is empty for refunds; those resolve through ChargeRef.
	OrderRef  string
	ChargeRef string
	RefundRef string
	Amount    decimal.Decimal
	Currency  string
}
