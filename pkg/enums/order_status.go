package enums

import "fmt"

// OrderStatus tracks the lifecycle of a storefront order.
type OrderStatus string

const (
	OrderStatusWaitingPayment    OrderStatus = "WAITING_PAYMENT"
	OrderStatusPaid              OrderStatus = "PAID"
	OrderStatusProcessing        OrderStatus = "PROCESSING"
	OrderStatusReady             OrderStatus = "READY"
	OrderStatusShipped           OrderStatus = "SHIPPED"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusRefunded          OrderStatus = "REFUNDED"
	OrderStatusPartiallyRefunded OrderStatus = "PARTIALLY_REFUNDED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusWaitingPayment,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusReady,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusPartiallyRefunded,
}

// OrderStatuses returns every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave the status.
// CANCELLED still admits a gateway refund for previously paid orders.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded, OrderStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// IsPaidOrLater reports whether the order has accepted payment evidence in its past.
func (s OrderStatus) IsPaidOrLater() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusReady, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusRefunded, OrderStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
