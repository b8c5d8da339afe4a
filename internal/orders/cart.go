package orders

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/shopspring/decimal"
)

const maxLineQuantity = 999

// ValidateCart rejects empty carts and malformed lines.
func ValidateCart(items []models.LineItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart must contain at least one item")
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart line %d: product id required", i))
		}
		if item.Quantity <= 0 || item.Quantity > maxLineQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart line %d: quantity out of range", i))
		}
		if item.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart line %d: unit price must be non-negative", i))
		}
	}
	return nil
}

// CartTotal returns Σ(unitPrice × quantity).
func CartTotal(items []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ApplyCart replaces the order cart and recomputes totalAmount, clamping the
// discount so the amount due never goes negative.
func ApplyCart(order *models.Order, items []models.LineItem) error {
	if err := ValidateCart(items); err != nil {
		return err
	}
	cloned := make([]models.LineItem, len(items))
	copy(cloned, items)
	order.Cart = cloned
	order.TotalAmount = CartTotal(cloned)
	if order.DiscountAmount.GreaterThan(order.TotalAmount) {
		order.DiscountAmount = order.TotalAmount
	}
	return nil
}
