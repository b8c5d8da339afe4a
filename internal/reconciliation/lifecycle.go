package reconciliation

import (
	"context"
	"net/mail"
	"strings"

	"github.com/angelmondragon/storefront-orders/internal/customerindex"
	"github.com/angelmondragon/storefront-orders/internal/notifications"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/shopspring/decimal"
)

const maxRefAttempts = 3

type CreateOrderInput struct {
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Currency        enums.Currency
	Cart            []models.LineItem
	DiscountAmount  decimal.Decimal
}

// ContactUpdate edits the contact snapshot. Nil fields are left unchanged.
type ContactUpdate struct {
	Name    *string
	Phone   *string
	Address *string
}

// CreateOrder validates the cart, assigns a fresh ref and stores the order as WAITING_PAYMENT.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	email := customerindex.NormalizeEmail(in.CustomerEmail)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid customer email required")
	}
	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	currency := in.Currency
	if currency == "" {
		currency = enums.CurrencyTHB
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if in.DiscountAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must be non-negative")
	}

	now := e.now()
	order := &models.Order{
		Status:          enums.OrderStatusWaitingPayment,
		Partition:       orders.PartitionFor(now),
		CustomerEmail:   email,
		CustomerKey:     customerindex.KeyFor(email),
		CustomerName:    name,
		CustomerPhone:   optional(in.CustomerPhone),
		CustomerAddress: optional(in.CustomerAddress),
		Currency:        currency,
		DiscountAmount:  in.DiscountAmount,
		RefundedAmount:  decimal.Zero,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := orders.ApplyCart(order, in.Cart); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < maxRefAttempts; attempt++ {
		order.Ref = orders.NewRef(now)
		err = e.orders.Create(ctx, order)
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	ctx = e.logg.WithOrderRef(ctx, order.Ref)
	e.logg.Info(ctx, "order created")
	e.syncIndex(ctx, order)
	e.record(ctx, &models.AuditEvent{
		OrderRef: order.Ref,
		Action:   actionCreated,
		Actor:    enums.ActorCustomer,
		ToStatus: order.Status,
		Accepted: true,
		Details:  map[string]any{"total_amount": order.TotalAmount.String()},
	})
	e.notifier.Notify(ctx, notifications.FromOrder(order, "", "", enums.ActorCustomer, ""))
	e.triggerExport()
	return order, nil
}

// EditCart replaces the cart of an open order on behalf of an administrator
// and recomputes the total. A nil discount keeps the current one.
func (e *Engine) EditCart(ctx context.Context, ref string, items []models.LineItem, discount *decimal.Decimal, adminEmail string) (*models.Order, error) {
	if err := e.requireAdmin(ctx, adminEmail); err != nil {
		return nil, err
	}
	if discount != nil && discount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount must be non-negative")
	}
	return e.edit(ctx, ref, enums.AdminActor(adminEmail), actionCartEdit, func(order *models.Order) error {
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart cannot change once the order is closed")
		}
		if discount != nil {
			order.DiscountAmount = *discount
		}
		return orders.ApplyCart(order, items)
	})
}

// UpdateContact edits the customer's name, phone or address. The email is immutable.
func (e *Engine) UpdateContact(ctx context.Context, ref string, update ContactUpdate, actor string) (*models.Order, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name cannot be blank")
	}
	return e.edit(ctx, ref, actor, actionContact, func(order *models.Order) error {
		if update.Name != nil {
			order.CustomerName = strings.TrimSpace(*update.Name)
		}
		if update.Phone != nil {
			order.CustomerPhone = optional(*update.Phone)
		}
		if update.Address != nil {
			order.CustomerAddress = optional(*update.Address)
		}
		return nil
	})
}

// edit applies mutate under a conditional write on the status and version it read.
func (e *Engine) edit(ctx context.Context, ref, actor, action string, mutate func(order *models.Order) error) (*models.Order, error) {
	ctx = e.logg.WithOrderRef(ctx, ref)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		order, err := e.orders.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		next := order.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = e.now()
		next.Version++
		if err := e.orders.CompareAndPut(ctx, next, order.Status, order.Version); err != nil {
			if errIsConflict(err) {
				continue
			}
			return nil, err
		}
		e.syncIndex(ctx, next)
		e.record(ctx, &models.AuditEvent{
			OrderRef:   next.Ref,
			Action:     action,
			Actor:      actor,
			FromStatus: order.Status,
			ToStatus:   next.Status,
			Accepted:   true,
			Details:    map[string]any{"total_amount": next.TotalAmount.String()},
		})
		e.triggerExport()
		return next, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, orders.ErrStatusConflict, "order kept changing concurrently")
}

// CustomerOrders returns the customer's indexed order summaries, newest first.
func (e *Engine) CustomerOrders(ctx context.Context, email string) ([]customerindex.Summary, error) {
	if customerindex.NormalizeEmail(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	return e.index.Get(ctx, customerindex.KeyFor(email))
}

// RebuildCustomerIndex recomputes the customer's index entry from the order store.
func (e *Engine) RebuildCustomerIndex(ctx context.Context, email string) (int, error) {
	if customerindex.NormalizeEmail(email) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	return e.index.Rebuild(ctx, customerindex.KeyFor(email))
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
