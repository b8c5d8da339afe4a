package reconciliation

import (
	"fmt"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

var (
	waiting    = enums.OrderStatusWaitingPayment
	paid       = enums.OrderStatusPaid
	processing = enums.OrderStatusProcessing
	ready      = enums.OrderStatusReady
	shipped    = enums.OrderStatusShipped
	completed  = enums.OrderStatusCompleted
	cancelled  = enums.OrderStatusCancelled
	refunded   = enums.OrderStatusRefunded
	partial    = enums.OrderStatusPartiallyRefunded
)

func triggers(ts ...enums.TransitionTrigger) map[enums.TransitionTrigger]struct{} {
	out := make(map[enums.TransitionTrigger]struct{}, len(ts))
	for _, t := range ts {
		out[t] = struct{}{}
	}
	return out
}

var (
	admin         = enums.TriggerAdmin
	gatewayRefund = enums.TriggerGatewayRefund
)

// transitions is the complete edge table; anything absent is rejected.
var transitions = map[edge]map[enums.TransitionTrigger]struct{}{
	{waiting, paid}:      triggers(enums.TriggerPayment),
	{waiting, cancelled}: triggers(admin, enums.TriggerExpiry, enums.TriggerGatewayExpiry),

	{paid, processing}: triggers(admin),
	{paid, ready}:      triggers(admin, enums.TriggerPickup),
	{paid, shipped}:    triggers(admin),
	{paid, completed}:  triggers(admin),
	{paid, cancelled}:  triggers(admin),

	{processing, ready}:     triggers(admin),
	{processing, shipped}:   triggers(admin),
	{processing, completed}: triggers(admin),
	{processing, cancelled}: triggers(admin),

	{ready, shipped}:   triggers(admin),
	{ready, completed}: triggers(admin),
	{ready, cancelled}: triggers(admin),

	{shipped, completed}: triggers(admin),

	{paid, refunded}:       triggers(gatewayRefund),
	{paid, partial}:        triggers(gatewayRefund),
	{processing, refunded}: triggers(gatewayRefund),
	{processing, partial}:  triggers(gatewayRefund),
	{ready, refunded}:      triggers(gatewayRefund),
	{ready, partial}:       triggers(gatewayRefund),
	{shipped, refunded}:    triggers(gatewayRefund),
	{shipped, partial}:     triggers(gatewayRefund),

	// refunds reported after an admin cancellation still land
	{cancelled, refunded}: triggers(gatewayRefund),
	{cancelled, partial}:  triggers(gatewayRefund),
	// a later refund can complete a partial one
	{partial, refunded}: triggers(gatewayRefund),
}

// CanTransition reports whether trigger may move an order from one status to another.
func CanTransition(from, to enums.OrderStatus, trigger enums.TransitionTrigger) bool {
	allowed, ok := transitions[edge{from: from, to: to}]
	if !ok {
		return false
	}
	_, ok = allowed[trigger]
	return ok
}

// CheckTransition validates a transition against the order's current state.
// Refunds out of CANCELLED additionally require the order to have been paid.
func CheckTransition(order *models.Order, to enums.OrderStatus, trigger enums.TransitionTrigger) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !CanTransition(order.Status, to, trigger) {
		return transitionNotAllowed(order.Status, to, trigger)
	}
	if order.Status == cancelled && trigger == gatewayRefund && order.PaymentEvidence == nil {
		return transitionNotAllowed(order.Status, to, trigger)
	}
	return nil
}

func transitionNotAllowed(from, to enums.OrderStatus, trigger enums.TransitionTrigger) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed from current status").
		WithDetails(map[string]any{
			"from":    string(from),
			"to":      string(to),
			"trigger": string(trigger),
			"detail":  fmt.Sprintf("%s -> %s via %s", from, to, trigger),
		})
}
