package reconciliation

import (
	"testing"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionClosure(t *testing.T) {
	allowed := map[edge][]enums.TransitionTrigger{
		{waiting, paid}:         {enums.TriggerPayment},
		{waiting, cancelled}:    {enums.TriggerAdmin, enums.TriggerExpiry, enums.TriggerGatewayExpiry},
		{paid, processing}:      {enums.TriggerAdmin},
		{paid, ready}:           {enums.TriggerAdmin, enums.TriggerPickup},
		{paid, shipped}:         {enums.TriggerAdmin},
		{paid, completed}:       {enums.TriggerAdmin},
		{paid, cancelled}:       {enums.TriggerAdmin},
		{processing, ready}:     {enums.TriggerAdmin},
		{processing, shipped}:   {enums.TriggerAdmin},
		{processing, completed}: {enums.TriggerAdmin},
		{processing, cancelled}: {enums.TriggerAdmin},
		{ready, shipped}:        {enums.TriggerAdmin},
		{ready, completed}:      {enums.TriggerAdmin},
		{ready, cancelled}:      {enums.TriggerAdmin},
		{shipped, completed}:    {enums.TriggerAdmin},
		{paid, refunded}:        {enums.TriggerGatewayRefund},
		{paid, partial}:         {enums.TriggerGatewayRefund},
		{processing, refunded}:  {enums.TriggerGatewayRefund},
		{processing, partial}:   {enums.TriggerGatewayRefund},
		{ready, refunded}:       {enums.TriggerGatewayRefund},
		{ready, partial}:        {enums.TriggerGatewayRefund},
		{shipped, refunded}:     {enums.TriggerGatewayRefund},
		{shipped, partial}:      {enums.TriggerGatewayRefund},
		{cancelled, refunded}:   {enums.TriggerGatewayRefund},
		{cancelled, partial}:    {enums.TriggerGatewayRefund},
		{partial, refunded}:     {enums.TriggerGatewayRefund},
	}
	contains := func(list []enums.TransitionTrigger, trigger enums.TransitionTrigger) bool {
		for _, candidate := range list {
			if candidate == trigger {
				return true
			}
		}
		return false
	}

	for _, from := range enums.OrderStatuses() {
		for _, to := range enums.OrderStatuses() {
			for _, trigger := range enums.TransitionTriggers() {
				want := contains(allowed[edge{from, to}], trigger)
				got := CanTransition(from, to, trigger)
				if got != want {
					t.Errorf("CanTransition(%s, %s, %s) = %v, want %v", from, to, trigger, got, want)
				}
			}
		}
	}
}

func TestTerminalStatusesOnlyLeaveThroughRefunds(t *testing.T) {
	for _, from := range []enums.OrderStatus{completed, refunded} {
		for _, to := range enums.OrderStatuses() {
			for _, trigger := range enums.TransitionTriggers() {
				assert.False(t, CanTransition(from, to, trigger), "%s -> %s via %s", from, to, trigger)
			}
		}
	}
}

func TestCheckTransitionCancelledRefundNeedsPayment(t *testing.T) {
	order := &models.Order{Ref: "ORD-1", Status: cancelled}

	err := CheckTransition(order, refunded, enums.TriggerGatewayRefund)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	order.PaymentEvidence = &models.PaymentEvidence{Kind: enums.EvidenceKindSlip, Amount: decimal.NewFromInt(340)}
	assert.NoError(t, CheckTransition(order, refunded, enums.TriggerGatewayRefund))
}

func TestCheckTransitionRejectsWrongTrigger(t *testing.T) {
	order := &models.Order{Ref: "ORD-1", Status: waiting}

	err := CheckTransition(order, paid, enums.TriggerAdmin)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "WAITING_PAYMENT", details["from"])
	assert.Equal(t, "admin", details["trigger"])
}
