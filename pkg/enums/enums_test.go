package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, status := range OrderStatuses() {
		parsed, err := ParseOrderStatus(status.String())
		if err != nil || parsed != status {
			t.Fatalf("round trip failed for %s: %v", status, err)
		}
	}
	if _, err := ParseOrderStatus("paid"); err == nil {
		t.Fatalf("status parsing is case sensitive")
	}
}

func TestOrderStatusClassification(t *testing.T) {
	if OrderStatusWaitingPayment.IsPaidOrLater() {
		t.Fatalf("waiting payment is not paid")
	}
	if OrderStatusCancelled.IsPaidOrLater() {
		t.Fatalf("cancelled does not imply payment")
	}
	for _, s := range []OrderStatus{OrderStatusPaid, OrderStatusReady, OrderStatusRefunded} {
		if !s.IsPaidOrLater() {
			t.Fatalf("%s should be paid or later", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded, OrderStatusPartiallyRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if OrderStatusShipped.IsTerminal() {
		t.Fatalf("shipped is not terminal")
	}
}

func TestPaymentReasonMessages(t *testing.T) {
	if PaymentReasonAmountMismatch.Message() == "" {
		t.Fatalf("expected message for amount mismatch")
	}
	if PaymentReason("BOGUS").Message() != PaymentReasonInconclusive.Message() {
		t.Fatalf("unknown reasons fall back to the inconclusive message")
	}
	if _, err := ParsePaymentReason("DUPLICATE_SLIP"); err != nil {
		t.Fatalf("parse duplicate slip: %v", err)
	}
}

func TestActorIdentities(t *testing.T) {
	if got := AdminActor("  Owner@Shop.com "); got != "admin:owner@shop.com" {
		t.Fatalf("unexpected admin actor %q", got)
	}
	if !IsAdminActor(AdminActor("a@b.c")) {
		t.Fatalf("expected admin actor detection")
	}
	if got := GatewayActor("Square"); got != "gateway:square" {
		t.Fatalf("unexpected gateway actor %q", got)
	}
}
