package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/internal/gateway"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

const testPayload = `{"event_id":"evt-1","type":"payment.updated"}`

var testSquareConfig = config.SquareConfig{
	WebhookSignatureKey: "sig-key",
	WebhookURL:          "https://shop.example.com/api/v1/webhooks/square",
}

type recordingHandler struct {
	events []gateway.Event
	err    error
}

func (h *recordingHandler) HandleGatewayEvent(_ context.Context, evt gateway.Event) (reconciliation.GatewayResult, error) {
	h.events = append(h.events, evt)
	if h.err != nil {
		return reconciliation.GatewayResult{}, h.err
	}
	return reconciliation.GatewayResult{Applied: true, Reason: enums.PaymentReasonVerified}, nil
}

type stubNormalizer struct {
	evt      gateway.Event
	relevant bool
}

func (n stubNormalizer) Normalize(context.Context, []byte) (gateway.Event, bool, error) {
	return n.evt, n.relevant, nil
}

type memGuard struct {
	seen    map[string]bool
	deleted []string
}

func newMemGuard() *memGuard { return &memGuard{seen: map[string]bool{}} }

func (g *memGuard) CheckAndMark(_ context.Context, id string) (bool, error) {
	if g.seen[id] {
		return true, nil
	}
	g.seen[id] = true
	return false, nil
}

func (g *memGuard) Delete(_ context.Context, id string) error {
	delete(g.seen, id)
	g.deleted = append(g.deleted, id)
	return nil
}

func chargeEvent() gateway.Event {
	return gateway.Event{
		DeliveryID: "evt-1",
		Provider:   gateway.ProviderSquare,
		Kind:       enums.GatewayEventChargeSucceeded,
		OrderRef:   "ORD-20260301-ABCDEF",
		ChargeRef:  "sq-pay-1",
		Amount:     decimal.NewFromInt(340),
		Currency:   "THB",
	}
}

func deliver(handler http.HandlerFunc, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewBufferString(testPayload))
	if signature != "" {
		req.Header.Set(gateway.SquareSignatureHeader, signature)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func validSignature() string {
	return gateway.SignSquare(testSquareConfig.WebhookSignatureKey, testSquareConfig.WebhookURL, []byte(testPayload))
}

func TestSquareWebhookAppliesOnce(t *testing.T) {
	handler := &recordingHandler{}
	guard := newMemGuard()
	h := SquareWebhook(handler, stubNormalizer{evt: chargeEvent(), relevant: true}, guard, testSquareConfig, nil)

	for i := 0; i < 2; i++ {
		if resp := deliver(h, validSignature()); resp.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200 got %d", i, resp.Code)
		}
	}
	if len(handler.events) != 1 {
		t.Fatalf("expected one applied event got %d", len(handler.events))
	}
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	handler := &recordingHandler{}
	h := SquareWebhook(handler, stubNormalizer{evt: chargeEvent(), relevant: true}, newMemGuard(), testSquareConfig, nil)

	if resp := deliver(h, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature got %d", resp.Code)
	}
	if resp := deliver(h, "bm90LXRoZS1zaWduYXR1cmU="); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged signature got %d", resp.Code)
	}
	if len(handler.events) != 0 {
		t.Fatalf("unsigned deliveries must not reach the engine")
	}
}

func TestSquareWebhookIgnoresIrrelevantEvents(t *testing.T) {
	handler := &recordingHandler{}
	guard := newMemGuard()
	h := SquareWebhook(handler, stubNormalizer{}, guard, testSquareConfig, nil)

	if resp := deliver(h, validSignature()); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(handler.events) != 0 || len(guard.seen) != 0 {
		t.Fatalf("irrelevant events should be acknowledged without processing")
	}
}

func TestSquareWebhookReleasesDeliveryOnFailure(t *testing.T) {
	handler := &recordingHandler{err: errors.New("store unavailable")}
	guard := newMemGuard()
	h := SquareWebhook(handler, stubNormalizer{evt: chargeEvent(), relevant: true}, guard, testSquareConfig, nil)

	if resp := deliver(h, validSignature()); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt-1" {
		t.Fatalf("expected delivery mark released, got %v", guard.deleted)
	}

	handler.err = nil
	if resp := deliver(h, validSignature()); resp.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed got %d", resp.Code)
	}
	if len(handler.events) != 2 {
		t.Fatalf("expected retry to reach the engine, got %d calls", len(handler.events))
	}
}
