package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/internal/bulk"
	"github.com/angelmondragon/storefront-orders/internal/customerindex"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/internal/verifier"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

// pngSlip is enough of a PNG header for content sniffing.
var pngSlip = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

type stubEngine struct {
	createFn     func(ctx context.Context, in reconciliation.CreateOrderInput) (*models.Order, error)
	getFn        func(ctx context.Context, ref string) (*models.Order, error)
	customerFn   func(ctx context.Context, email string) ([]customerindex.Summary, error)
	contactFn    func(ctx context.Context, ref string, update reconciliation.ContactUpdate, actor string) (*models.Order, error)
	paymentFn    func(ctx context.Context, ref string, ev verifier.Evidence, actor string) (reconciliation.PaymentResult, error)
	transitionFn func(ctx context.Context, ref string, to enums.OrderStatus, adminEmail string, meta reconciliation.TransitionMeta) (*models.Order, error)
	cartFn       func(ctx context.Context, ref string, items []models.LineItem, discount *decimal.Decimal, adminEmail string) (*models.Order, error)
	expiryFn     func(ctx context.Context) (reconciliation.ExpirySummary, error)
	rebuildFn    func(ctx context.Context, email string) (int, error)
}

func (s *stubEngine) CreateOrder(ctx context.Context, in reconciliation.CreateOrderInput) (*models.Order, error) {
	return s.createFn(ctx, in)
}

func (s *stubEngine) GetOrder(ctx context.Context, ref string) (*models.Order, error) {
	return s.getFn(ctx, ref)
}

func (s *stubEngine) CustomerOrders(ctx context.Context, email string) ([]customerindex.Summary, error) {
	return s.customerFn(ctx, email)
}

func (s *stubEngine) UpdateContact(ctx context.Context, ref string, update reconciliation.ContactUpdate, actor string) (*models.Order, error) {
	return s.contactFn(ctx, ref, update, actor)
}

func (s *stubEngine) RequestPayment(ctx context.Context, ref string, ev verifier.Evidence, actor string) (reconciliation.PaymentResult, error) {
	return s.paymentFn(ctx, ref, ev, actor)
}

func (s *stubEngine) ApplyAdminTransition(ctx context.Context, ref string, to enums.OrderStatus, adminEmail string, meta reconciliation.TransitionMeta) (*models.Order, error) {
	return s.transitionFn(ctx, ref, to, adminEmail, meta)
}

func (s *stubEngine) EditCart(ctx context.Context, ref string, items []models.LineItem, discount *decimal.Decimal, adminEmail string) (*models.Order, error) {
	return s.cartFn(ctx, ref, items, discount, adminEmail)
}

func (s *stubEngine) RunExpirySweep(ctx context.Context) (reconciliation.ExpirySummary, error) {
	return s.expiryFn(ctx)
}

func (s *stubEngine) RebuildCustomerIndex(ctx context.Context, email string) (int, error) {
	return s.rebuildFn(ctx, email)
}

type stubPickup struct {
	productID, location, actor string
	result                     bulk.Result
}

func (s *stubPickup) EnablePickup(_ context.Context, productID, location, actor string) (bulk.Result, error) {
	s.productID, s.location, s.actor = productID, location, actor
	return s.result, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func sampleOrder(ref string) *models.Order {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.Order{
		Ref:           ref,
		Partition:     "2026-03",
		Status:        enums.OrderStatusWaitingPayment,
		CustomerEmail: "somchai@example.com",
		CustomerName:  "Somchai",
		Currency:      enums.CurrencyTHB,
		Cart: []models.LineItem{{
			ProductID: "P1",
			Quantity:  2,
			UnitPrice: decimal.NewFromInt(170),
		}},
		TotalAmount: decimal.NewFromInt(340),
		Version:     1,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

// serve routes one request through a chi router so URL params resolve.
func serve(method, pattern, target string, body *bytes.Buffer, contentType, admin string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if admin != "" {
				req = req.WithContext(middleware.WithAdminEmail(req.Context(), admin))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Method(method, pattern, handler)

	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	return &buf
}

func decodeData[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error.Code
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	var got reconciliation.CreateOrderInput
	engine := &stubEngine{createFn: func(_ context.Context, in reconciliation.CreateOrderInput) (*models.Order, error) {
		got = in
		return sampleOrder("ORD-20260301-ABCDEF"), nil
	}}

	body := jsonBody(t, map[string]any{
		"customer_email": "Somchai@Example.com",
		"customer_name":  "  Somchai  ",
		"currency":       "thb",
		"cart": []map[string]any{
			{"product_id": "P1", "quantity": 2, "unit_price": "170.00"},
		},
	})
	resp := serve(http.MethodPost, "/orders", "/orders", body, "application/json", "", CreateOrder(engine, nil))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.CustomerName != "Somchai" {
		t.Fatalf("expected sanitized name got %q", got.CustomerName)
	}
	if got.Currency != enums.CurrencyTHB {
		t.Fatalf("expected upper-cased currency got %q", got.Currency)
	}
	if len(got.Cart) != 1 || !got.Cart[0].UnitPrice.Equal(decimal.NewFromInt(170)) {
		t.Fatalf("unexpected cart %+v", got.Cart)
	}

	data := decodeData[orderResponse](t, resp)
	if data.Ref != "ORD-20260301-ABCDEF" || data.Status != enums.OrderStatusWaitingPayment {
		t.Fatalf("unexpected order %+v", data)
	}
	if !data.AmountDue.Equal(decimal.NewFromInt(340)) {
		t.Fatalf("expected amount due 340 got %s", data.AmountDue)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	called := false
	engine := &stubEngine{createFn: func(context.Context, reconciliation.CreateOrderInput) (*models.Order, error) {
		called = true
		return nil, nil
	}}
	body := jsonBody(t, map[string]any{"customer_name": "Somchai", "cart": []map[string]any{}})
	resp := serve(http.MethodPost, "/orders", "/orders", body, "application/json", "", CreateOrder(engine, nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatalf("engine should not be called for invalid input")
	}
}

func TestGetOrderRequiresMatchingEmail(t *testing.T) {
	engine := &stubEngine{getFn: func(_ context.Context, ref string) (*models.Order, error) {
		return sampleOrder(ref), nil
	}}
	handler := GetOrder(engine, nil)

	resp := serve(http.MethodGet, "/orders/{ref}", "/orders/ORD-20260301-ABCDEF?email=SOMCHAI@example.com", nil, "", "", handler)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = serve(http.MethodGet, "/orders/{ref}", "/orders/ORD-20260301-ABCDEF?email=someone@example.com", nil, "", "", handler)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another customer's email got %d", resp.Code)
	}
}

func TestCustomerOrdersReturnsEmptyList(t *testing.T) {
	engine := &stubEngine{customerFn: func(context.Context, string) ([]customerindex.Summary, error) {
		return nil, nil
	}}
	resp := serve(http.MethodGet, "/customers/orders", "/customers/orders?email=a@example.com", nil, "", "", CustomerOrders(engine, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"orders":[]`) {
		t.Fatalf("expected empty array got %s", resp.Body.String())
	}
}

func TestUpdateContactUsesCustomerActor(t *testing.T) {
	var actor string
	var update reconciliation.ContactUpdate
	engine := &stubEngine{
		getFn: func(_ context.Context, ref string) (*models.Order, error) { return sampleOrder(ref), nil },
		contactFn: func(_ context.Context, ref string, u reconciliation.ContactUpdate, a string) (*models.Order, error) {
			actor, update = a, u
			return sampleOrder(ref), nil
		},
	}
	body := jsonBody(t, map[string]any{"customer_email": "somchai@example.com", "customer_phone": "0812345678"})
	resp := serve(http.MethodPatch, "/orders/{ref}/contact", "/orders/ORD-20260301-ABCDEF/contact", body, "application/json", "", UpdateContact(engine, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if actor != enums.ActorCustomer {
		t.Fatalf("expected customer actor got %q", actor)
	}
	if update.Phone == nil || *update.Phone != "0812345678" || update.Name != nil {
		t.Fatalf("unexpected update %+v", update)
	}
}

func slipBody(t *testing.T, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(slipFormField, "slip.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write slip: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSubmitSlipReturnsAttempt(t *testing.T) {
	var got verifier.Evidence
	engine := &stubEngine{paymentFn: func(_ context.Context, ref string, ev verifier.Evidence, actor string) (reconciliation.PaymentResult, error) {
		got = ev
		order := sampleOrder(ref)
		order.Status = enums.OrderStatusPaid
		return reconciliation.PaymentResult{Accepted: true, Reason: enums.PaymentReasonVerified, Message: "payment verified", Order: order}, nil
	}}
	body, ct := slipBody(t, pngSlip)
	resp := serve(http.MethodPost, "/orders/{ref}/payments/slip", "/orders/ORD-20260301-ABCDEF/payments/slip", body, ct, "", SubmitSlip(engine, 1<<20, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Kind != enums.EvidenceKindSlip || !bytes.Equal(got.Image, pngSlip) {
		t.Fatalf("unexpected evidence kind=%s len=%d", got.Kind, len(got.Image))
	}
	data := decodeData[paymentAttemptResponse](t, resp)
	if !data.Accepted || data.Order == nil || data.Order.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected attempt %+v", data)
	}
}

func TestSubmitSlipRejectsNonImage(t *testing.T) {
	engine := &stubEngine{paymentFn: func(context.Context, string, verifier.Evidence, string) (reconciliation.PaymentResult, error) {
		t.Fatalf("engine should not see non-image uploads")
		return reconciliation.PaymentResult{}, nil
	}}
	body, ct := slipBody(t, []byte("just some text, not a slip"))
	resp := serve(http.MethodPost, "/orders/{ref}/payments/slip", "/orders/ORD-20260301-ABCDEF/payments/slip", body, ct, "", SubmitSlip(engine, 1<<20, nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminTransitionPassesAdminAndMeta(t *testing.T) {
	var gotTo enums.OrderStatus
	var gotAdmin string
	var gotMeta reconciliation.TransitionMeta
	engine := &stubEngine{transitionFn: func(_ context.Context, ref string, to enums.OrderStatus, admin string, meta reconciliation.TransitionMeta) (*models.Order, error) {
		gotTo, gotAdmin, gotMeta = to, admin, meta
		order := sampleOrder(ref)
		order.Status = to
		return order, nil
	}}
	body := jsonBody(t, map[string]any{"status": "shipped", "tracking_number": " TH123 ", "shipping_provider": "Kerry"})
	resp := serve(http.MethodPost, "/orders/{ref}/transitions", "/orders/ORD-20260301-ABCDEF/transitions", body, "application/json", "ops@example.com", AdminTransition(engine, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotTo != enums.OrderStatusShipped || gotAdmin != "ops@example.com" {
		t.Fatalf("unexpected call to=%s admin=%s", gotTo, gotAdmin)
	}
	if gotMeta.TrackingNumber != "TH123" || gotMeta.ShippingProvider != "Kerry" {
		t.Fatalf("unexpected meta %+v", gotMeta)
	}
}

func TestAdminTransitionErrors(t *testing.T) {
	engine := &stubEngine{transitionFn: func(context.Context, string, enums.OrderStatus, string, reconciliation.TransitionMeta) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")
	}}
	handler := AdminTransition(engine, nil)

	resp := serve(http.MethodPost, "/orders/{ref}/transitions", "/orders/X/transitions", jsonBody(t, map[string]any{"status": "SHIPPING"}), "application/json", "ops@example.com", handler)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status got %d", resp.Code)
	}

	resp = serve(http.MethodPost, "/orders/{ref}/transitions", "/orders/X/transitions", jsonBody(t, map[string]any{"status": "COMPLETED"}), "application/json", "ops@example.com", handler)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAdminEditCartPassesDiscount(t *testing.T) {
	var discount *decimal.Decimal
	engine := &stubEngine{cartFn: func(_ context.Context, ref string, items []models.LineItem, d *decimal.Decimal, admin string) (*models.Order, error) {
		discount = d
		return sampleOrder(ref), nil
	}}
	body := jsonBody(t, map[string]any{
		"cart":            []map[string]any{{"product_id": "P1", "quantity": 1, "unit_price": 300}},
		"discount_amount": "20",
	})
	resp := serve(http.MethodPatch, "/orders/{ref}/cart", "/orders/ORD-20260301-ABCDEF/cart", body, "application/json", "ops@example.com", AdminEditCart(engine, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if discount == nil || !discount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected discount %v", discount)
	}
}

func TestAdminEnablePickup(t *testing.T) {
	pickup := &stubPickup{result: bulk.Result{Matched: 3, Updated: 3}}
	body := jsonBody(t, map[string]any{"product_id": " P1 ", "location": "Siam branch"})
	resp := serve(http.MethodPost, "/pickups", "/pickups", body, "application/json", "ops@example.com", AdminEnablePickup(pickup, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if pickup.productID != "P1" || pickup.actor != enums.AdminActor("ops@example.com") {
		t.Fatalf("unexpected call %+v", pickup)
	}
	data := decodeData[bulkResponse](t, resp)
	if data.Updated != 3 || data.ProductID != "P1" {
		t.Fatalf("unexpected result %+v", data)
	}
}

func TestAdminRunExpiry(t *testing.T) {
	engine := &stubEngine{expiryFn: func(context.Context) (reconciliation.ExpirySummary, error) {
		return reconciliation.ExpirySummary{Checked: 4, Cancelled: 2, Skipped: 2}, nil
	}}
	resp := serve(http.MethodPost, "/expiry/run", "/expiry/run", nil, "", "ops@example.com", AdminRunExpiry(engine, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if data := decodeData[expiryResponse](t, resp); data.Cancelled != 2 || data.Checked != 4 {
		t.Fatalf("unexpected summary %+v", data)
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	healthy := HealthReady(cfg, nil, map[string]Pinger{
		"db":    pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return nil }),
	})
	resp := serve(http.MethodGet, "/health/ready", "/health/ready", nil, "", "", healthy)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	failing := HealthReady(cfg, nil, map[string]Pinger{
		"db":    pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	resp = serve(http.MethodGet, "/health/ready", "/health/ready", nil, "", "", failing)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"dependency":"redis"`) {
		t.Fatalf("expected failing dependency in details, got %s", resp.Body.String())
	}
}
