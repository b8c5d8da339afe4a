package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgAuth "github.com/angelmondragon/storefront-orders/pkg/auth"
	"github.com/angelmondragon/storefront-orders/pkg/config"
)

type stubAdmins struct {
	allowed map[string]bool
	err     error
}

func (s stubAdmins) IsAdmin(_ context.Context, email string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[email], nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret-with-enough-entropy", Issuer: "storefront-orders", TTL: 30 * time.Minute}
}

func mintToken(t *testing.T, email string) string {
	t.Helper()
	token, err := pkgAuth.MintAdminToken(testJWTConfig(), time.Now(), email, "Ops")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func runAdminAuth(admins adminChecker, header string) (*httptest.ResponseRecorder, string) {
	var seen string
	handler := AdminAuth(testJWTConfig(), admins, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdminEmailFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp, seen
}

func TestAdminAuthAcceptsListedAdmin(t *testing.T) {
	admins := stubAdmins{allowed: map[string]bool{"ops@example.com": true}}
	resp, seen := runAdminAuth(admins, "Bearer "+mintToken(t, "ops@example.com"))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if seen != "ops@example.com" {
		t.Fatalf("expected admin email in context, got %q", seen)
	}
}

func TestAdminAuthRejections(t *testing.T) {
	admins := stubAdmins{allowed: map[string]bool{"ops@example.com": true}}
	tests := []struct {
		name   string
		admins adminChecker
		header string
		want   int
	}{
		{"missing header", admins, "", http.StatusUnauthorized},
		{"garbage token", admins, "Bearer not-a-jwt", http.StatusUnauthorized},
		{"removed admin", admins, "Bearer " + mintToken(t, "former@example.com"), http.StatusForbidden},
		{"resolver down", stubAdmins{err: errors.New("redis down")}, "Bearer " + mintToken(t, "ops@example.com"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		resp, seen := runAdminAuth(tt.admins, tt.header)
		if resp.Code != tt.want {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.want, resp.Code)
		}
		if seen != "" {
			t.Fatalf("%s: handler should not run", tt.name)
		}
	}
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-123")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := resp.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed id got %q", got)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
