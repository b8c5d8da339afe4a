package verifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/shopspring/decimal"
)

func newTestSlipClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *SlipClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetries(2, time.Millisecond)}, opts...)
	client, err := NewSlipClient(srv.URL, "test-key", opts...)
	if err != nil {
		t.Fatalf("new slip client: %v", err)
	}
	return client
}

func TestSlipClientVerifiedResponse(t *testing.T) {
	client := newTestSlipClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-authorization") != "test-key" {
			t.Fatalf("missing api key header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("amount"); got != "340.00" {
			t.Fatalf("unexpected amount field %q", got)
		}
		file, _, err := r.FormFile("files")
		if err != nil {
			t.Fatalf("missing slip file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "slip-bytes" {
			t.Fatalf("unexpected slip payload %q", data)
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"success":true,"amount":340,"transRef":"TX-1","receiver":{"account":{"value":"xxx-x-x1234-x"}}}}`)
	})

	res, err := client.VerifySlip(context.Background(), []byte("slip-bytes"), decimal.NewFromInt(340))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Verified || res.Reason != enums.PaymentReasonVerified {
		t.Fatalf("expected verified result, got %+v", res)
	}
	if !res.Amount.Equal(decimal.NewFromInt(340)) || res.TransactionRef != "TX-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSlipClientMapsVendorCodes(t *testing.T) {
	cases := map[string]enums.PaymentReason{
		`{"success":false,"code":1012,"message":"duplicate"}`:                        enums.PaymentReasonDuplicateSlip,
		`{"success":false,"code":1013,"message":"amount","data":{"amount":280}}`:     enums.PaymentReasonAmountMismatch,
		`{"success":false,"code":1008,"message":"qr"}`:                               enums.PaymentReasonInvalidQR,
		`{"success":false,"code":1014,"message":"receiver"}`:                         enums.PaymentReasonWrongReceiver,
		`{"success":false,"code":1006,"message":"image"}`:                            enums.PaymentReasonUnreadable,
	}
	for body, want := range cases {
		body := body
		client := newTestSlipClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, body)
		})
		res, err := client.VerifySlip(context.Background(), []byte("x"), decimal.NewFromInt(300))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.Verified || res.Reason != want {
			t.Fatalf("body %s: expected %s got %+v", body, want, res)
		}
	}
}

func TestSlipClientRetriesTransientFailures(t *testing.T) {
	var calls int32
	client := newTestSlipClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"success":true,"amount":500,"transRef":"TX-3"}}`)
	})
	res, err := client.VerifySlip(context.Background(), []byte("x"), decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Verified {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestSlipClientTimeoutIsInconclusive(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	client := newTestSlipClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}, WithTimeouts(20*time.Millisecond, 80*time.Millisecond))

	res, err := client.VerifySlip(context.Background(), []byte("x"), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("timeouts should not surface as errors: %v", err)
	}
	if res.Verified || res.Reason != enums.PaymentReasonInconclusive {
		t.Fatalf("expected inconclusive, got %+v", res)
	}
}

func TestSlipClientUnauthorizedIsDependencyError(t *testing.T) {
	var calls int32
	client := newTestSlipClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := client.VerifySlip(context.Background(), []byte("x"), decimal.NewFromInt(100))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("auth failures must not be retried, got %d calls", calls)
	}
}

func TestNewSlipClientRequiresKey(t *testing.T) {
	if _, err := NewSlipClient("http://verifier.test", " "); err == nil || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}
