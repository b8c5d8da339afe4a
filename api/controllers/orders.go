package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-orders/api/responses"
	"github.com/angelmondragon/storefront-orders/api/validators"
	"github.com/angelmondragon/storefront-orders/internal/customerindex"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/internal/verifier"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

const slipFormField = "slip"

// OrderService is the customer-facing slice of the reconciliation engine.
type OrderService interface {
	CreateOrder(ctx context.Context, in reconciliation.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, ref string) (*models.Order, error)
	CustomerOrders(ctx context.Context, email string) ([]customerindex.Summary, error)
	UpdateContact(ctx context.Context, ref string, update reconciliation.ContactUpdate, actor string) (*models.Order, error)
}

type PaymentService interface {
	RequestPayment(ctx context.Context, ref string, ev verifier.Evidence, actor string) (reconciliation.PaymentResult, error)
}

// CreateOrder stores a new WAITING_PAYMENT order from the submitted cart.
func CreateOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.CustomerName = validators.SanitizeString(req.CustomerName, 120)
		req.CustomerPhone = validators.SanitizeString(req.CustomerPhone, 32)
		req.CustomerAddress = validators.SanitizeString(req.CustomerAddress, 500)

		order, err := svc.CreateOrder(r.Context(), req.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// GetOrder returns an order to the customer who placed it. A ref paired with
// another email reads as not found.
func GetOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := ownedOrder(r.Context(), svc, chi.URLParam(r, "ref"), r.URL.Query().Get("email"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func CustomerOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "email is required"))
			return
		}
		summaries, err := svc.CustomerOrders(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if summaries == nil {
			summaries = []customerindex.Summary{}
		}
		responses.WriteSuccess(w, map[string]any{"orders": summaries})
	}
}

// UpdateContact lets the customer correct name, phone or address. The email
// in the body must match the order; it is never changed.
func UpdateContact(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ref := chi.URLParam(r, "ref")
		if _, err := ownedOrder(r.Context(), svc, ref, req.CustomerEmail); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateContact(r.Context(), ref, req.toUpdate(), enums.ActorCustomer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// SubmitSlip accepts a bank transfer slip image and runs it through payment
// verification. A rejected slip is a 200 with accepted=false and a reason.
func SubmitSlip(svc PaymentService, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimSpace(chi.URLParam(r, "ref"))
		if ref == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order ref is required"))
			return
		}

		image, err := validators.ReadMultipartFile(w, r, slipFormField, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if mime, ok := verifier.DetectSlipMIME(image); !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "slip must be a JPEG, PNG or WebP image").
				WithDetails(map[string]any{"detected": mime}))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderRef(ctx, ref)
		}
		result, err := svc.RequestPayment(ctx, ref, verifier.Evidence{Kind: enums.EvidenceKindSlip, Image: image}, enums.ActorCustomer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentAttemptResponse(result))
	}
}

func ownedOrder(ctx context.Context, svc OrderService, ref, email string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	email = customerindex.NormalizeEmail(email)
	if ref == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order ref and email are required")
	}
	order, err := svc.GetOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if customerindex.NormalizeEmail(order.CustomerEmail) != email {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}
