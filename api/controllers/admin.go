package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/api/responses"
	"github.com/angelmondragon/storefront-orders/api/validators"
	"github.com/angelmondragon/storefront-orders/internal/bulk"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 200
)

// AdminOrderService is the administrator slice of the reconciliation engine.
type AdminOrderService interface {
	GetOrder(ctx context.Context, ref string) (*models.Order, error)
	ApplyAdminTransition(ctx context.Context, ref string, to enums.OrderStatus, adminEmail string, meta reconciliation.TransitionMeta) (*models.Order, error)
	EditCart(ctx context.Context, ref string, items []models.LineItem, discount *decimal.Decimal, adminEmail string) (*models.Order, error)
	UpdateContact(ctx context.Context, ref string, update reconciliation.ContactUpdate, actor string) (*models.Order, error)
	RunExpirySweep(ctx context.Context) (reconciliation.ExpirySummary, error)
	RebuildCustomerIndex(ctx context.Context, email string) (int, error)
}

type OrderLister interface {
	List(ctx context.Context, filter orders.Filter) ([]models.Order, error)
}

type AuditReader interface {
	ListByOrder(ctx context.Context, ref string, limit int) ([]models.AuditEvent, error)
}

type PickupEnabler interface {
	EnablePickup(ctx context.Context, productID, location, actor string) (bulk.Result, error)
}

type PermissionReloader interface {
	Reload(ctx context.Context) error
}

// AdminListOrders lists orders newest first, optionally filtered by status.
func AdminListOrders(lister OrderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultAdminListLimit, 1, maxAdminListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := orders.Filter{Limit: limit}
		for _, raw := range r.URL.Query()["status"] {
			status, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}

		list, err := lister.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*orderResponse, 0, len(list))
		for i := range list {
			out = append(out, newOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, map[string]any{"orders": out})
	}
}

// AdminGetOrder returns the full order with its audit trail.
func AdminGetOrder(svc AdminOrderService, audit AuditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		order, err := svc.GetOrder(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "audit_limit", defaultAdminListLimit, 1, maxAdminListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := audit.ListByOrder(r.Context(), ref, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAdminOrderResponse(order, events))
	}
}

func AdminTransition(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		meta := reconciliation.TransitionMeta{
			Reason:           validators.SanitizeString(req.Reason, 500),
			TrackingNumber:   validators.SanitizeString(req.TrackingNumber, 64),
			ShippingProvider: validators.SanitizeString(req.ShippingProvider, 64),
		}
		order, err := svc.ApplyAdminTransition(r.Context(), chi.URLParam(r, "ref"), to, middleware.AdminEmailFromContext(r.Context()), meta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func AdminEditCart(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cartEditRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.EditCart(r.Context(), chi.URLParam(r, "ref"), lineItems(req.Cart), req.DiscountAmount, middleware.AdminEmailFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func AdminUpdateContact(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := enums.AdminActor(middleware.AdminEmailFromContext(r.Context()))
		order, err := svc.UpdateContact(r.Context(), chi.URLParam(r, "ref"), req.toUpdate(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminEnablePickup moves every PAID order containing the product to READY.
func AdminEnablePickup(executor PickupEnabler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pickupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID := strings.TrimSpace(req.ProductID)
		actor := enums.AdminActor(middleware.AdminEmailFromContext(r.Context()))
		result, err := executor.EnablePickup(r.Context(), productID, validators.SanitizeString(req.Location, 200), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bulkResponse{Result: result, ProductID: productID})
	}
}

// AdminRunExpiry runs one expiry sweep out of band of the cron worker.
func AdminRunExpiry(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.RunExpirySweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, expiryResponse{
			Checked:   summary.Checked,
			Cancelled: summary.Cancelled,
			Skipped:   summary.Skipped,
			Errors:    summary.Errors,
		})
	}
}

func AdminReloadPermissions(reloader PermissionReloader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reloader.Reload(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "reloaded"})
	}
}

func AdminRebuildCustomerIndex(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rebuildIndexRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := svc.RebuildCustomerIndex(r.Context(), req.CustomerEmail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"orders": count})
	}
}
