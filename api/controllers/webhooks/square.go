package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-orders/api/responses"
	"github.com/angelmondragon/storefront-orders/internal/gateway"
	"github.com/angelmondragon/storefront-orders/internal/reconciliation"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

const maxWebhookBody = 1 << 20

type GatewayEventHandler interface {
	HandleGatewayEvent(ctx context.Context, evt gateway.Event) (reconciliation.GatewayResult, error)
}

type squareNormalizer interface {
	Normalize(ctx context.Context, body []byte) (gateway.Event, bool, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type squareAck struct {
	Received bool   `json:"received"`
	Applied  bool   `json:"applied"`
	Reason   string `json:"reason,omitempty"`
}

// SquareWebhook verifies, de-duplicates and applies Square payment and refund
// notifications. A failed delivery releases its dedupe mark so Square's retry
// is processed.
func SquareWebhook(handler GatewayEventHandler, normalizer squareNormalizer, guard deliveryGuard, cfg config.SquareConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if handler == nil || normalizer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(gateway.SquareSignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing"))
			return
		}
		if !gateway.VerifySquareSignature(cfg.WebhookSignatureKey, cfg.WebhookURL, payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		evt, relevant, err := normalizer.Normalize(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !relevant {
			responses.WriteSuccess(w, squareAck{Received: true})
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"delivery_id": evt.DeliveryID,
				"event_kind":  string(evt.Kind),
				"order_ref":   evt.OrderRef,
				"charge_ref":  evt.ChargeRef,
			})
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, evt.DeliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, squareAck{Received: true, Reason: "duplicate delivery"})
			return
		}

		result, err := handler.HandleGatewayEvent(ctx, evt)
		if err != nil {
			if delErr := guard.Delete(ctx, evt.DeliveryID); delErr != nil && logg != nil {
				logg.Error(ctx, "square.delivery_release_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "applied", result.Applied), "square.event_processed")
		}
		responses.WriteSuccess(w, squareAck{Received: true, Applied: result.Applied, Reason: string(result.Reason)})
	}
}
