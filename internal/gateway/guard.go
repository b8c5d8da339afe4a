package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/redis"
)

// DeliveryGuard drops webhook deliveries the provider has already sent.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &DeliveryGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark returns true when the delivery was already recorded.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	key := g.store.IdempotencyKey(g.scope, deliveryID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery key: %w", err)
	}
	return !set, nil
}

// Delete forgets a delivery so the provider's retry is processed again.
func (g *DeliveryGuard) Delete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, deliveryID))
}
