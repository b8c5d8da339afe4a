package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultClaimTTL = 90 * 24 * time.Hour

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	EvidenceKey(fingerprint string) string
}

// Registry records which order owns each accepted payment fingerprint so the
// same slip cannot settle two orders.
type Registry struct {
	store redisStore
	ttl   time.Duration
}

func NewRegistry(store redisStore, ttl time.Duration) (*Registry, error) {
	if store == nil {
		return nil, errors.New("redis store required for evidence registry")
	}
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &Registry{store: store, ttl: ttl}, nil
}

// Owner returns the order ref holding fingerprint, if any.
func (r *Registry) Owner(ctx context.Context, fingerprint string) (string, bool, error) {
	owner, err := r.store.Get(ctx, r.store.EvidenceKey(fingerprint))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read evidence owner: %w", err)
	}
	return owner, true, nil
}

// Claim binds fingerprint to ref. It reports claimed=true when ref already held it.
func (r *Registry) Claim(ctx context.Context, fingerprint, ref string) (owner string, claimed bool, err error) {
	ok, err := r.store.SetNX(ctx, r.store.EvidenceKey(fingerprint), ref, r.ttl)
	if err != nil {
		return "", false, fmt.Errorf("claim evidence: %w", err)
	}
	if ok {
		return ref, true, nil
	}
	owner, found, err := r.Owner(ctx, fingerprint)
	if err != nil {
		return "", false, err
	}
	if !found {
		// expired between SETNX and GET; retry once
		ok, err = r.store.SetNX(ctx, r.store.EvidenceKey(fingerprint), ref, r.ttl)
		if err != nil {
			return "", false, fmt.Errorf("claim evidence: %w", err)
		}
		if ok {
			return ref, true, nil
		}
		return "", false, nil
	}
	return owner, owner == ref, nil
}

// Release drops the claim when ref still owns it.
func (r *Registry) Release(ctx context.Context, fingerprint, ref string) error {
	owner, found, err := r.Owner(ctx, fingerprint)
	if err != nil || !found || owner != ref {
		return err
	}
	if err := r.store.Del(ctx, r.store.EvidenceKey(fingerprint)); err != nil {
		return fmt.Errorf("release evidence: %w", err)
	}
	return nil
}
