package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-orders/internal/customerindex"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type configStore interface {
	Get(ctx context.Context, key string) (string, error)
	ConfigKey(name string) string
}

type ResolverParams struct {
	Store      configStore
	ConfigName string
	Fallback   []string
	Logger     *logger.Logger
}

// Resolver answers admin membership from a Redis config blob, falling back to
// the configured emails when the blob is absent. Results are cached until Reload.
type Resolver struct {
	store      configStore
	configName string
	fallback   map[string]struct{}
	logg       *logger.Logger

	mu     sync.RWMutex
	admins map[string]struct{}
	loaded bool
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Store == nil {
		return nil, errors.New("config store required")
	}
	if strings.TrimSpace(params.ConfigName) == "" {
		return nil, errors.New("config name required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Resolver{
		store:      params.Store,
		configName: strings.TrimSpace(params.ConfigName),
		fallback:   emailSet(params.Fallback),
		logg:       params.Logger,
	}, nil
}

// IsAdmin reports whether email belongs to an administrator. The first call loads the list.
func (r *Resolver) IsAdmin(ctx context.Context, email string) (bool, error) {
	normalized := customerindex.NormalizeEmail(email)
	if normalized == "" {
		return false, nil
	}
	r.mu.RLock()
	loaded := r.loaded
	_, ok := r.admins[normalized]
	r.mu.RUnlock()
	if loaded {
		return ok, nil
	}
	if err := r.Reload(ctx); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok = r.admins[normalized]
	return ok, nil
}

// Reload re-reads the admin list from Redis.
func (r *Resolver) Reload(ctx context.Context) error {
	raw, err := r.store.Get(ctx, r.store.ConfigKey(r.configName))
	var admins map[string]struct{}
	switch {
	case errors.Is(err, redis.Nil):
		admins = r.fallback
		r.logg.Info(ctx, "admin config blob missing, using fallback emails")
	case err != nil:
		return err
	default:
		admins = emailSet(parseEmails(raw))
	}

	r.mu.Lock()
	r.admins = admins
	r.loaded = true
	r.mu.Unlock()
	r.logg.Info(r.logg.WithField(ctx, "admin_count", len(admins)), "admin list loaded")
	return nil
}

// parseEmails accepts a JSON array or a comma separated list.
func parseEmails(raw string) []string {
	raw = strings.TrimSpace(raw)
	var list []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
	}
	return strings.Split(raw, ",")
}

func emailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if normalized := customerindex.NormalizeEmail(email); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}
