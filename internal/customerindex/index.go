package customerindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-orders/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const DefaultRetention = 500

// Summary is the denormalized view of one order kept per customer.
type Summary struct {
	Ref         string            `json:"ref"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	ItemCount   int               `json:"itemCount"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// SummaryFromOrder projects an order into its index entry.
func SummaryFromOrder(order *models.Order) Summary {
	return Summary{
		Ref:         order.Ref,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		ItemCount:   order.ItemCount(),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Update(ctx context.Context, key string, ttl time.Duration, fn pkgredis.UpdateFunc) error
	CustomerOrdersKey(customerKey string) string
}

type orderLister interface {
	List(ctx context.Context, filter orders.Filter) ([]models.Order, error)
}

type IndexParams struct {
	Store     store
	Orders    orderLister
	Logger    *logger.Logger
	Retention int
}

// Index keeps a bounded, newest-first list of order summaries per customer.
// It is derived data; Rebuild recomputes an entry from the order store.
type Index struct {
	store     store
	orders    orderLister
	logg      *logger.Logger
	retention int
}

func NewIndex(params IndexParams) (*Index, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("index store required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lister required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Index{
		store:     params.Store,
		orders:    params.Orders,
		logg:      params.Logger,
		retention: retention,
	}, nil
}

// Upsert replaces any entry with the same ref, re-sorts and truncates.
func (i *Index) Upsert(ctx context.Context, customerKey string, summary Summary) error {
	if customerKey == "" {
		return fmt.Errorf("customer key required")
	}
	key := i.store.CustomerOrdersKey(customerKey)
	return i.store.Update(ctx, key, 0, func(current string, exists bool) (string, error) {
		var entries []Summary
		if exists && current != "" {
			if err := json.Unmarshal([]byte(current), &entries); err != nil {
				logCtx := i.logg.WithField(ctx, "customer_key", customerKey)
				i.logg.Warn(logCtx, "customer index entry unreadable; overwriting")
				entries = nil
			}
		}
		merged := Merge(entries, summary, i.retention)
		payload, err := json.Marshal(merged)
		if err != nil {
			return "", fmt.Errorf("encode customer index: %w", err)
		}
		return string(payload), nil
	})
}

// Get returns the customer's summaries, newest first. Unknown customers yield an empty list.
func (i *Index) Get(ctx context.Context, customerKey string) ([]Summary, error) {
	raw, err := i.store.Get(ctx, i.store.CustomerOrdersKey(customerKey))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("read customer index: %w", err)
	}
	var entries []Summary
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode customer index: %w", err)
	}
	return entries, nil
}

// Rebuild recomputes the entry for customerKey from the order store.
func (i *Index) Rebuild(ctx context.Context, customerKey string) (int, error) {
	list, err := i.orders.List(ctx, orders.Filter{CustomerKey: customerKey, Limit: i.retention})
	if err != nil {
		return 0, err
	}
	entries := make([]Summary, 0, len(list))
	for idx := range list {
		entries = append(entries, SummaryFromOrder(&list[idx]))
	}
	sortNewestFirst(entries)
	if len(entries) > i.retention {
		entries = entries[:i.retention]
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return 0, fmt.Errorf("encode customer index: %w", err)
	}
	if err := i.store.Set(ctx, i.store.CustomerOrdersKey(customerKey), string(payload), 0); err != nil {
		return 0, fmt.Errorf("write customer index: %w", err)
	}
	logCtx := i.logg.WithFields(ctx, map[string]any{"customer_key": customerKey, "count": len(entries)})
	i.logg.Info(logCtx, "customer index rebuilt")
	return len(entries), nil
}

// Merge inserts or replaces summary by ref, sorts newest first and caps at retention.
func Merge(entries []Summary, summary Summary, retention int) []Summary {
	out := make([]Summary, 0, len(entries)+1)
	for _, entry := range entries {
		if entry.Ref == summary.Ref {
			continue
		}
		out = append(out, entry)
	}
	out = append(out, summary)
	sortNewestFirst(out)
	if retention > 0 && len(out) > retention {
		out = out[:retention]
	}
	return out
}

func sortNewestFirst(entries []Summary) {
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].CreatedAt.Equal(entries[b].CreatedAt) {
			return entries[a].Ref > entries[b].Ref
		}
		return entries[a].CreatedAt.After(entries[b].CreatedAt)
	})
}
