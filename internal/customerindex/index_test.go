package customerindex

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-orders/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeStore) Update(_ context.Context, key string, _ time.Duration, fn pkgredis.UpdateFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, exists := f.data[key]
	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	f.data[key] = next
	return nil
}

func (f *fakeStore) CustomerOrdersKey(customerKey string) string {
	return "sf:customer_orders:" + customerKey
}

type fakeLister struct {
	orders []models.Order
	filter orders.Filter
}

func (f *fakeLister) List(_ context.Context, filter orders.Filter) ([]models.Order, error) {
	f.filter = filter
	return f.orders, nil
}

func newTestIndex(t *testing.T, retention int, lister *fakeLister) (*Index, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	if lister == nil {
		lister = &fakeLister{}
	}
	idx, err := NewIndex(IndexParams{
		Store:     store,
		Orders:    lister,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Retention: retention,
	})
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx, store
}

func summaryAt(ref string, status enums.OrderStatus, created time.Time) Summary {
	return Summary{Ref: ref, Status: status, TotalAmount: decimal.NewFromInt(100), ItemCount: 1, CreatedAt: created, UpdatedAt: created}
}

func TestKeyForNormalizesEmail(t *testing.T) {
	a := KeyFor("  Buyer@Example.COM ")
	b := KeyFor("buyer@example.com")
	if a != b {
		t.Fatalf("expected normalized keys to match")
	}
	if len(a) != 64 {
		t.Fatalf("expected 32-byte hex key, got %d chars", len(a))
	}
	if a == KeyFor("other@example.com") {
		t.Fatalf("distinct emails should not collide")
	}
}

func TestUpsertReplacesByRefAndSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, 0, nil)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := idx.Upsert(ctx, "cust", summaryAt("ORD-A", enums.OrderStatusWaitingPayment, base)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "cust", summaryAt("ORD-B", enums.OrderStatusWaitingPayment, base.Add(time.Hour))); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "cust", summaryAt("ORD-A", enums.OrderStatusPaid, base)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err := idx.Get(ctx, "cust")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Ref != "ORD-B" || entries[1].Ref != "ORD-A" {
		t.Fatalf("unexpected order %s, %s", entries[0].Ref, entries[1].Ref)
	}
	if entries[1].Status != enums.OrderStatusPaid {
		t.Fatalf("expected replaced status PAID, got %s", entries[1].Status)
	}
}

func TestUpsertCapsAtRetention(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, 3, nil)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ref := fmt.Sprintf("ORD-%d", i)
		if err := idx.Upsert(ctx, "cust", summaryAt(ref, enums.OrderStatusWaitingPayment, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("upsert %s: %v", ref, err)
		}
	}
	entries, _ := idx.Get(ctx, "cust")
	if len(entries) != 3 {
		t.Fatalf("expected retention cap 3, got %d", len(entries))
	}
	if entries[0].Ref != "ORD-4" || entries[2].Ref != "ORD-2" {
		t.Fatalf("expected newest three retained, got %v", entries)
	}
}

func TestUpsertConcurrentOrdersKeepsEveryEntry(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, 0, nil)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = idx.Upsert(ctx, "cust", summaryAt(fmt.Sprintf("ORD-%02d", i), enums.OrderStatusPaid, base.Add(time.Duration(i)*time.Minute)))
		}(i)
	}
	wg.Wait()
	entries, _ := idx.Get(ctx, "cust")
	if len(entries) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(entries))
	}
}

func TestUpsertOverwritesCorruptEntry(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex(t, 0, nil)
	store.data[store.CustomerOrdersKey("cust")] = "{not json"
	if err := idx.Upsert(ctx, "cust", summaryAt("ORD-1", enums.OrderStatusPaid, time.Now())); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	entries, err := idx.Get(ctx, "cust")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected recovered entry, got %v err=%v", entries, err)
	}
}

func TestGetUnknownCustomerIsEmpty(t *testing.T) {
	idx, _ := newTestIndex(t, 0, nil)
	entries, err := idx.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty list")
	}
}

func TestRebuildFromOrderStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	lister := &fakeLister{orders: []models.Order{
		{Ref: "ORD-old", Status: enums.OrderStatusCompleted, CreatedAt: base, UpdatedAt: base},
		{Ref: "ORD-new", Status: enums.OrderStatusPaid, CreatedAt: base.Add(48 * time.Hour), UpdatedAt: base.Add(48 * time.Hour),
			Cart: []models.LineItem{{ProductID: "P1", Quantity: 3}}},
	}}
	idx, _ := newTestIndex(t, 0, lister)

	count, err := idx.Rebuild(ctx, "cust")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}
	if lister.filter.CustomerKey != "cust" {
		t.Fatalf("expected rebuild to filter by customer key")
	}
	entries, _ := idx.Get(ctx, "cust")
	if entries[0].Ref != "ORD-new" || entries[0].ItemCount != 3 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
}
