package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

var (
	// ErrNotFound is wrapped by every lookup that misses.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict signals that a conditional write found the order changed
	// since it was read: a different status or a newer version.
	ErrStatusConflict = errors.New("order changed concurrently")
)

// Store persists one record per order keyed by ref.
type Store interface {
	Get(ctx context.Context, ref string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	Put(ctx context.Context, order *models.Order) error
	// CompareAndPut writes order only while the stored status and version still
	// equal what the caller read.
	CompareAndPut(ctx context.Context, order *models.Order, expectedStatus enums.OrderStatus, expectedVersion int64) error
	List(ctx context.Context, filter Filter) ([]models.Order, error)
	Delete(ctx context.Context, ref string) error
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	PartitionPrefix string
	Statuses        []enums.OrderStatus
	CreatedBefore   *time.Time
	UpdatedSince    *time.Time
	CustomerKey     string
	GatewayRef      string
	Limit           int
}
