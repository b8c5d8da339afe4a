package orders

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an order store bound to the provided DB.
func NewRepository(conn *gorm.DB) Store {
	return &repository{db: conn}
}

func (r *repository) Get(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("ref = ?", ref).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order ref already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func (r *repository) Put(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Save(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	return nil
}

func (r *repository) CompareAndPut(ctx context.Context, order *models.Order, expectedStatus enums.OrderStatus, expectedVersion int64) error {
	if order.Version <= expectedVersion {
		return pkgerrors.New(pkgerrors.CodeInternal, "conditional order write must advance the version")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("ref = ? AND status = ? AND version = ?", order.Ref, expectedStatus, expectedVersion).
		Select("*").
		Omit("ref", "partition_key", "customer_email", "customer_key", "created_at").
		Updates(order)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "conditional order write")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.Get(ctx, order.Ref); err != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrStatusConflict, "order changed concurrently")
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.PartitionPrefix != "" {
		q = q.Where("partition_key LIKE ?", filter.PartitionPrefix+"%")
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *filter.CreatedBefore)
	}
	if filter.UpdatedSince != nil {
		q = q.Where("updated_at >= ?", *filter.UpdatedSince)
	}
	if filter.CustomerKey != "" {
		q = q.Where("customer_key = ?", filter.CustomerKey)
	}
	if filter.GatewayRef != "" {
		q = q.Where("gateway_ref = ?", filter.GatewayRef)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []models.Order
	if err := q.Order("created_at DESC").Order("ref ASC").Find(&out).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return out, nil
}

func (r *repository) Delete(ctx context.Context, ref string) error {
	res := r.db.WithContext(ctx).Where("ref = ?", ref).Delete(&models.Order{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete order")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNotFound, "order not found")
	}
	return nil
}
