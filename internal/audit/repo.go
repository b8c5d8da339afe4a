package audit

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultListLimit = 100

// Repository appends audit events for order writes and attempts.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn, now: time.Now}
}

// Record persists the event. ID and CreatedAt are filled when unset.
func (r *Repository) Record(ctx context.Context, event *models.AuditEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit event required")
	}
	if strings.TrimSpace(event.OrderRef) == "" || strings.TrimSpace(event.Action) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit event requires order ref and action")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit event")
	}
	return nil
}

// ListByOrder returns the order's events oldest first.
func (r *Repository) ListByOrder(ctx context.Context, ref string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("order_ref = ?", ref).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit events")
	}
	return out, nil
}
