package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// AuditEvent records one accepted or rejected attempt to change an order.
type AuditEvent struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderRef   string                  `gorm:"column:order_ref;not null;index"`
	Action     string                  `gorm:"column:action;not null"`
	Actor      string                  `gorm:"column:actor;not null"`
	Trigger    enums.TransitionTrigger `gorm:"column:trigger_kind;type:text"`
	FromStatus enums.OrderStatus       `gorm:"column:from_status;type:text"`
	ToStatus   enums.OrderStatus       `gorm:"column:to_status;type:text"`
	Accepted   bool                    `gorm:"column:accepted;not null"`
	Reason     string                  `gorm:"column:reason"`
	Details    map[string]any          `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt  time.Time               `gorm:"column:created_at;not null;index;autoCreateTime:false"`
}

func (AuditEvent) TableName() string { return "order_audit_events" }
