package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// WebhookEvent is the idempotency ledger for provider notifications. The
// (provider, topic, external_id) unique index is the dedupe gate.
type WebhookEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider      enums.PaymentProvider `gorm:"column:provider;not null;uniqueIndex:ux_webhook_events_key,priority:1"`
	Topic         string                `gorm:"column:topic;not null;uniqueIndex:ux_webhook_events_key,priority:2"`
	ExternalID    string                `gorm:"column:external_id;not null;uniqueIndex:ux_webhook_events_key,priority:3"`
	Payload       json.RawMessage       `gorm:"column:payload;type:jsonb"`
	OrderID       *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	StatusApplied *enums.OrderStatus    `gorm:"column:status_applied"`
	Outcome       *enums.WebhookOutcome `gorm:"column:outcome"`
	Note          *string               `gorm:"column:note"`
	ProcessedAt   *time.Time            `gorm:"column:processed_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
