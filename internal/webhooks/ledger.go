package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

const ledgerConstraint = "ux_webhook_events_key"

// Ledger stores one row per (provider, topic, external id).
type Ledger struct {
	db *gorm.DB
}

func NewLedger(conn *gorm.DB) *Ledger {
	return &Ledger{db: conn}
}

// Claim inserts the ledger row. It reports false when the delivery was already
// recorded; the unique index is the only gate.
func (l *Ledger) Claim(ctx context.Context, provider enums.PaymentProvider, event Event, payload []byte) (*models.WebhookEvent, bool, error) {
	row := &models.WebhookEvent{
		Provider:   provider,
		Topic:      event.Topic(),
		ExternalID: event.ExternalID(),
		Payload:    rawJSON(payload),
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, ledgerConstraint) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return row, true, nil
}

// Record is the audit trail written after processing.
type Record struct {
	Outcome       enums.WebhookOutcome
	StatusApplied *enums.OrderStatus
	OrderID       *uuid.UUID
	Note          string
	ProcessedAt   time.Time
}

// Finish stores the processing outcome on a claimed row.
func (l *Ledger) Finish(ctx context.Context, id uuid.UUID, rec Record) error {
	updates := map[string]any{
		"outcome":        rec.Outcome,
		"status_applied": rec.StatusApplied,
		"order_id":       rec.OrderID,
		"processed_at":   rec.ProcessedAt,
	}
	if rec.Note != "" {
		updates["note"] = rec.Note
	}
	return l.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// Release deletes a claimed row so a provider redelivery is processed again.
func (l *Ledger) Release(ctx context.Context, id uuid.UUID) error {
	return l.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WebhookEvent{}).Error
}

func rawJSON(payload []byte) json.RawMessage {
	if len(payload) == 0 || !json.Valid(payload) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(payload)
}
