package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent is emitted when reconciliation moves an order to paid.
type OrderPaidEvent struct {
	OrderID         uuid.UUID  `json:"order_id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Provider        string     `json:"provider"`
	ProviderOrderID string     `json:"provider_order_id,omitempty"`
	TotalCents      int64      `json:"total_cents"`
	PaidCents       int64      `json:"paid_cents"`
	Currency        string     `json:"currency"`
	ItemCount       int        `json:"item_count"`
	PaidAt          time.Time  `json:"paid_at"`
}

// StockShortageEvent flags a paid online order whose stock could not be fully committed.
type StockShortageEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}
