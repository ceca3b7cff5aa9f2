package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// Order records a checkout. TotalCents is fixed at creation and only ever
// compared against provider-reported amounts.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID             *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	CartID             *uuid.UUID        `gorm:"column:cart_id;type:uuid;index"`
	Status             enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	Flow               enums.OrderFlow   `gorm:"column:flow;not null"`
	Currency           string            `gorm:"column:currency;not null;default:'USD'"`
	SubtotalCents      int64             `gorm:"column:subtotal_cents;not null"`
	ShippingCents      int64             `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents         int64             `gorm:"column:total_cents;not null"`
	DeliveryOption     string            `gorm:"column:delivery_option"`
	PaymentMethod      string            `gorm:"column:payment_method"`
	PaymentProvider    *string           `gorm:"column:payment_provider"`
	PreferenceID       *string           `gorm:"column:preference_id;uniqueIndex:ux_orders_preference_id"`
	ProviderOrderID    *string           `gorm:"column:provider_order_id;uniqueIndex:ux_orders_provider_order_id"`
	RedirectURL        *string           `gorm:"column:redirect_url"`
	ShippingServiceID  *string           `gorm:"column:shipping_service_id"`
	ShippingPostalCode *string           `gorm:"column:shipping_postal_code"`
	PaidCents          *int64            `gorm:"column:paid_cents"`
	StockCommittedAt   *time.Time        `gorm:"column:stock_committed_at"`
	CartClearedAt      *time.Time        `gorm:"column:cart_cleared_at"`
	PaidAt             *time.Time        `gorm:"column:paid_at"`
	Items              []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is the priced snapshot of one checkout line.
type OrderItem struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	ProductVariantID *uuid.UUID `gorm:"column:product_variant_id;type:uuid"`
	Name             string     `gorm:"column:name;not null"`
	Quantity         int        `gorm:"column:quantity;not null"`
	UnitPriceCents   int64      `gorm:"column:unit_price_cents;not null"`
	LineTotalCents   int64      `gorm:"column:line_total_cents;not null"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
