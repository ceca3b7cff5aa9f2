package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart belongs to exactly one of a user or an anonymous session.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex:ux_carts_user_id"`
	SessionID *string    `gorm:"column:session_id;uniqueIndex:ux_carts_session_id"`
	ExpireAt  time.Time  `gorm:"column:expire_at;not null;index"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CartItem is unique per (cart, product, variant). VariantKey holds the
// variant id, or "" for variant-less lines, so the unique index never sees NULL.
type CartItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_items_line,priority:1"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_line,priority:2"`
	ProductVariantID *uuid.UUID      `gorm:"column:product_variant_id;type:uuid;index"`
	VariantKey       string          `gorm:"column:variant_key;not null;default:'';uniqueIndex:ux_cart_items_line,priority:3"`
	Quantity         int             `gorm:"column:quantity;not null"`
	Product          *Product        `gorm:"foreignKey:ProductID"`
	Variant          *ProductVariant `gorm:"foreignKey:ProductVariantID"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.VariantKey = VariantKey(i.ProductVariantID)
	return nil
}

// VariantKey normalizes an optional variant id for the cart line unique index.
func VariantKey(variantID *uuid.UUID) string {
	if variantID == nil || *variantID == uuid.Nil {
		return ""
	}
	return variantID.String()
}
