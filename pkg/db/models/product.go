package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog row read by the checkout core. Dimensions are in
// centimetres and weight in kilograms.
type Product struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name       string           `gorm:"column:name;not null"`
	PriceCents int64            `gorm:"column:price_cents;not null"`
	Currency   string           `gorm:"column:currency;not null;default:'USD'"`
	Width      decimal.Decimal  `gorm:"column:width;type:numeric(10,3);not null"`
	Height     decimal.Decimal  `gorm:"column:height;type:numeric(10,3);not null"`
	Length     decimal.Decimal  `gorm:"column:length;type:numeric(10,3);not null"`
	Weight     decimal.Decimal  `gorm:"column:weight;type:numeric(10,3);not null"`
	Variants   []ProductVariant `gorm:"foreignKey:ProductID"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductVariant carries the stock counter. Only variants are stock tracked.
type ProductVariant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	Color     string    `gorm:"column:color"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
