package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
)

// Product seeds a 10x12x10cm, 0.4kg product priced at priceCents.
func Product(t *testing.T, conn *gorm.DB, name string, priceCents int64) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:       name,
		PriceCents: priceCents,
		Currency:   "USD",
		Width:      decimal.NewFromInt(10),
		Height:     decimal.NewFromInt(12),
		Length:     decimal.NewFromInt(10),
		Weight:     decimal.RequireFromString("0.4"),
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// Variant seeds a variant of product with the given stock.
func Variant(t *testing.T, conn *gorm.DB, product *models.Product, name string, stock int) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{ProductID: product.ID, Name: name, Stock: stock}
	if err := conn.Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

// SessionCart seeds an anonymous cart expiring at expireAt.
func SessionCart(t *testing.T, conn *gorm.DB, sessionID string, expireAt time.Time) *models.Cart {
	t.Helper()
	cart := &models.Cart{SessionID: &sessionID, ExpireAt: expireAt}
	if err := conn.Omit("Items").Create(cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return cart
}

// UserCart seeds a user-owned cart expiring at expireAt.
func UserCart(t *testing.T, conn *gorm.DB, userID uuid.UUID, expireAt time.Time) *models.Cart {
	t.Helper()
	cart := &models.Cart{UserID: &userID, ExpireAt: expireAt}
	if err := conn.Omit("Items").Create(cart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	return cart
}

// CartLine seeds a cart line. variant may be nil.
func CartLine(t *testing.T, conn *gorm.DB, cart *models.Cart, product *models.Product, variant *models.ProductVariant, qty int) *models.CartItem {
	t.Helper()
	item := &models.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: qty}
	if variant != nil {
		id := variant.ID
		item.ProductVariantID = &id
	}
	if err := conn.Omit("Product", "Variant").Create(item).Error; err != nil {
		t.Fatalf("seed cart line: %v", err)
	}
	return item
}

// Stock reads a variant's current stock.
func Stock(t *testing.T, conn *gorm.DB, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	if err := conn.First(&variant, "id = ?", variantID).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return variant.Stock
}
