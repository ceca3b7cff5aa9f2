// Package catalog reads products and variants and owns the only catalog write: the stock decrement.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

// Repository exposes catalog reads scoped to a connection or transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindProduct returns a product or a NotFound error.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return &product, nil
}

// FindVariant returns a variant that belongs to productID, or NotFound.
func (r *Repository) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product variant")
	}
	return &variant, nil
}

// ReservedElsewhere sums the quantity of variantID held by unexpired carts other than excludeCartID.
func (r *Repository) ReservedElsewhere(ctx context.Context, variantID, excludeCartID uuid.UUID, now time.Time) (int, error) {
	var reserved int64
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.product_variant_id = ?", variantID).
		Where("cart_items.cart_id <> ?", excludeCartID).
		Where("carts.expire_at > ?", now).
		Select("COALESCE(SUM(cart_items.quantity), 0)").
		Scan(&reserved).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum reserved stock")
	}
	return int(reserved), nil
}

// DecrementStock atomically takes qty from the variant's stock and reports false
// when the remaining stock was insufficient. Run it inside the order transaction.
func (r *Repository) DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	result := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "decrement stock")
	}
	return result.RowsAffected == 1, nil
}

// Stock reads the current stock of a variant, 0 when it does not exist.
func (r *Repository) Stock(ctx context.Context, variantID uuid.UUID) (int, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).Select("stock").Where("id = ?", variantID).First(&variant).Error
	if err != nil {
		if db.IsNotFound(err) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock")
	}
	return variant.Stock, nil
}
