package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) hydrated(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("cart_items.created_at ASC") }).
		Preload("Items.Product").
		Preload("Items.Variant")
}

// FindByID loads a cart with its items, products and variants. Returns nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.hydrated(ctx).Where("id = ?", id).First(&cart).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &cart, nil
}

func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.hydrated(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &cart, nil
}

func (r *Repository) FindBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	if err := r.hydrated(ctx).Where("session_id = ?", sessionID).First(&cart).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &cart, nil
}

func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(cart).Error
}

// Touch pushes the cart's expiry forward.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID, expireAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("expire_at", expireAt).Error
}

// Reown moves a session cart to a user.
func (r *Repository) Reown(ctx context.Context, cartID, userID uuid.UUID, expireAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"user_id":    userID,
			"session_id": nil,
			"expire_at":  expireAt,
		}).Error
}

func (r *Repository) FindItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_key = ?", cartID, productID, models.VariantKey(variantID)).
		First(&item).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &item, nil
}

// AddItemQuantity inserts the line or adds to the quantity of the existing line.
func (r *Repository) AddItemQuantity(ctx context.Context, item *models.CartItem) error {
	item.VariantKey = models.VariantKey(item.ProductVariantID)
	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}, {Name: "variant_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(item).Error
}

func (r *Repository) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_key = ?", cartID, productID, models.VariantKey(variantID)).
		Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}

// Delete removes a cart and its lines. Lines are deleted explicitly so the
// behavior does not depend on foreign-key enforcement.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// DeleteExpired removes up to limit carts whose expiry elapsed before now.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	db := r.db.WithContext(ctx)
	var ids []uuid.UUID
	query := db.Model(&models.Cart{}).Where("expire_at < ?", now).Order("expire_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	// re-check expiry so a cart touched since the scan survives with its lines
	stillExpired := db.Model(&models.Cart{}).Select("id").Where("id IN ? AND expire_at < ?", ids, now)
	if err := db.Where("cart_id IN (?)", stillExpired).Delete(&models.CartItem{}).Error; err != nil {
		return 0, err
	}
	result := db.Where("id IN ? AND expire_at < ?", ids, now).Delete(&models.Cart{})
	return result.RowsAffected, result.Error
}

func notFoundAsNil(err error) error {
	if db.IsNotFound(err) {
		return nil
	}
	return err
}
