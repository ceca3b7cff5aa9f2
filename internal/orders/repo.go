package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	return r.first(ctx, "provider_order_id = ?", providerOrderID)
}

func (r *repository) FindByPreferenceID(ctx context.Context, preferenceID string) (*models.Order, error) {
	return r.first(ctx, "preference_id = ?", preferenceID)
}

// first returns nil, nil when nothing matches.
func (r *repository) first(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.created_at ASC") }).
		Where(query, args...).
		First(&order).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// TransitionStatus moves the order to `to` only while it is still in `from`.
// It reports false when a concurrent writer changed the status first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkStockCommitted sets stock_committed_at once; false means it was already set.
func (r *repository) MarkStockCommitted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, id, "stock_committed_at", at)
}

// MarkCartCleared sets cart_cleared_at once; false means it was already set.
func (r *repository) MarkCartCleared(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, id, "cart_cleared_at", at)
}

func (r *repository) markOnce(ctx context.Context, id uuid.UUID, column string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND "+column+" IS NULL", id).
		Update(column, at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
