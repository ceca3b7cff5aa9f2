package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/catalog"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
)

const manualProvider = "manual"

// CreateOrderInput is a manual (pickup / pay-on-delivery) order request.
type CreateOrderInput struct {
	Identity       cart.Identity
	CartID         *uuid.UUID
	Items          []LineInput
	DeliveryOption string
	PaymentMethod  string
}

// Viewer is the caller reading an order.
type Viewer struct {
	UserID *uuid.UUID
	Admin  bool
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repo    Repository
	Catalog *catalog.Repository
	Carts   cart.CartRepository
	Outbox  *outbox.Service
	Tx      txRunner
	Now     func() time.Time
	Logger  *logger.Logger
}

// Service creates manual orders and exposes order reads and admin transitions.
type Service struct {
	repo    Repository
	catalog *catalog.Repository
	carts   cart.CartRepository
	outbox  *outbox.Service
	tx      txRunner
	now     func() time.Time
	logg    *logger.Logger
}

// NewService builds an orders service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		catalog: params.Catalog,
		carts:   params.Carts,
		outbox:  params.Outbox,
		tx:      params.Tx,
		now:     func() time.Time { return now().UTC() },
		logg:    params.Logger,
	}, nil
}

// CreateOrder prices the lines, decrements stock and records a pending manual
// order in one transaction. Any shortage rolls the whole order back.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderView, error) {
	lines, err := coalesce(input.Items)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalogTx := s.catalog.WithTx(tx)
		now := s.now()

		order := &models.Order{
			ID:             uuid.New(),
			UserID:         input.Identity.UserID,
			Status:         enums.OrderStatusPending,
			Flow:           enums.OrderFlowManual,
			DeliveryOption: strings.TrimSpace(input.DeliveryOption),
			PaymentMethod:  strings.TrimSpace(input.PaymentMethod),
		}
		// stock is taken below, before the order row exists
		order.StockCommittedAt = &now

		for _, line := range lines {
			product, err := catalogTx.FindProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			name := product.Name
			if line.VariantID != nil {
				variant, err := catalogTx.FindVariant(ctx, product.ID, *line.VariantID)
				if err != nil {
					return err
				}
				ok, err := catalogTx.DecrementStock(ctx, variant.ID, line.Quantity)
				if err != nil {
					return err
				}
				if !ok {
					available, err := catalogTx.Stock(ctx, variant.ID)
					if err != nil {
						return err
					}
					return pkgerrors.InsufficientStock(variant.ID.String(), available, line.Quantity)
				}
				name = fmt.Sprintf("%s (%s)", product.Name, variant.Name)
			}
			if order.Currency == "" {
				order.Currency = product.Currency
			}
			lineTotal := product.PriceCents * int64(line.Quantity)
			order.SubtotalCents += lineTotal
			order.Items = append(order.Items, models.OrderItem{
				OrderID:          order.ID,
				ProductID:        product.ID,
				ProductVariantID: line.VariantID,
				Name:             name,
				Quantity:         line.Quantity,
				UnitPriceCents:   product.PriceCents,
				LineTotalCents:   lineTotal,
			})
		}
		// pickup and manual payment carry no shipping
		order.TotalCents = order.SubtotalCents

		if input.CartID != nil {
			cleared, err := s.clearOwnedCart(ctx, tx, *input.CartID, input.Identity)
			if err != nil {
				return err
			}
			if cleared {
				cartID := *input.CartID
				order.CartID = &cartID
				order.CartClearedAt = &now
			}
		}

		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    created.ID.String(),
			"total_cents": created.TotalCents,
			"lines":       len(created.Items),
		})
		s.logg.Info(logCtx, "manual order created")
	}
	return toView(created), nil
}

// clearOwnedCart deletes the source cart only when the caller owns it.
func (s *Service) clearOwnedCart(ctx context.Context, tx *gorm.DB, cartID uuid.UUID, identity cart.Identity) (bool, error) {
	carts := s.carts.WithTx(tx)
	record, err := carts.FindByID(ctx, cartID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if record == nil || !identity.Owns(record) {
		return false, nil
	}
	if err := carts.Delete(ctx, cartID); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return true, nil
}

// GetOrder returns the locally recorded order. An order placed by a signed-in
// user is visible only to that user or an admin. A guest order has no owner to
// check, so its random id is the only credential.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.UserID != nil && !viewer.Admin {
		if viewer.UserID == nil || *viewer.UserID != *order.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	}
	return toView(order), nil
}

// MarkPaid records payment of a manual order collected outside any provider.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status == enums.OrderStatusPaid {
			updated = order
			return nil
		}
		if !enums.CanTransition(order.Status, enums.OrderStatusPaid) {
			return pkgerrors.New(pkgerrors.CodeTransitionRejected,
				fmt.Sprintf("order cannot move from %s to paid", order.Status))
		}

		now := s.now()
		paid := order.TotalCents
		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusPaid, map[string]any{
			"paid_at":    now,
			"paid_cents": paid,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
		}
		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
		order.PaidCents = &paid

		if err := s.outbox.Emit(ctx, tx, PaidEvent(order, manualProvider, paid, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toView(updated), nil
}

// coalesce validates lines and merges duplicates of the same product and variant.
func coalesce(items []LineInput) ([]LineInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	index := make(map[string]int, len(items))
	out := make([]LineInput, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
		key := item.ProductID.String() + "|" + models.VariantKey(item.VariantID)
		if pos, ok := index[key]; ok {
			out[pos].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out, nil
}
