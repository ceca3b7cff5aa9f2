package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

const (
	defaultTTL      = 10 * time.Minute
	defaultCurrency = "USD"
)

// Identity is the caller a cart belongs to. A user id wins over a session id.
type Identity struct {
	UserID    *uuid.UUID
	SessionID string
}

func (i Identity) valid() bool {
	return (i.UserID != nil && *i.UserID != uuid.Nil) || strings.TrimSpace(i.SessionID) != ""
}

// Owns reports whether the identity may act on the cart.
func (i Identity) Owns(c *models.Cart) bool {
	if c == nil {
		return false
	}
	if c.UserID != nil {
		return i.UserID != nil && *i.UserID == *c.UserID
	}
	return c.SessionID != nil && i.SessionID != "" && *c.SessionID == i.SessionID
}

// OwnsView is Owns for an already hydrated cart.
func (i Identity) OwnsView(v *View) bool {
	if v == nil {
		return false
	}
	return i.Owns(&models.Cart{UserID: v.UserID, SessionID: v.SessionID})
}

// AddItemInput is one add-to-cart request.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// ServiceParams wires the cart service.
type ServiceParams struct {
	Repo    CartRepository
	Catalog catalogReader
	Tx      txRunner
	TTL     time.Duration
	Now     func() time.Time
	Logger  *logger.Logger
}

// Service keeps carts server-authoritative and stock-aware.
type Service struct {
	repo    CartRepository
	catalog catalogReader
	tx      txRunner
	ttl     time.Duration
	now     func() time.Time
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		catalog: params.Catalog,
		tx:      params.Tx,
		ttl:     ttl,
		now:     func() time.Time { return now().UTC() },
		logg:    params.Logger,
	}, nil
}

// GetOrCreateCart returns the caller's live cart, creating one when needed.
// A cart found past its expiry is discarded and replaced.
func (s *Service) GetOrCreateCart(ctx context.Context, identity Identity) (*View, error) {
	if !identity.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidIdentity, "a user or session identity is required")
	}
	now := s.now()

	existing, err := s.findForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ExpireAt.After(now) {
		return s.hydrate(ctx, existing)
	}
	if existing != nil {
		if err := s.deleteCart(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	cart := &models.Cart{ExpireAt: now.Add(s.ttl)}
	if identity.UserID != nil && *identity.UserID != uuid.Nil {
		userID := *identity.UserID
		cart.UserID = &userID
	} else {
		session := strings.TrimSpace(identity.SessionID)
		cart.SessionID = &session
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		if db.IsUniqueViolation(err, "") {
			// lost a creation race; the winner's cart is the caller's cart
			winner, findErr := s.findForIdentity(ctx, identity)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return s.hydrate(ctx, winner)
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return s.hydrate(ctx, cart)
}

func (s *Service) findForIdentity(ctx context.Context, identity Identity) (*models.Cart, error) {
	var (
		cart *models.Cart
		err  error
	)
	if identity.UserID != nil && *identity.UserID != uuid.Nil {
		cart, err = s.repo.FindByUser(ctx, *identity.UserID)
	} else {
		cart, err = s.repo.FindBySession(ctx, strings.TrimSpace(identity.SessionID))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

// GetCart returns the hydrated cart or NotFound.
func (s *Service) GetCart(ctx context.Context, cartID uuid.UUID) (*View, error) {
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, cart)
}

// AuthorizeCart loads the cart and enforces ownership. A foreign cart is
// reported as NotFound so cart ids cannot be probed.
func (s *Service) AuthorizeCart(ctx context.Context, cartID uuid.UUID, identity Identity) (*View, error) {
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !identity.Owns(cart) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return s.hydrate(ctx, cart)
}

// AddItem adds quantity of a product (and optional variant) to the cart.
func (s *Service) AddItem(ctx context.Context, cartID uuid.UUID, input AddItemInput) (*View, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindProduct(ctx, input.ProductID); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindItem(ctx, cart.ID, input.ProductID, input.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
	}
	inCart := 0
	if existing != nil {
		inCart = existing.Quantity
	}

	if input.VariantID != nil {
		if err := s.checkStock(ctx, cart.ID, input.ProductID, *input.VariantID, inCart+input.Quantity); err != nil {
			return nil, err
		}
	}

	item := &models.CartItem{
		CartID:           cart.ID,
		ProductID:        input.ProductID,
		ProductVariantID: input.VariantID,
		Quantity:         input.Quantity,
	}
	if err := s.repo.AddItemQuantity(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
	}
	return s.touchAndHydrate(ctx, cart.ID)
}

// RemoveItem deletes the matching line. Removing an absent line is not an error.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*View, error) {
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.DeleteItem(ctx, cart.ID, productID, variantID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart item")
	}
	return s.touchAndHydrate(ctx, cart.ID)
}

// UpdateItemQuantity overwrites a line's quantity; zero or less removes it.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int, variantID *uuid.UUID) (*View, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, cartID, productID, variantID)
	}
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindItem(ctx, cart.ID, productID, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if variantID != nil {
		if err := s.checkStock(ctx, cart.ID, productID, *variantID, quantity); err != nil {
			return nil, err
		}
	}
	if err := s.repo.SetItemQuantity(ctx, existing.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart item")
	}
	return s.touchAndHydrate(ctx, cart.ID)
}

// ClearCart deletes the cart and its lines.
func (s *Service) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	return s.deleteCart(ctx, cartID)
}

// MigrateSessionCartToUser hands an anonymous cart to the user who just signed in.
// Without a user cart the session cart is re-owned; otherwise lines are merged
// into the user cart (quantities summed per product and variant) and the session
// cart is removed. Merged quantities are not capped; checkout re-checks stock.
// Returns nil when the session has no cart.
func (s *Service) MigrateSessionCartToUser(ctx context.Context, sessionID string, userID uuid.UUID) (*View, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidIdentity, "session and user are required")
	}
	sessionCart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load session cart")
	}
	if sessionCart == nil {
		return nil, nil
	}
	userCart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user cart")
	}

	expireAt := s.now().Add(s.ttl)
	if userCart == nil {
		if err := s.repo.Reown(ctx, sessionCart.ID, userID, expireAt); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reassign cart")
		}
		return s.GetCart(ctx, sessionCart.ID)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, item := range sessionCart.Items {
			merged := &models.CartItem{
				CartID:           userCart.ID,
				ProductID:        item.ProductID,
				ProductVariantID: item.ProductVariantID,
				Quantity:         item.Quantity,
			}
			if err := repo.AddItemQuantity(ctx, merged); err != nil {
				return err
			}
		}
		if err := repo.Delete(ctx, sessionCart.ID); err != nil {
			return err
		}
		return repo.Touch(ctx, userCart.ID, expireAt)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge session cart")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cart_id":        userCart.ID.String(),
			"merged_cart_id": sessionCart.ID.String(),
			"merged_lines":   len(sessionCart.Items),
		}), "session cart merged into user cart")
	}
	return s.GetCart(ctx, userCart.ID)
}

// ExpireStale deletes up to limit carts whose expiry is before now.
func (s *Service) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, now.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete expired carts")
	}
	return deleted, nil
}

func (s *Service) checkStock(ctx context.Context, cartID, productID, variantID uuid.UUID, wanted int) error {
	variant, err := s.catalog.FindVariant(ctx, productID, variantID)
	if err != nil {
		return err
	}
	reserved, err := s.catalog.ReservedElsewhere(ctx, variantID, cartID, s.now())
	if err != nil {
		return err
	}
	available := variant.Stock - reserved
	if wanted > available {
		return pkgerrors.InsufficientStock(variantID.String(), available, wanted)
	}
	return nil
}

func (s *Service) load(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	cart, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

func (s *Service) deleteCart(ctx context.Context, cartID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Delete(ctx, cartID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart")
	}
	return nil
}

func (s *Service) touchAndHydrate(ctx context.Context, cartID uuid.UUID) (*View, error) {
	if err := s.repo.Touch(ctx, cartID, s.now().Add(s.ttl)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refresh cart expiry")
	}
	return s.GetCart(ctx, cartID)
}

func (s *Service) hydrate(ctx context.Context, cart *models.Cart) (*View, error) {
	available := make(map[uuid.UUID]int)
	now := s.now()
	for _, item := range cart.Items {
		if item.Variant == nil {
			continue
		}
		reserved, err := s.catalog.ReservedElsewhere(ctx, item.Variant.ID, cart.ID, now)
		if err != nil {
			return nil, err
		}
		left := item.Variant.Stock - reserved
		if left < 0 {
			left = 0
		}
		available[item.Variant.ID] = left
	}
	return buildView(cart, available), nil
}
