// Package checkout prepares online payments: it checks a signed shipping quote
// against the live cart, opens a provider payment link and records a pending order.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/internal/quote"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/payments"
)

type cartLoader interface {
	GetCart(ctx context.Context, cartID uuid.UUID) (*cart.View, error)
}

type quoteVerifier interface {
	Verify(q quote.Quote) error
}

type orderWriter interface {
	Create(ctx context.Context, order *models.Order) error
}

// CreatePaymentInput carries the cart, the quote the client chose and the caller.
type CreatePaymentInput struct {
	CartID      uuid.UUID
	Quote       quote.Quote
	Identity    cart.Identity
	RedirectURL string
}

// PaymentResult is what the client needs to send the buyer to the provider.
type PaymentResult struct {
	OrderID      uuid.UUID `json:"order_id"`
	PreferenceID string    `json:"preference_id"`
	RedirectURL  string    `json:"redirect_url"`
	TotalCents   int64     `json:"total_cents"`
	Currency     string    `json:"currency"`
}

type ServiceParams struct {
	Carts    cartLoader
	Quotes   quoteVerifier
	Orders   orderWriter
	Provider payments.Provider
	Logger   *logger.Logger
}

type Service struct {
	carts    cartLoader
	quotes   quoteVerifier
	orders   orderWriter
	provider payments.Provider
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote verifier required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	return &Service{
		carts:    params.Carts,
		quotes:   params.Quotes,
		orders:   params.Orders,
		provider: params.Provider,
		logg:     params.Logger,
	}, nil
}

// CreatePayment validates the quote against the cart as it is now, creates the
// provider preference and only then records the pending online order. Stock is
// left untouched until the provider confirms payment.
func (s *Service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*PaymentResult, error) {
	view, err := s.carts.GetCart(ctx, input.CartID)
	if err != nil {
		return nil, err
	}
	if !input.Identity.OwnsView(view) {
		return nil, pkgerrors.New(pkgerrors.CodeCartMismatch, "cart does not belong to the caller")
	}
	if strings.TrimSpace(input.Quote.CartID) != view.ID.String() {
		return nil, pkgerrors.New(pkgerrors.CodeCartMismatch, "quote was issued for another cart")
	}
	if err := s.quotes.Verify(input.Quote); err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if quote.ComputeCartHash(quote.LinesFromCart(view)) != input.Quote.CartHash {
		return nil, pkgerrors.New(pkgerrors.CodeCartMismatch, "cart changed since the quote was issued")
	}

	order := buildOrder(view, input.Quote, input.Identity)
	pref := payments.Preference{
		ReferenceID:    order.ID.String(),
		IdempotencyKey: "checkout-" + order.ID.String(),
		Currency:       order.Currency,
		RedirectURL:    strings.TrimSpace(input.RedirectURL),
		Shipping: &payments.Line{
			Name:           shippingLineName(input.Quote),
			Quantity:       1,
			UnitPriceCents: input.Quote.PriceCents,
		},
	}
	for _, item := range order.Items {
		pref.Lines = append(pref.Lines, payments.Line{
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	created, err := s.provider.CreatePreference(ctx, pref)
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment preference")
		}
		return nil, err
	}

	provider := string(s.provider.Name())
	order.PaymentProvider = &provider
	order.PreferenceID = nonEmpty(created.PreferenceID)
	order.ProviderOrderID = nonEmpty(created.ProviderOrderID)
	order.RedirectURL = nonEmpty(created.RedirectURL)
	if err := s.orders.Create(ctx, order); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":      order.ID.String(),
				"preference_id": created.PreferenceID,
			})
			s.logg.Error(logCtx, "persist online order after preference creation", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":      order.ID.String(),
			"preference_id": created.PreferenceID,
			"total_cents":   order.TotalCents,
		})
		s.logg.Info(logCtx, "online order pending payment")
	}
	return &PaymentResult{
		OrderID:      order.ID,
		PreferenceID: created.PreferenceID,
		RedirectURL:  created.RedirectURL,
		TotalCents:   order.TotalCents,
		Currency:     order.Currency,
	}, nil
}

func buildOrder(view *cart.View, q quote.Quote, identity cart.Identity) *models.Order {
	cartID := view.ID
	serviceID := strings.TrimSpace(q.ServiceID)
	postal := strings.TrimSpace(q.ToPostalCode)
	order := &models.Order{
		ID:                 uuid.New(),
		UserID:             identity.UserID,
		CartID:             &cartID,
		Status:             enums.OrderStatusPending,
		Flow:               enums.OrderFlowOnline,
		Currency:           view.Currency,
		ShippingCents:      q.PriceCents,
		DeliveryOption:     "shipping",
		PaymentMethod:      "online",
		ShippingServiceID:  &serviceID,
		ShippingPostalCode: &postal,
	}
	for _, item := range view.Items {
		name := item.Product.Name
		if item.Variant != nil {
			name = fmt.Sprintf("%s (%s)", item.Product.Name, item.Variant.Name)
		}
		order.SubtotalCents += item.LineTotalCents
		order.Items = append(order.Items, models.OrderItem{
			OrderID:          order.ID,
			ProductID:        item.ProductID,
			ProductVariantID: item.VariantID,
			Name:             name,
			Quantity:         item.Quantity,
			UnitPriceCents:   item.Product.PriceCents,
			LineTotalCents:   item.LineTotalCents,
		})
	}
	order.TotalCents = order.SubtotalCents + order.ShippingCents
	return order
}

func shippingLineName(q quote.Quote) string {
	if name := strings.TrimSpace(q.ServiceName); name != "" {
		return "Shipping: " + name
	}
	return "Shipping: " + strings.TrimSpace(q.ServiceID)
}

func nonEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

var _ orderWriter = (orders.Repository)(nil)
