package quote

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/shipping"
)

type cartAuthorizer interface {
	AuthorizeCart(ctx context.Context, cartID uuid.UUID, identity cart.Identity) (*cart.View, error)
}

type rateClient interface {
	Rates(ctx context.Context, req shipping.RateRequest) ([]shipping.Rate, error)
}

// QuoteInput asks for shipping options for a cart.
type QuoteInput struct {
	CartID       uuid.UUID
	Identity     cart.Identity
	ToPostalCode string
}

// Result lists every signed option; the client picks one and sends it back at checkout.
type Result struct {
	CartID   uuid.UUID `json:"cart_id"`
	CartHash string    `json:"cart_hash"`
	Options  []Quote   `json:"options"`
}

type ServiceParams struct {
	Carts            cartAuthorizer
	Rates            rateClient
	Signer           *Signer
	OriginPostalCode string
	Logger           *logger.Logger
}

type Service struct {
	carts  cartAuthorizer
	rates  rateClient
	signer *Signer
	origin string
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Rates == nil {
		return nil, fmt.Errorf("shipping rate client required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("quote signer required")
	}
	return &Service{
		carts:  params.Carts,
		rates:  params.Rates,
		signer: params.Signer,
		origin: strings.TrimSpace(params.OriginPostalCode),
		logg:   params.Logger,
	}, nil
}

// Quote fetches live rates for the caller's cart and signs each one. Provider
// failures surface as dependency errors; no fallback price is invented.
func (s *Service) Quote(ctx context.Context, input QuoteInput) (*Result, error) {
	postal := strings.TrimSpace(input.ToPostalCode)
	if postal == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination postal code is required")
	}
	view, err := s.carts.AuthorizeCart(ctx, input.CartID, input.Identity)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	rates, err := s.rates.Rates(ctx, shipping.RateRequest{
		FromPostalCode: s.origin,
		ToPostalCode:   postal,
		Parcels:        parcels(view),
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeValidation) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shipping rates unavailable")
	}

	hash := ComputeCartHash(LinesFromCart(view))
	result := &Result{CartID: view.ID, CartHash: hash, Options: make([]Quote, 0, len(rates))}
	for _, rate := range rates {
		signed, err := s.signer.Sign(Quote{
			ServiceID:     rate.ServiceID,
			PriceCents:    rate.PriceCents,
			ToPostalCode:  postal,
			CartID:        view.ID.String(),
			CartHash:      hash,
			Carrier:       rate.Carrier,
			ServiceName:   rate.ServiceName,
			EstimatedDays: rate.EstimatedDays,
		})
		if err != nil {
			return nil, err
		}
		result.Options = append(result.Options, signed)
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"cart_id": view.ID.String(),
			"options": len(result.Options),
		}), "shipping quote issued")
	}
	return result, nil
}

func parcels(view *cart.View) []shipping.Parcel {
	out := make([]shipping.Parcel, 0, len(view.Items))
	for _, item := range view.Items {
		out = append(out, shipping.Parcel{
			Width:    item.Product.Width,
			Height:   item.Product.Height,
			Length:   item.Product.Length,
			Weight:   item.Product.Weight,
			Quantity: item.Quantity,
		})
	}
	return out
}
