package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	"github.com/angelmondragon/storefront-core/internal/quote"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// QuoteService signs live shipping rates for a cart.
type QuoteService interface {
	Quote(ctx context.Context, input quote.QuoteInput) (*quote.Result, error)
}

type shippingQuoteRequest struct {
	CartID       uuid.UUID `json:"cart_id" validate:"required"`
	ToPostalCode string    `json:"to_postal_code" validate:"required,max=16"`
}

func ShippingQuote(svc QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload shippingQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Quote(r.Context(), quote.QuoteInput{
			CartID:       payload.CartID,
			Identity:     middleware.IdentityFromContext(r.Context()),
			ToPostalCode: validators.SanitizeString(payload.ToPostalCode, 16),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
