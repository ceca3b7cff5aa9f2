package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/quote"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// CheckoutService opens provider payments for a quoted cart.
type CheckoutService interface {
	CreatePayment(ctx context.Context, input checkout.CreatePaymentInput) (*checkout.PaymentResult, error)
}

type createPaymentRequest struct {
	CartID      uuid.UUID   `json:"cart_id" validate:"required"`
	Quote       quote.Quote `json:"quote"`
	RedirectURL string      `json:"redirect_url,omitempty" validate:"omitempty,url,max=2048"`
}

// CheckoutCreatePayment falls back to defaultRedirect when the client sends none.
func CheckoutCreatePayment(svc CheckoutService, defaultRedirect string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redirect := strings.TrimSpace(payload.RedirectURL)
		if redirect == "" {
			redirect = defaultRedirect
		}

		result, err := svc.CreatePayment(r.Context(), checkout.CreatePaymentInput{
			CartID:      payload.CartID,
			Quote:       payload.Quote,
			Identity:    middleware.IdentityFromContext(r.Context()),
			RedirectURL: redirect,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
