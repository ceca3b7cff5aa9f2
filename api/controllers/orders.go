package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// OrdersService is the order surface the handlers drive.
type OrdersService interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*orders.OrderView, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, viewer orders.Viewer) (*orders.OrderView, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*orders.OrderView, error)
}

type createOrderRequest struct {
	CartID         *uuid.UUID         `json:"cart_id,omitempty"`
	Items          []orders.LineInput `json:"items" validate:"required,min=1,max=100,dive"`
	DeliveryOption string             `json:"delivery_option" validate:"required,max=64"`
	PaymentMethod  string             `json:"payment_method" validate:"required,max=64"`
}

// OrdersCreate places a manual order and takes stock immediately.
func OrdersCreate(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.CreateOrder(r.Context(), orders.CreateOrderInput{
			Identity:       middleware.IdentityFromContext(r.Context()),
			CartID:         payload.CartID,
			Items:          payload.Items,
			DeliveryOption: payload.DeliveryOption,
			PaymentMethod:  payload.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func OrdersGet(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		identity := middleware.IdentityFromContext(r.Context())
		view, err := svc.GetOrder(r.Context(), orderID, orders.Viewer{
			UserID: identity.UserID,
			Admin:  middleware.RoleFromContext(r.Context()) == string(enums.UserRoleAdmin),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminOrdersMarkPaid records payment collected for a manual order.
func AdminOrdersMarkPaid(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.MarkPaid(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
