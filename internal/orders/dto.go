package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// LineInput is one requested order line.
type LineInput struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
}

// OrderView is the public status-page projection of an order.
type OrderView struct {
	ID              uuid.UUID         `json:"id"`
	Status          enums.OrderStatus `json:"status"`
	Flow            enums.OrderFlow   `json:"flow"`
	Currency        string            `json:"currency"`
	SubtotalCents   int64             `json:"subtotal_cents"`
	ShippingCents   int64             `json:"shipping_cents"`
	TotalCents      int64             `json:"total_cents"`
	PaidCents       *int64            `json:"paid_cents,omitempty"`
	DeliveryOption  string            `json:"delivery_option,omitempty"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
	RedirectURL     *string           `json:"redirect_url,omitempty"`
	ShippingService *string           `json:"shipping_service_id,omitempty"`
	Items           []OrderItemView   `json:"items"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// OrderItemView is one priced line of an order.
type OrderItemView struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	Name           string     `json:"name"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	LineTotalCents int64      `json:"line_total_cents"`
}

func toView(order *models.Order) *OrderView {
	view := &OrderView{
		ID:              order.ID,
		Status:          order.Status,
		Flow:            order.Flow,
		Currency:        order.Currency,
		SubtotalCents:   order.SubtotalCents,
		ShippingCents:   order.ShippingCents,
		TotalCents:      order.TotalCents,
		PaidCents:       order.PaidCents,
		DeliveryOption:  order.DeliveryOption,
		PaymentMethod:   order.PaymentMethod,
		RedirectURL:     order.RedirectURL,
		ShippingService: order.ShippingServiceID,
		Items:           make([]OrderItemView, 0, len(order.Items)),
		PaidAt:          order.PaidAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID:      item.ProductID,
			VariantID:      item.ProductVariantID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return view
}
