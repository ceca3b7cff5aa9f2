package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
)

// View is the hydrated cart returned to clients.
type View struct {
	ID            uuid.UUID  `json:"id"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	SessionID     *string    `json:"session_id,omitempty"`
	ExpireAt      time.Time  `json:"expire_at"`
	Items         []ItemView `json:"items"`
	ItemCount     int        `json:"item_count"`
	SubtotalCents int64      `json:"subtotal_cents"`
	Currency      string     `json:"currency"`
}

type ItemView struct {
	ID             uuid.UUID    `json:"id"`
	ProductID      uuid.UUID    `json:"product_id"`
	VariantID      *uuid.UUID   `json:"variant_id,omitempty"`
	Quantity       int          `json:"quantity"`
	Product        ProductView  `json:"product"`
	Variant        *VariantView `json:"variant,omitempty"`
	LineTotalCents int64        `json:"line_total_cents"`
}

type ProductView struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	PriceCents int64           `json:"price_cents"`
	Currency   string          `json:"currency"`
	Width      decimal.Decimal `json:"width"`
	Height     decimal.Decimal `json:"height"`
	Length     decimal.Decimal `json:"length"`
	Weight     decimal.Decimal `json:"weight"`
}

type VariantView struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color,omitempty"`
	Stock int       `json:"stock"`
	// Available is stock minus what other live carts hold.
	Available int `json:"available"`
}

func buildView(cart *models.Cart, available map[uuid.UUID]int) *View {
	view := &View{
		ID:        cart.ID,
		UserID:    cart.UserID,
		SessionID: cart.SessionID,
		ExpireAt:  cart.ExpireAt,
		Items:     make([]ItemView, 0, len(cart.Items)),
		Currency:  defaultCurrency,
	}
	for _, item := range cart.Items {
		line := ItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.ProductVariantID,
			Quantity:  item.Quantity,
		}
		if item.Product != nil {
			line.Product = ProductView{
				ID:         item.Product.ID,
				Name:       item.Product.Name,
				PriceCents: item.Product.PriceCents,
				Currency:   item.Product.Currency,
				Width:      item.Product.Width,
				Height:     item.Product.Height,
				Length:     item.Product.Length,
				Weight:     item.Product.Weight,
			}
			line.LineTotalCents = item.Product.PriceCents * int64(item.Quantity)
			if item.Product.Currency != "" {
				view.Currency = item.Product.Currency
			}
		}
		if item.Variant != nil {
			line.Variant = &VariantView{
				ID:        item.Variant.ID,
				Name:      item.Variant.Name,
				Color:     item.Variant.Color,
				Stock:     item.Variant.Stock,
				Available: available[item.Variant.ID],
			}
		}
		view.Items = append(view.Items, line)
		view.ItemCount += item.Quantity
		view.SubtotalCents += line.LineTotalCents
	}
	return view
}
