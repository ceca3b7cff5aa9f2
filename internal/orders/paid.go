package orders

import (
	"time"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/outbox/payloads"
)

// PaidEvent builds the order.paid outbox event for an order that just became paid.
func PaidEvent(order *models.Order, provider string, paidCents int64, paidAt time.Time) outbox.DomainEvent {
	itemCount := 0
	for _, item := range order.Items {
		itemCount += item.Quantity
	}
	providerOrderID := ""
	if order.ProviderOrderID != nil {
		providerOrderID = *order.ProviderOrderID
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OccurredAt:    paidAt,
		Data: payloads.OrderPaidEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			Provider:        provider,
			ProviderOrderID: providerOrderID,
			TotalCents:      order.TotalCents,
			PaidCents:       paidCents,
			Currency:        order.Currency,
			ItemCount:       itemCount,
			PaidAt:          paidAt,
		},
	}
}
