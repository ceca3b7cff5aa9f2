// Package webhooks reconciles payment provider notifications against local orders.
package webhooks

import (
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/square"
)

// Event is a parsed provider notification. Exactly one of PaymentEvent,
// MerchantOrderEvent or UnknownEvent.
type Event interface {
	Topic() string
	ExternalID() string
	isEvent()
}

// PaymentEvent references a provider payment whose state must be fetched.
type PaymentEvent struct {
	Type      string
	EventID   string
	PaymentID string
}

// MerchantOrderEvent references a provider order whose state must be fetched.
type MerchantOrderEvent struct {
	Type    string
	EventID string
	OrderID string
}

// UnknownEvent is any notification reconciliation does not act on.
type UnknownEvent struct {
	Type    string
	EventID string
}

func (e PaymentEvent) Topic() string       { return e.Type }
func (e MerchantOrderEvent) Topic() string { return e.Type }
func (e UnknownEvent) Topic() string       { return e.Type }

// ExternalID falls back to the resource id when the provider sent no event id.
func (e PaymentEvent) ExternalID() string       { return firstNonEmpty(e.EventID, e.PaymentID) }
func (e MerchantOrderEvent) ExternalID() string { return firstNonEmpty(e.EventID, e.OrderID) }
func (e UnknownEvent) ExternalID() string       { return e.EventID }

func (PaymentEvent) isEvent()       {}
func (MerchantOrderEvent) isEvent() {}
func (UnknownEvent) isEvent()       {}

// FromSquare classifies a Square notification.
func FromSquare(n *square.Notification) Event {
	if n == nil {
		return UnknownEvent{}
	}
	switch {
	case strings.HasPrefix(n.Type, "payment."):
		if n.ObjectID == "" {
			break
		}
		return PaymentEvent{Type: n.Type, EventID: n.EventID, PaymentID: n.ObjectID}
	case strings.HasPrefix(n.Type, "refund."):
		if n.PaymentID == "" {
			break
		}
		return PaymentEvent{Type: n.Type, EventID: n.EventID, PaymentID: n.PaymentID}
	case n.Type == "order.created" || n.Type == "order.updated":
		if n.ObjectID == "" {
			break
		}
		return MerchantOrderEvent{Type: n.Type, EventID: n.EventID, OrderID: n.ObjectID}
	}
	return UnknownEvent{Type: n.Type, EventID: n.EventID}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
