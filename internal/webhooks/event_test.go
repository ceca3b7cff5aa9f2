package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/square"
)

func TestFromSquareClassifiesEvents(t *testing.T) {
	cases := []struct {
		name string
		in   *square.Notification
		want Event
	}{
		{
			name: "payment",
			in:   &square.Notification{EventID: "e1", Type: "payment.updated", ObjectType: "payment", ObjectID: "pay_1"},
			want: PaymentEvent{Type: "payment.updated", EventID: "e1", PaymentID: "pay_1"},
		},
		{
			name: "refund references its payment",
			in:   &square.Notification{EventID: "e2", Type: "refund.updated", ObjectID: "ref_1", PaymentID: "pay_1"},
			want: PaymentEvent{Type: "refund.updated", EventID: "e2", PaymentID: "pay_1"},
		},
		{
			name: "order",
			in:   &square.Notification{EventID: "e3", Type: "order.updated", ObjectID: "ord_1"},
			want: MerchantOrderEvent{Type: "order.updated", EventID: "e3", OrderID: "ord_1"},
		},
		{
			name: "payment without id",
			in:   &square.Notification{EventID: "e4", Type: "payment.created"},
			want: UnknownEvent{Type: "payment.created", EventID: "e4"},
		},
		{
			name: "other topic",
			in:   &square.Notification{EventID: "e5", Type: "customer.created", ObjectID: "c1"},
			want: UnknownEvent{Type: "customer.created", EventID: "e5"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FromSquare(tc.in))
		})
	}
	assert.Equal(t, UnknownEvent{}, FromSquare(nil))
}

func TestExternalIDFallsBackToResource(t *testing.T) {
	assert.Equal(t, "pay_1", PaymentEvent{PaymentID: "pay_1"}.ExternalID())
	assert.Equal(t, "e1", PaymentEvent{EventID: "e1", PaymentID: "pay_1"}.ExternalID())
	assert.Equal(t, "ord_1", MerchantOrderEvent{OrderID: "ord_1"}.ExternalID())
	assert.Empty(t, UnknownEvent{}.ExternalID())
}

func TestMapStatus(t *testing.T) {
	payment := PaymentEvent{}
	order := MerchantOrderEvent{}
	cases := []struct {
		event  Event
		status string
		want   enums.OrderStatus
		ok     bool
	}{
		{payment, "COMPLETED", enums.OrderStatusPaid, true},
		{payment, "approved", enums.OrderStatusPending, true},
		{payment, "PENDING", enums.OrderStatusPending, true},
		{payment, "FAILED", enums.OrderStatusFailed, true},
		{payment, "CANCELED", enums.OrderStatusCancelled, true},
		{payment, "REFUNDED", enums.OrderStatusRefunded, true},
		{payment, "CHARGED_BACK", enums.OrderStatusRefunded, true},
		{payment, "OPEN", "", false},
		{order, "COMPLETED", enums.OrderStatusPaid, true},
		{order, "OPEN", enums.OrderStatusPending, true},
		{order, "CANCELED", enums.OrderStatusCancelled, true},
		{order, "DRAFT", "", false},
		{UnknownEvent{}, "COMPLETED", "", false},
	}
	for _, tc := range cases {
		got, ok := MapStatus(enums.PaymentProviderSquare, tc.event, tc.status)
		assert.Equal(t, tc.ok, ok, "%T %s", tc.event, tc.status)
		assert.Equal(t, tc.want, got, "%T %s", tc.event, tc.status)
	}
	_, ok := MapStatus(enums.PaymentProvider("paypal"), payment, "COMPLETED")
	assert.False(t, ok)
}
