package webhooks

import (
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

type statusTable map[string]enums.OrderStatus

// squarePaymentStatuses maps Payment.status. REFUNDED is synthesized by the
// adapter when the refunded amount covers the total.
var squarePaymentStatuses = statusTable{
	"COMPLETED":    enums.OrderStatusPaid,
	"APPROVED":     enums.OrderStatusPending,
	"PENDING":      enums.OrderStatusPending,
	"FAILED":       enums.OrderStatusFailed,
	"CANCELED":     enums.OrderStatusCancelled,
	"REFUNDED":     enums.OrderStatusRefunded,
	"CHARGED_BACK": enums.OrderStatusRefunded,
}

// squareOrderStatuses maps Order.state.
var squareOrderStatuses = statusTable{
	"COMPLETED": enums.OrderStatusPaid,
	"OPEN":      enums.OrderStatusPending,
	"CANCELED":  enums.OrderStatusCancelled,
}

type statusTables struct {
	payment statusTable
	order   statusTable
}

var tablesByProvider = map[enums.PaymentProvider]statusTables{
	enums.PaymentProviderSquare: {payment: squarePaymentStatuses, order: squareOrderStatuses},
}

// MapStatus translates a provider status. ok is false for unmapped values.
func MapStatus(provider enums.PaymentProvider, event Event, providerStatus string) (enums.OrderStatus, bool) {
	tables, found := tablesByProvider[provider]
	if !found {
		return "", false
	}
	var table statusTable
	switch event.(type) {
	case PaymentEvent:
		table = tables.payment
	case MerchantOrderEvent:
		table = tables.order
	default:
		return "", false
	}
	status, ok := table[strings.ToUpper(strings.TrimSpace(providerStatus))]
	return status, ok
}
