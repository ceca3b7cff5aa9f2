package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"

	"github.com/angelmondragon/storefront-core/pkg/payments"
)

// StatusRefunded is reported for payments whose refunded money covers the captured total.
// Square keeps such payments COMPLETED and exposes the refund on refunded_money.
const StatusRefunded = "REFUNDED"

func paymentLinkRequest(locationID string, pref payments.Preference, idempotencyKey string) *sqcheckout.CreatePaymentLinkRequest {
	lines := make([]*sq.OrderLineItem, 0, len(pref.Lines)+1)
	for _, l := range pref.Lines {
		lines = append(lines, lineItem(l, pref.Currency))
	}
	if pref.Shipping != nil && pref.Shipping.UnitPriceCents > 0 {
		lines = append(lines, lineItem(*pref.Shipping, pref.Currency))
	}

	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order: &sq.Order{
			LocationID:  locationID,
			ReferenceID: ptrString(pref.ReferenceID),
			LineItems:   lines,
		},
	}
	if redirect := strings.TrimSpace(pref.RedirectURL); redirect != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: ptrString(redirect)}
	}
	return req
}

func lineItem(l payments.Line, currency string) *sq.OrderLineItem {
	qty := l.Quantity
	if qty <= 0 {
		qty = 1
	}
	return &sq.OrderLineItem{
		Name:           ptrString(l.Name),
		Quantity:       strconv.Itoa(qty),
		BasePriceMoney: moneyPtr(l.UnitPriceCents, currency),
	}
}

func paymentDetail(p *sq.Payment) *payments.Detail {
	total := moneyAmount(p.GetTotalMoney())
	if total == 0 {
		total = moneyAmount(p.GetAmountMoney())
	}
	status := strings.ToUpper(stringValue(p.GetStatus()))
	if refunded := moneyAmount(p.GetRefundedMoney()); total > 0 && refunded >= total {
		status = StatusRefunded
	}
	return &payments.Detail{
		ID:              stringValue(p.GetID()),
		Status:          status,
		PaidCents:       total,
		Currency:        moneyCurrency(p.GetTotalMoney(), p.GetAmountMoney()),
		ProviderOrderID: stringValue(p.GetOrderID()),
		ReferenceID:     stringValue(p.GetReferenceID()),
	}
}

func orderDetail(o *sq.Order) *payments.Detail {
	var paid int64
	for _, tender := range o.GetTenders() {
		if tender == nil {
			continue
		}
		paid += moneyAmount(tender.GetAmountMoney())
	}
	status := ""
	if state := o.GetState(); state != nil {
		status = string(*state)
	}
	return &payments.Detail{
		ID:              stringValue(o.GetID()),
		Status:          strings.ToUpper(status),
		PaidCents:       paid,
		Currency:        moneyCurrency(o.GetTotalMoney()),
		ProviderOrderID: stringValue(o.GetID()),
		ReferenceID:     stringValue(o.GetReferenceID()),
	}
}

func moneyAmount(m *sq.Money) int64 {
	if m == nil || m.GetAmount() == nil {
		return 0
	}
	return *m.GetAmount()
}

func moneyCurrency(candidates ...*sq.Money) string {
	for _, m := range candidates {
		if m != nil && m.GetCurrency() != nil {
			return string(*m.GetCurrency())
		}
	}
	return ""
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
