// Package payments holds the provider-neutral payment contract used by checkout and webhook reconciliation.
package payments

import (
	"context"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// Line is one priced line of a hosted-checkout preference.
type Line struct {
	Name           string
	Quantity       int
	UnitPriceCents int64
}

// Preference describes the hosted checkout the buyer is redirected to.
type Preference struct {
	// ReferenceID is the local order id; providers echo it back on their order object.
	ReferenceID    string
	IdempotencyKey string
	Currency       string
	Lines          []Line
	Shipping       *Line
	RedirectURL    string
}

// TotalCents sums the lines and the shipping line.
func (p Preference) TotalCents() int64 {
	var total int64
	for _, l := range p.Lines {
		total += l.UnitPriceCents * int64(l.Quantity)
	}
	if p.Shipping != nil {
		total += p.Shipping.UnitPriceCents * int64(p.Shipping.Quantity)
	}
	return total
}

type PreferenceResult struct {
	PreferenceID    string
	ProviderOrderID string
	RedirectURL     string
}

// Detail is the authoritative state fetched from the provider for a payment or provider order.
// Status stays in the provider's vocabulary; mapping happens in reconciliation.
type Detail struct {
	ID              string
	Status          string
	PaidCents       int64
	Currency        string
	ProviderOrderID string
	// PreferenceID is set by providers that echo the checkout preference back.
	PreferenceID    string
	ReferenceID     string
}

// Provider is implemented by each payment integration.
type Provider interface {
	Name() enums.PaymentProvider
	CreatePreference(ctx context.Context, pref Preference) (*PreferenceResult, error)
	GetPayment(ctx context.Context, paymentID string) (*Detail, error)
	GetOrder(ctx context.Context, orderID string) (*Detail, error)
}
