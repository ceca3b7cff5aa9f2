package enums

import "fmt"

// PaymentProvider names an integrated payment processor.
type PaymentProvider string

const (
	PaymentProviderSquare PaymentProvider = "square"
)

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	return p == PaymentProviderSquare
}

// WebhookOutcome records what reconciliation did with a provider event.
type WebhookOutcome string

const (
	WebhookOutcomeApplied   WebhookOutcome = "applied"
	WebhookOutcomeSkipped   WebhookOutcome = "skipped"
	WebhookOutcomeUnmatched WebhookOutcome = "unmatched"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeDeduped   WebhookOutcome = "deduped"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

var validWebhookOutcomes = []WebhookOutcome{
	WebhookOutcomeApplied,
	WebhookOutcomeSkipped,
	WebhookOutcomeUnmatched,
	WebhookOutcomeIgnored,
	WebhookOutcomeDeduped,
	WebhookOutcomeFailed,
}

// String implements fmt.Stringer.
func (o WebhookOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known WebhookOutcome.
func (o WebhookOutcome) IsValid() bool {
	for _, candidate := range validWebhookOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseWebhookOutcome converts raw input into a WebhookOutcome.
func ParseWebhookOutcome(value string) (WebhookOutcome, error) {
	for _, candidate := range validWebhookOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook outcome %q", value)
}
