package enums

import "fmt"

// OrderFlow distinguishes when stock is committed for an order.
type OrderFlow string

const (
	// OrderFlowManual orders decrement stock at creation (pickup/manual payment).
	OrderFlowManual OrderFlow = "manual"
	// OrderFlowOnline orders decrement stock once the provider confirms payment.
	OrderFlowOnline OrderFlow = "online"
)

var validOrderFlows = []OrderFlow{OrderFlowManual, OrderFlowOnline}

// String implements fmt.Stringer.
func (f OrderFlow) String() string {
	return string(f)
}

// IsValid reports whether the value is a known OrderFlow.
func (f OrderFlow) IsValid() bool {
	for _, candidate := range validOrderFlows {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseOrderFlow converts raw input into an OrderFlow.
func ParseOrderFlow(value string) (OrderFlow, error) {
	for _, candidate := range validOrderFlows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order flow %q", value)
}
