package enums

import "testing"

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusFailed, false},
		{OrderStatusFailed, OrderStatusPaid, true},
		{OrderStatusFailed, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatus("bogus"), OrderStatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransitionRefundedIsTerminal(t *testing.T) {
	for _, to := range validOrderStatuses {
		if to == OrderStatusRefunded {
			continue
		}
		if CanTransition(OrderStatusRefunded, to) {
			t.Fatalf("refunded must not transition to %s", to)
		}
	}
}

func TestCanTransitionSelfAlwaysAllowed(t *testing.T) {
	for _, s := range validOrderStatuses {
		if !CanTransition(s, s) {
			t.Fatalf("self transition for %s should be allowed", s)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("paid")
	if err != nil || got != OrderStatusPaid {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("PAID"); err == nil {
		t.Fatalf("expected error for unknown casing")
	}
	if OrderStatusPending.IsTerminal() || !OrderStatusRefunded.IsTerminal() {
		t.Fatalf("unexpected terminal classification")
	}
}
