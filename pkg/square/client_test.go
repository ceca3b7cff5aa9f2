package square

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/payments"
)

func TestIdempotencyKey(t *testing.T) {
	if got := idempotencyKey("pref", " custom-key "); got != "custom-key" {
		t.Fatalf("expected provided key, got %q", got)
	}
	if got := idempotencyKey("payment_link", ""); !strings.HasPrefix(got, "payment_link-") {
		t.Fatalf("generated idempotency key %q missing prefix", got)
	}
}

func TestUnconfiguredClientFailsAsDependency(t *testing.T) {
	var c *Client
	_, err := c.GetPayment(context.Background(), "pay-1")
	if got := pkgerrors.CodeOf(err); got != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeDependency},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusTooManyRequests, pkgerrors.CodeRateLimit},
		{http.StatusBadRequest, pkgerrors.CodeDependency},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := codeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeDependency,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
		{
			name:     "unknown payment",
			status:   http.StatusNotFound,
			payload:  `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND"}]}`,
			wantCode: pkgerrors.CodeNotFound,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := mapError("operation", err)
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not pkgerror", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}

	if got := pkgerrors.CodeOf(mapError("get_payment", errors.New("dial tcp: timeout"))); got != pkgerrors.CodeDependency {
		t.Fatalf("transport errors should map to dependency, got %s", got)
	}
}

func TestPaymentLinkRequestCarriesLinesAndShipping(t *testing.T) {
	pref := payments.Preference{
		ReferenceID: "order-1",
		Currency:    "usd",
		Lines: []payments.Line{
			{Name: "Mug", Quantity: 2, UnitPriceCents: 1250},
		},
		Shipping:    &payments.Line{Name: "Shipping (std)", Quantity: 1, UnitPriceCents: 500},
		RedirectURL: "https://shop.example/orders/order-1",
	}
	req := paymentLinkRequest("LOC", pref, "idem-1")

	if stringValue(req.IdempotencyKey) != "idem-1" {
		t.Fatalf("unexpected idempotency key %v", req.IdempotencyKey)
	}
	if req.Order == nil || req.Order.LocationID != "LOC" {
		t.Fatalf("location not set")
	}
	if stringValue(req.Order.ReferenceID) != "order-1" {
		t.Fatalf("reference id not set")
	}
	if len(req.Order.LineItems) != 2 {
		t.Fatalf("expected product and shipping lines, got %d", len(req.Order.LineItems))
	}
	first := req.Order.LineItems[0]
	if first.Quantity != "2" || *first.BasePriceMoney.Amount != 1250 || string(*first.BasePriceMoney.Currency) != "USD" {
		t.Fatalf("unexpected first line %+v", first)
	}
	if req.CheckoutOptions == nil || stringValue(req.CheckoutOptions.RedirectURL) != pref.RedirectURL {
		t.Fatalf("redirect url not set")
	}

	pref.Shipping = &payments.Line{Name: "free", Quantity: 1}
	if got := len(paymentLinkRequest("LOC", pref, "k").Order.LineItems); got != 1 {
		t.Fatalf("free shipping should not add a line, got %d", got)
	}
}

func TestPaymentDetailReportsRefunds(t *testing.T) {
	status := "COMPLETED"
	orderID := "sq-order"
	p := &sq.Payment{
		ID:         ptrString("pay-1"),
		Status:     &status,
		OrderID:    &orderID,
		TotalMoney: moneyPtr(3000, "USD"),
	}
	got := paymentDetail(p)
	if got.Status != "COMPLETED" || got.PaidCents != 3000 || got.ProviderOrderID != "sq-order" || got.Currency != "USD" {
		t.Fatalf("unexpected detail %+v", got)
	}

	p.RefundedMoney = moneyPtr(1000, "USD")
	if got := paymentDetail(p); got.Status != "COMPLETED" {
		t.Fatalf("partial refund keeps status, got %s", got.Status)
	}
	p.RefundedMoney = moneyPtr(3000, "USD")
	if got := paymentDetail(p); got.Status != StatusRefunded {
		t.Fatalf("full refund should report %s, got %s", StatusRefunded, got.Status)
	}
}

func TestOrderDetailSumsTenders(t *testing.T) {
	state := sq.OrderStateCompleted
	o := &sq.Order{
		ID:          ptrString("sq-order"),
		LocationID:  "LOC",
		ReferenceID: ptrString("local-order"),
		State:       &state,
		TotalMoney:  moneyPtr(2500, "USD"),
		Tenders: []*sq.Tender{
			{AmountMoney: moneyPtr(2000, "USD")},
			{AmountMoney: moneyPtr(500, "USD")},
		},
	}
	got := orderDetail(o)
	if got.Status != "COMPLETED" || got.PaidCents != 2500 || got.ReferenceID != "local-order" || got.ProviderOrderID != "sq-order" {
		t.Fatalf("unexpected detail %+v", got)
	}
}

func TestNormalizeEnv(t *testing.T) {
	if env, err := normalizeEnv(""); err != nil || env != sandboxEnv {
		t.Fatalf("empty env should default to sandbox, got %q %v", env, err)
	}
	if env, err := normalizeEnv(" Production "); err != nil || env != productionEnv {
		t.Fatalf("unexpected env %q %v", env, err)
	}
	if _, err := normalizeEnv("staging"); err == nil {
		t.Fatalf("expected invalid env error")
	}
}
