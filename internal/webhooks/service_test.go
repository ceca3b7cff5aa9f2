package webhooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/catalog"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/payments"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu       sync.Mutex
	payments map[string]*payments.Detail
	orders   map[string]*payments.Detail
	err      error
	calls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: map[string]*payments.Detail{}, orders: map[string]*payments.Detail{}}
}

func (f *fakeProvider) Name() enums.PaymentProvider { return enums.PaymentProviderSquare }

func (f *fakeProvider) CreatePreference(context.Context, payments.Preference) (*payments.PreferenceResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) GetPayment(_ context.Context, id string) (*payments.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.payments[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	copied := *d
	return &copied, nil
}

func (f *fakeProvider) GetOrder(_ context.Context, id string) (*payments.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	copied := *d
	return &copied, nil
}

type fixture struct {
	conn     *gorm.DB
	provider *fakeProvider
	svc      *Service
	registry *prometheus.Registry
	variant  *models.ProductVariant
	cartRow  *models.Cart
	order    *models.Order
}

func newFixture(t *testing.T, conn *gorm.DB, stock int) *fixture {
	t.Helper()
	f := &fixture{conn: conn, provider: newFakeProvider(), registry: prometheus.NewRegistry()}
	svc, err := NewService(ServiceParams{
		Ledger:       NewLedger(conn),
		Orders:       orders.NewRepository(conn),
		Catalog:      catalog.NewRepository(conn),
		Carts:        cart.NewRepository(conn),
		Outbox:       outbox.NewService(outbox.NewRepository(conn), nil),
		Tx:           db.Wrap(conn),
		Providers:    []payments.Provider{f.provider},
		EpsilonCents: DefaultEpsilonCents,
		Metrics:      metrics.NewWebhookMetrics(f.registry),
		Now:          func() time.Time { return testNow },
	})
	require.NoError(t, err)
	f.svc = svc

	product := dbtest.Product(t, conn, "Mug", 1250)
	f.variant = dbtest.Variant(t, conn, product, "Blue", stock)
	f.cartRow = dbtest.SessionCart(t, conn, "sess-1", testNow.Add(5*time.Minute))
	dbtest.CartLine(t, conn, f.cartRow, product, f.variant, 2)

	cartID := f.cartRow.ID
	variantID := f.variant.ID
	providerOrderID := "sq_order_1"
	preferenceID := "pl_1"
	f.order = &models.Order{
		CartID:          &cartID,
		Status:          enums.OrderStatusPending,
		Flow:            enums.OrderFlowOnline,
		Currency:        "USD",
		SubtotalCents:   2500,
		ShippingCents:   500,
		TotalCents:      3000,
		ProviderOrderID: &providerOrderID,
		PreferenceID:    &preferenceID,
		Items: []models.OrderItem{{
			ProductID:        product.ID,
			ProductVariantID: &variantID,
			Name:             "Mug (Blue)",
			Quantity:         2,
			UnitPriceCents:   1250,
			LineTotalCents:   2500,
		}},
	}
	require.NoError(t, orders.NewRepository(conn).Create(context.Background(), f.order))
	return f
}

func (f *fixture) setPayment(id, status string, paid int64) {
	f.provider.payments[id] = &payments.Detail{ID: id, Status: status, PaidCents: paid, Currency: "USD", ProviderOrderID: "sq_order_1"}
}

func (f *fixture) reload(t *testing.T) *models.Order {
	t.Helper()
	order, err := orders.NewRepository(f.conn).FindByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (f *fixture) cartExists(t *testing.T) bool {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("id = ?", f.cartRow.ID).Count(&count).Error)
	return count > 0
}

func (f *fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func paymentEvent(eventID, paymentID string) Event {
	return PaymentEvent{Type: "payment.updated", EventID: eventID, PaymentID: paymentID}
}

func TestHandlePaidAppliesSideEffectsOnce(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 3000)
	ctx := context.Background()

	result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), []byte(`{"event_id":"evt_1"}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	require.NotNil(t, result.Status)
	assert.Equal(t, enums.OrderStatusPaid, *result.Status)

	order := f.reload(t)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.NotNil(t, order.PaidAt)
	assert.NotNil(t, order.StockCommittedAt)
	assert.NotNil(t, order.CartClearedAt)
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variant.ID))
	assert.False(t, f.cartExists(t))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderPaid))

	var row models.WebhookEvent
	require.NoError(t, f.conn.Where("external_id = ?", "evt_1").First(&row).Error)
	require.NotNil(t, row.Outcome)
	assert.Equal(t, enums.WebhookOutcomeApplied, *row.Outcome)
	require.NotNil(t, row.OrderID)
	assert.Equal(t, f.order.ID, *row.OrderID)
	assert.NotNil(t, row.ProcessedAt)
}

func TestHandleRepeatedDeliveryIsDeduped(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 3000)
	ctx := context.Background()

	outcomes := map[enums.WebhookOutcome]int{}
	for i := 0; i < 5; i++ {
		result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
		require.NoError(t, err)
		outcomes[result.Outcome]++
	}
	assert.Equal(t, 1, outcomes[enums.WebhookOutcomeApplied])
	assert.Equal(t, 4, outcomes[enums.WebhookOutcomeDeduped])
	assert.Equal(t, 1, f.provider.calls, "deduped deliveries never reach the provider")
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variant.ID))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderPaid))
}

func TestHandleDistinctEventsSameStatusApplyOnce(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 3000)
	ctx := context.Background()

	first, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	second, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_2", "pay_1"), nil)
	require.NoError(t, err)

	assert.Equal(t, enums.WebhookOutcomeApplied, first.Outcome)
	assert.Equal(t, enums.WebhookOutcomeSkipped, second.Outcome)
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variant.ID))
}

func TestHandleConcurrentDuplicatesApplyOnce(t *testing.T) {
	f := newFixture(t, dbtest.OpenFile(t), 5)
	f.setPayment("pay_1", "COMPLETED", 3000)

	const deliveries = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[enums.WebhookOutcome]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			outcomes[result.Outcome]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[enums.WebhookOutcomeApplied])
	assert.Equal(t, deliveries-1, outcomes[enums.WebhookOutcomeDeduped])
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variant.ID))
}

func TestHandleUnderpaidStaysPending(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 1800)

	result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeSkipped, result.Outcome)
	assert.Contains(t, result.Note, "underpaid")

	order := f.reload(t)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, f.variant.ID))
	assert.True(t, f.cartExists(t))
}

func TestHandleWithinEpsilonCountsAsPaid(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 2998)

	result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, f.reload(t).Status)
}

func TestHandleUnmatchedAndUnmapped(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	ctx := context.Background()
	f.provider.payments["pay_stranger"] = &payments.Detail{ID: "pay_stranger", Status: "COMPLETED", PaidCents: 100, ProviderOrderID: "sq_unknown"}
	f.setPayment("pay_odd", "SOMETHING_NEW", 3000)

	result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_stranger"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeUnmatched, result.Outcome)

	result, err = f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_2", "pay_odd"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeSkipped, result.Outcome)
	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)
}

func TestHandleResolvesByReferenceID(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.provider.payments["pay_ref"] = &payments.Detail{ID: "pay_ref", Status: "COMPLETED", PaidCents: 3000, ReferenceID: f.order.ID.String()}

	result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_ref"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
}

func TestHandleProviderFailureReleasesLedger(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 3000)
	f.provider.err = pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.Error(t, err)
	var rows int64
	require.NoError(t, f.conn.Model(&models.WebhookEvent{}).Count(&rows).Error)
	assert.Zero(t, rows)

	f.provider.err = nil
	result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome, "redelivery is processed")
}

func TestHandleRejectedTransitionIsSkipped(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("status", enums.OrderStatusCancelled).Error)
	f.setPayment("pay_1", "COMPLETED", 3000)

	result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeSkipped, result.Outcome)
	assert.Equal(t, enums.OrderStatusCancelled, f.reload(t).Status)
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, f.variant.ID))
}

func TestHandleLateSettlementAfterFailure(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	ctx := context.Background()
	f.setPayment("pay_1", "FAILED", 0)

	result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	failed := f.reload(t)
	assert.Equal(t, enums.OrderStatusFailed, failed.Status)
	assert.NotNil(t, failed.CartClearedAt, "terminal status clears the cart")
	assert.Equal(t, 5, dbtest.Stock(t, f.conn, f.variant.ID))

	f.setPayment("pay_1", "COMPLETED", 3000)
	result, err = f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_2", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, enums.OrderStatusPaid, f.reload(t).Status)
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variant.ID))
}

func TestHandleRefundAfterPaid(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	ctx := context.Background()
	f.setPayment("pay_1", "COMPLETED", 3000)
	_, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)

	f.setPayment("pay_1", "REFUNDED", 3000)
	result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, PaymentEvent{Type: "refund.updated", EventID: "evt_2", PaymentID: "pay_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, enums.OrderStatusRefunded, f.reload(t).Status)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderPaid))
}

func TestHandleStockShortageStillMarksPaid(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 1)
	f.setPayment("pay_1", "COMPLETED", 3000)

	result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
	assert.Contains(t, result.Note, "stock shortage")
	assert.Equal(t, enums.OrderStatusPaid, f.reload(t).Status)
	assert.Equal(t, 1, dbtest.Stock(t, f.conn, f.variant.ID))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderStockShortage))
}

func TestHandleMerchantOrderEvent(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.provider.orders["sq_order_1"] = &payments.Detail{ID: "sq_order_1", Status: "COMPLETED", PaidCents: 3000, ProviderOrderID: "sq_order_1"}

	result, err := f.svc.Handle(context.Background(), enums.PaymentProviderSquare,
		MerchantOrderEvent{Type: "order.updated", EventID: "evt_1", OrderID: "sq_order_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, result.Outcome)
}

func TestHandleUnknownEvents(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	ctx := context.Background()

	result, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, UnknownEvent{Type: "customer.created", EventID: "evt_9"}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeIgnored, result.Outcome)

	result, err = f.svc.Handle(ctx, enums.PaymentProviderSquare, UnknownEvent{Type: "customer.created", EventID: "evt_9"}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeDeduped, result.Outcome)

	result, err = f.svc.Handle(ctx, enums.PaymentProviderSquare, UnknownEvent{Type: "customer.created"}, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeIgnored, result.Outcome)
	assert.Zero(t, f.provider.calls)
}

func TestHandleRecordsMetrics(t *testing.T) {
	f := newFixture(t, dbtest.Open(t), 5)
	f.setPayment("pay_1", "COMPLETED", 3000)
	ctx := context.Background()
	_, err := f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)
	_, err = f.svc.Handle(ctx, enums.PaymentProviderSquare, paymentEvent("evt_1", "pay_1"), nil)
	require.NoError(t, err)

	mfs, err := f.registry.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "storefront_webhook_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					counts[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, counts["applied"])
	assert.Equal(t, 1.0, counts["deduped"])
}
