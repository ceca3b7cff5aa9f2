package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/outbox/payloads"
)

type recordingNotifier struct {
	name string
	err  error
	sent []Message
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryGuard() *memoryGuard { return &memoryGuard{seen: map[string]bool{}} }

func (g *memoryGuard) Claim(_ context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := consumer + ":" + eventID.String()
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, consumer string, eventID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, consumer+":"+eventID.String())
	return nil
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggregate uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.CurrentVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregate,
		Payload:       payload,
	}
}

func paidRow(t *testing.T) (models.OutboxEvent, uuid.UUID) {
	orderID := uuid.MustParse("8f1c2d3e-0000-4000-8000-000000000001")
	return outboxRow(t, enums.EventOrderPaid, orderID, payloads.OrderPaidEvent{
		OrderID:         orderID,
		Provider:        "square",
		ProviderOrderID: "sq_order_1",
		TotalCents:      3000,
		PaidCents:       3000,
		Currency:        "usd",
		ItemCount:       2,
		PaidAt:          time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC),
	}), orderID
}

func TestDispatchPaidOrderFansOut(t *testing.T) {
	tg := &recordingNotifier{name: "telegram"}
	mail := &recordingNotifier{name: "sendgrid"}
	d := NewDispatcher([]Notifier{tg, nil, mail}, nil, logger.Nop())
	assert.Equal(t, []string{"telegram", "sendgrid"}, d.Channels())

	row, _ := paidRow(t)
	require.NoError(t, d.Dispatch(context.Background(), row))

	require.Len(t, tg.sent, 1)
	require.Len(t, mail.sent, 1)
	msg := tg.sent[0]
	assert.Equal(t, "New paid order 8f1c2d3e", msg.Subject)
	assert.Contains(t, msg.Body, "Total: 30.00 USD")
	assert.Contains(t, msg.Body, "Items: 2")
	assert.Contains(t, msg.Body, "Provider order: sq_order_1")
	assert.Contains(t, msg.Body, "Paid at: 2026-05-01 10:30 UTC")
}

func TestDispatchStockShortage(t *testing.T) {
	tg := &recordingNotifier{name: "telegram"}
	d := NewDispatcher([]Notifier{tg}, nil, nil)
	orderID := uuid.New()
	variantID := uuid.New()
	row := outboxRow(t, enums.EventOrderStockShortage, orderID, payloads.StockShortageEvent{
		OrderID:   orderID,
		VariantID: variantID,
		Requested: 3,
		Available: 1,
	})

	require.NoError(t, d.Dispatch(context.Background(), row))
	require.Len(t, tg.sent, 1)
	assert.Contains(t, tg.sent[0].Subject, "Stock shortage")
	assert.Contains(t, tg.sent[0].Body, "had 1 of 3 units")
	assert.Contains(t, tg.sent[0].Body, variantID.String())
}

func TestDispatchRetryOnlyHitsFailedChannel(t *testing.T) {
	tg := &recordingNotifier{name: "telegram"}
	mail := &recordingNotifier{name: "sendgrid", err: errors.New("smtp down")}
	d := NewDispatcher([]Notifier{tg, mail}, newMemoryGuard(), nil)
	row, _ := paidRow(t)

	err := d.Dispatch(context.Background(), row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendgrid: smtp down")

	mail.err = nil
	require.NoError(t, d.Dispatch(context.Background(), row))
	assert.Len(t, tg.sent, 1, "telegram already delivered")
	assert.Len(t, mail.sent, 1)

	require.NoError(t, d.Dispatch(context.Background(), row))
	assert.Len(t, mail.sent, 1)
}

func TestDispatchCombinesChannelErrors(t *testing.T) {
	d := NewDispatcher([]Notifier{
		&recordingNotifier{name: "telegram", err: errors.New("timeout")},
		&recordingNotifier{name: "sendgrid", err: errors.New("status=500")},
	}, nil, nil)
	row, _ := paidRow(t)

	err := d.Dispatch(context.Background(), row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: timeout")
	assert.Contains(t, err.Error(), "sendgrid: status=500")
}

func TestDispatchRejectsCorruptPayload(t *testing.T) {
	d := NewDispatcher([]Notifier{&recordingNotifier{name: "telegram"}}, nil, nil)
	row := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, Payload: []byte("not json")}
	assert.Error(t, d.Dispatch(context.Background(), row))
}
