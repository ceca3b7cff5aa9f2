package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/outbox/payloads"
)

const consumerPrefix = "operator-notify"

type deliveryGuard interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Dispatcher turns outbox rows into operator messages and fans them out.
type Dispatcher struct {
	notifiers []Notifier
	registry  *outbox.DecoderRegistry
	guard     deliveryGuard
	logg      *logger.Logger
}

// NewDispatcher builds a dispatcher. guard may be nil, in which case a retried
// row is delivered again to every channel.
func NewDispatcher(notifiers []Notifier, guard deliveryGuard, logg *logger.Logger) *Dispatcher {
	active := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Dispatcher{
		notifiers: active,
		registry:  outbox.DefaultRegistry(),
		guard:     guard,
		logg:      logg,
	}
}

// Channels lists the configured notifier names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch delivers one outbox row. Channels that already delivered the event
// are skipped so a retry after a partial failure only hits the failed ones.
func (d *Dispatcher) Dispatch(ctx context.Context, row models.OutboxEvent) error {
	envelope, err := outbox.DecodeEnvelope(row)
	if err != nil {
		return err
	}
	payload, err := d.registry.Decode(row.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return err
	}
	msg, ok := render(payload)
	if !ok {
		return nil
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		eventID = row.ID
	}

	var errs error
	for _, n := range d.notifiers {
		consumer := consumerPrefix + ":" + n.Name()
		if d.guard != nil {
			first, err := d.guard.Claim(ctx, consumer, eventID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
				continue
			}
			if !first {
				continue
			}
		}
		if err := n.Notify(ctx, msg); err != nil {
			if d.guard != nil {
				_ = d.guard.Release(ctx, consumer, eventID)
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		if d.logg != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"channel":      n.Name(),
				"event_type":   row.EventType,
				"aggregate_id": row.AggregateID.String(),
			})
			d.logg.Info(logCtx, "operator notified")
		}
	}
	return errs
}

func render(payload any) (Message, bool) {
	switch p := payload.(type) {
	case payloads.OrderPaidEvent:
		lines := []string{
			fmt.Sprintf("Order: %s", p.OrderID),
			fmt.Sprintf("Total: %s", formatCents(p.TotalCents, p.Currency)),
			fmt.Sprintf("Paid: %s", formatCents(p.PaidCents, p.Currency)),
			fmt.Sprintf("Items: %d", p.ItemCount),
			fmt.Sprintf("Provider: %s", p.Provider),
		}
		if p.ProviderOrderID != "" {
			lines = append(lines, fmt.Sprintf("Provider order: %s", p.ProviderOrderID))
		}
		lines = append(lines, fmt.Sprintf("Paid at: %s", p.PaidAt.UTC().Format("2006-01-02 15:04 MST")))
		return Message{
			Subject: fmt.Sprintf("New paid order %s", shortID(p.OrderID)),
			Body:    strings.Join(lines, "\n"),
		}, true
	case payloads.StockShortageEvent:
		return Message{
			Subject: fmt.Sprintf("Stock shortage on paid order %s", shortID(p.OrderID)),
			Body: fmt.Sprintf("Order %s was paid but variant %s had %d of %d units. Follow up with the buyer.",
				p.OrderID, p.VariantID, p.Available, p.Requested),
		}, true
	default:
		return Message{}, false
	}
}

func formatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}

func shortID(id uuid.UUID) string {
	return strings.SplitN(id.String(), "-", 2)[0]
}
