package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/catalog"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-core/pkg/payments"
)

const DefaultEpsilonCents int64 = 2

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result reports what happened to one delivery.
type Result struct {
	Outcome enums.WebhookOutcome `json:"outcome"`
	OrderID *uuid.UUID           `json:"order_id,omitempty"`
	Status  *enums.OrderStatus   `json:"status,omitempty"`
	Note    string               `json:"note,omitempty"`
}

type ServiceParams struct {
	Ledger       *Ledger
	Orders       orders.Repository
	Catalog      *catalog.Repository
	Carts        cart.CartRepository
	Outbox       *outbox.Service
	Tx           txRunner
	Providers    []payments.Provider
	EpsilonCents int64
	Metrics      *metrics.WebhookMetrics
	Now          func() time.Time
	Logger       *logger.Logger
}

type Service struct {
	ledger    *Ledger
	orders    orders.Repository
	catalog   *catalog.Repository
	carts     cart.CartRepository
	outbox    *outbox.Service
	tx        txRunner
	providers map[enums.PaymentProvider]payments.Provider
	epsilon   int64
	metrics   *metrics.WebhookMetrics
	now       func() time.Time
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	providers := make(map[enums.PaymentProvider]payments.Provider, len(params.Providers))
	for _, p := range params.Providers {
		if p != nil {
			providers[p.Name()] = p
		}
	}
	if len(providers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "at least one payment provider required")
	}
	epsilon := params.EpsilonCents
	if epsilon < 0 {
		epsilon = DefaultEpsilonCents
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		ledger:    params.Ledger,
		orders:    params.Orders,
		catalog:   params.Catalog,
		carts:     params.Carts,
		outbox:    params.Outbox,
		tx:        params.Tx,
		providers: providers,
		epsilon:   epsilon,
		metrics:   params.Metrics,
		now:       func() time.Time { return now().UTC() },
		logg:      params.Logger,
	}, nil
}

// Handle runs one delivery through dedupe, authoritative lookup, status mapping
// and the transition. A returned error means the delivery was not recorded and
// the provider should retry it.
func (s *Service) Handle(ctx context.Context, provider enums.PaymentProvider, event Event, raw []byte) (*Result, error) {
	if event == nil {
		event = UnknownEvent{}
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"webhook_provider": provider,
			"webhook_topic":    event.Topic(),
			"webhook_event_id": event.ExternalID(),
		})
	}

	result, err := s.handle(ctx, provider, event, raw)
	outcome := enums.WebhookOutcomeFailed
	if err == nil {
		outcome = result.Outcome
	}
	s.metrics.Observe(provider.String(), outcome.String())
	return result, err
}

func (s *Service) handle(ctx context.Context, provider enums.PaymentProvider, event Event, raw []byte) (*Result, error) {
	if _, unknown := event.(UnknownEvent); unknown && event.ExternalID() == "" {
		return &Result{Outcome: enums.WebhookOutcomeIgnored, Note: "event has no id"}, nil
	}
	if event.ExternalID() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}

	row, claimed, err := s.ledger.Claim(ctx, provider, event, raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
	}
	if !claimed {
		return &Result{Outcome: enums.WebhookOutcomeDeduped}, nil
	}

	result, err := s.reconcile(ctx, provider, event)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "webhook reconciliation failed", err)
		}
		if relErr := s.ledger.Release(ctx, row.ID); relErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release webhook ledger row", relErr)
		}
		return nil, err
	}

	if err := s.ledger.Finish(ctx, row.ID, Record{
		Outcome:       result.Outcome,
		StatusApplied: result.Status,
		OrderID:       result.OrderID,
		Note:          result.Note,
		ProcessedAt:   s.now(),
	}); err != nil && s.logg != nil {
		// the transition already committed; a missing audit field must not trigger a redelivery
		s.logg.Error(ctx, "finish webhook ledger row", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "webhook_outcome", result.Outcome), "webhook processed")
	}
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, provider enums.PaymentProvider, event Event) (*Result, error) {
	client, ok := s.providers[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no client for provider %s", provider))
	}

	var (
		detail *payments.Detail
		err    error
	)
	switch e := event.(type) {
	case PaymentEvent:
		detail, err = client.GetPayment(ctx, e.PaymentID)
	case MerchantOrderEvent:
		detail, err = client.GetOrder(ctx, e.OrderID)
	default:
		return &Result{Outcome: enums.WebhookOutcomeIgnored}, nil
	}
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider returned no detail")
	}

	target, mapped := MapStatus(provider, event, detail.Status)
	if !mapped {
		return &Result{
			Outcome: enums.WebhookOutcomeSkipped,
			Note:    fmt.Sprintf("unmapped provider status %q", detail.Status),
		}, nil
	}

	order, err := s.resolveOrder(ctx, detail)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return &Result{Outcome: enums.WebhookOutcomeUnmatched, Note: "no local order for provider reference"}, nil
	}
	orderID := order.ID
	result := &Result{OrderID: &orderID}

	if target == enums.OrderStatusPaid && detail.PaidCents < order.TotalCents-s.epsilon {
		target = enums.OrderStatusPending
		result.Note = fmt.Sprintf("underpaid: %d of %d", detail.PaidCents, order.TotalCents)
	}

	if order.Status == target {
		result.Outcome = enums.WebhookOutcomeSkipped
		result.Note = joinNotes(result.Note, "status unchanged")
		return result, nil
	}
	if !enums.CanTransition(order.Status, target) {
		if s.logg != nil {
			rejected := pkgerrors.New(pkgerrors.CodeTransitionRejected,
				fmt.Sprintf("order %s cannot move from %s to %s", order.ID, order.Status, target))
			s.logg.Warn(s.logg.WithField(ctx, "error", rejected.Error()), "webhook transition rejected")
		}
		result.Outcome = enums.WebhookOutcomeSkipped
		result.Note = joinNotes(result.Note, fmt.Sprintf("transition %s->%s rejected", order.Status, target))
		return result, nil
	}

	notes, err := s.apply(ctx, provider, order, target, detail)
	if err != nil {
		return nil, err
	}
	applied := target
	result.Outcome = enums.WebhookOutcomeApplied
	result.Status = &applied
	result.Note = joinNotes(append([]string{result.Note}, notes...)...)
	return result, nil
}

// resolveOrder tries provider order id, then preference id, then the local
// order id the provider echoes as reference.
func (s *Service) resolveOrder(ctx context.Context, detail *payments.Detail) (*models.Order, error) {
	if id := strings.TrimSpace(detail.ProviderOrderID); id != "" {
		order, err := s.orders.FindByProviderOrderID(ctx, id)
		if err != nil || order != nil {
			return order, wrapInternal(err, "load order by provider id")
		}
	}
	if id := strings.TrimSpace(detail.PreferenceID); id != "" {
		order, err := s.orders.FindByPreferenceID(ctx, id)
		if err != nil || order != nil {
			return order, wrapInternal(err, "load order by preference id")
		}
	}
	if ref, err := uuid.Parse(strings.TrimSpace(detail.ReferenceID)); err == nil {
		order, err := s.orders.FindByID(ctx, ref)
		return order, wrapInternal(err, "load order by reference")
	}
	return nil, nil
}

// apply performs the transition and its once-only side effects in one transaction.
func (s *Service) apply(ctx context.Context, provider enums.PaymentProvider, order *models.Order, target enums.OrderStatus, detail *payments.Detail) ([]string, error) {
	var notes []string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		repo := s.orders.WithTx(tx)

		fields := map[string]any{}
		if target == enums.OrderStatusPaid {
			fields["paid_at"] = now
			fields["paid_cents"] = detail.PaidCents
		}
		moved, err := repo.TransitionStatus(ctx, order.ID, order.Status, target, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
		}

		if target == enums.OrderStatusPaid && order.Flow == enums.OrderFlowOnline && order.StockCommittedAt == nil {
			shortages, err := s.commitStock(ctx, tx, order, now)
			if err != nil {
				return err
			}
			notes = append(notes, shortages...)
		}

		if target.IsTerminal() && order.CartID != nil && order.CartClearedAt == nil {
			first, err := repo.MarkCartCleared(ctx, order.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark cart cleared")
			}
			if first {
				if err := s.carts.WithTx(tx).Delete(ctx, *order.CartID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
				}
				notes = append(notes, "cart cleared")
			}
		}

		if target == enums.OrderStatusPaid {
			if err := s.outbox.Emit(ctx, tx, orders.PaidEvent(order, provider.String(), detail.PaidCents, now)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
			}
		}
		return nil
	})
	return notes, err
}

// commitStock takes the paid order's quantities from stock. Payment is already
// captured, so a shortfall is recorded and reported rather than failing.
func (s *Service) commitStock(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) ([]string, error) {
	first, err := s.orders.WithTx(tx).MarkStockCommitted(ctx, order.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark stock committed")
	}
	if !first {
		return nil, nil
	}

	catalogTx := s.catalog.WithTx(tx)
	var notes []string
	for _, item := range order.Items {
		if item.ProductVariantID == nil {
			continue
		}
		variantID := *item.ProductVariantID
		ok, err := catalogTx.DecrementStock(ctx, variantID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		available, err := catalogTx.Stock(ctx, variantID)
		if err != nil {
			return nil, err
		}
		notes = append(notes, fmt.Sprintf("stock shortage on %s: %d of %d", variantID, available, item.Quantity))
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":   order.ID.String(),
				"variant_id": variantID.String(),
				"requested":  item.Quantity,
				"available":  available,
			})
			s.logg.Warn(logCtx, "paid order short on stock")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStockShortage,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: payloads.StockShortageEvent{
				OrderID:   order.ID,
				VariantID: variantID,
				Requested: item.Quantity,
				Available: available,
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit stock shortage")
		}
	}
	return notes, nil
}

func wrapInternal(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}

func joinNotes(notes ...string) string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return strings.Join(out, "; ")
}
