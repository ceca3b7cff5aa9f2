package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

const (
	defaultOutboxBatchSize   = 50
	defaultOutboxMaxAttempts = 10
)

type outboxQueue interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type eventDispatcher interface {
	Dispatch(ctx context.Context, row models.OutboxEvent) error
}

type OutboxDispatchJobParams struct {
	Logger      *logger.Logger
	Queue       outboxQueue
	Dispatcher  eventDispatcher
	BatchSize   int
	MaxAttempts int
	Now         func() time.Time
}

// NewOutboxDispatchJob builds the job that hands unpublished outbox rows to the
// operator notifiers. Rows that fail are retried on later cycles until they
// run out of attempts.
func NewOutboxDispatchJob(params OutboxDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOutboxBatchSize
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOutboxMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxDispatchJob{
		logg:        params.Logger,
		queue:       params.Queue,
		dispatcher:  params.Dispatcher,
		batchSize:   batch,
		maxAttempts: attempts,
		now:         now,
	}, nil
}

type outboxDispatchJob struct {
	logg        *logger.Logger
	queue       outboxQueue
	dispatcher  eventDispatcher
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxDispatchJob) Name() string { return "outbox-dispatch" }

func (j *outboxDispatchJob) Run(ctx context.Context) error {
	rows, err := j.queue.FetchUnpublished(ctx, j.batchSize, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("fetch outbox rows: %w", err)
	}
	var (
		errs      error
		published int
		failed    int
	)
	for _, row := range rows {
		if err := j.dispatcher.Dispatch(ctx, row); err != nil {
			failed++
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"outbox_id":  row.ID.String(),
				"event_type": row.EventType,
				"attempt":    row.AttemptCount + 1,
			})
			j.logg.Warn(logCtx, "outbox dispatch failed: "+err.Error())
			if markErr := j.queue.MarkFailed(ctx, row.ID, err); markErr != nil {
				errs = multierr.Append(errs, fmt.Errorf("mark outbox %s failed: %w", row.ID, markErr))
			}
			continue
		}
		if err := j.queue.MarkPublished(ctx, row.ID, j.now().UTC()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark outbox %s published: %w", row.ID, err))
			continue
		}
		published++
	}
	if len(rows) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"fetched":   len(rows),
			"published": published,
			"failed":    failed,
		})
		j.logg.Info(logCtx, "outbox dispatch batch complete")
	}
	return errs
}
