package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/logger"
)

const defaultCartSweepLimit = 500

type cartExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

type CartExpiryJobParams struct {
	Logger *logger.Logger
	Carts  cartExpirer
	// Limit caps deletions per batch; the job keeps sweeping until a batch comes back short.
	Limit int
	Now   func() time.Time
}

// NewCartExpiryJob builds the job that deletes carts whose expire_at has passed.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultCartSweepLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &cartExpiryJob{logg: params.Logger, carts: params.Carts, limit: limit, now: now}, nil
}

type cartExpiryJob struct {
	logg  *logger.Logger
	carts cartExpirer
	limit int
	now   func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	var total int64
	for {
		deleted, err := j.carts.ExpireStale(ctx, cutoff, j.limit)
		if err != nil {
			return fmt.Errorf("expire carts: %w", err)
		}
		total += deleted
		if deleted < int64(j.limit) || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":        cutoff,
			"carts_deleted": total,
		})
		j.logg.Info(logCtx, "expired carts removed")
	}
	return nil
}
