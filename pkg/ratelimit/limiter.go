// Package ratelimit provides fixed-window request limits shared across API instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Config is the per-endpoint budget.
type Config struct {
	// Name scopes counters so endpoints do not share a budget.
	Name   string
	Limit  int
	Window time.Duration
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("rate limit name is required")
	}
	if c.Limit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// Result reports the state of the caller's window after counting this request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter checks and counts a request for identifier.
type Limiter interface {
	Check(ctx context.Context, identifier string, cfg Config) (Result, error)
}

type counterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	RateLimitKey(scope string) string
}

// RedisLimiter keeps counters in redis so every API process shares them.
type RedisLimiter struct {
	store counterStore
	now   func() time.Time
}

func NewRedisLimiter(store counterStore) (*RedisLimiter, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	return &RedisLimiter{store: store, now: time.Now}, nil
}

func (l *RedisLimiter) Check(ctx context.Context, identifier string, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(identifier) == "" {
		return Result{}, errors.New("rate limit identifier is required")
	}

	key := l.store.RateLimitKey(fmt.Sprintf("%s:%s", cfg.Name, identifier))
	count, remaining, err := l.store.Hit(ctx, key, cfg.Window)
	if err != nil {
		return Result{}, fmt.Errorf("count rate limit hit: %w", err)
	}
	if remaining <= 0 {
		remaining = cfg.Window
	}
	return buildResult(count, cfg.Limit, l.now().Add(remaining)), nil
}

// MemoryLimiter is a single-process limiter for local development and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{windows: make(map[string]memoryWindow), now: now}
}

func (l *MemoryLimiter) Check(_ context.Context, identifier string, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(identifier) == "" {
		return Result{}, errors.New("rate limit identifier is required")
	}

	key := cfg.Name + ":" + identifier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[key]
	if !ok || !now.Before(win.resetAt) {
		win = memoryWindow{resetAt: now.Add(cfg.Window)}
	}
	win.count++
	l.windows[key] = win

	// drop expired windows opportunistically
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}

	return buildResult(win.count, cfg.Limit, win.resetAt), nil
}

func buildResult(count int64, limit int, resetAt time.Time) Result {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}
