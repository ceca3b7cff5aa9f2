package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	claimed map[string]any
	ttls    map[string]time.Duration
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{claimed: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.claimed[key]; ok {
		return false, nil
	}
	f.claimed[key] = value
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.claimed, k)
	}
	return nil
}

func TestClaimOnlyOnce(t *testing.T) {
	store := newFakeStore()
	guard, err := NewGuard(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	guard.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	eventID := uuid.New()
	ctx := context.Background()

	first, err := guard.Claim(ctx, "operator-notify:telegram", eventID)
	if err != nil || !first {
		t.Fatalf("first claim: ok=%v err=%v", first, err)
	}
	again, err := guard.Claim(ctx, "operator-notify:telegram", eventID)
	if err != nil || again {
		t.Fatalf("second claim should lose: ok=%v err=%v", again, err)
	}
	other, _ := guard.Claim(ctx, "operator-notify:sendgrid", eventID)
	if !other {
		t.Fatalf("claims are per consumer")
	}

	key := "sf:idempotency:delivery:operator-notify:telegram:" + eventID.String()
	if store.ttls[key] != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.ttls[key])
	}
	if store.claimed[key] != "2026-05-01T12:00:00Z" {
		t.Fatalf("claim should record when it was taken, got %v", store.claimed[key])
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	guard, _ := NewGuard(newFakeStore(), time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	if ok, _ := guard.Claim(ctx, "c", eventID); !ok {
		t.Fatal("claim failed")
	}
	if err := guard.Release(ctx, "c", eventID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := guard.Claim(ctx, "c", eventID); !ok {
		t.Fatal("expected claim after release")
	}
}

func TestClaimErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("redis down")
	guard, _ := NewGuard(store, time.Hour)
	ctx := context.Background()
	if _, err := guard.Claim(ctx, "c", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := guard.Claim(ctx, "", uuid.New()); err == nil {
		t.Fatal("expected consumer validation error")
	}
	if err := guard.Release(ctx, "c", uuid.Nil); err == nil {
		t.Fatal("expected event id validation error")
	}
}

func TestNewGuardValidates(t *testing.T) {
	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewGuard(newFakeStore(), -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
