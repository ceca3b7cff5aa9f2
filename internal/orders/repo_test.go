package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-core/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

func seedOnlineOrder(t *testing.T, repo Repository, preferenceID, providerOrderID string) *models.Order {
	t.Helper()
	order := &models.Order{
		Status:          enums.OrderStatusPending,
		Flow:            enums.OrderFlowOnline,
		Currency:        "USD",
		SubtotalCents:   1000,
		ShippingCents:   500,
		TotalCents:      1500,
		PreferenceID:    &preferenceID,
		ProviderOrderID: &providerOrderID,
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestRepositoryLookups(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	order := seedOnlineOrder(t, repo, "pl_1", "sq_order_1")

	found, err := repo.FindByProviderOrderID(ctx, "sq_order_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)

	found, err = repo.FindByPreferenceID(ctx, "pl_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)

	missing, err := repo.FindByProviderOrderID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	order := seedOnlineOrder(t, repo, "pl_2", "sq_order_2")

	ok, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid, map[string]any{"paid_cents": int64(1500)})
	require.NoError(t, err)
	assert.True(t, ok)

	// a writer that read the old status loses
	ok, err = repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidCents)
	assert.Equal(t, int64(1500), *stored.PaidCents)
}

func TestMarkOnceFlags(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	order := seedOnlineOrder(t, repo, "pl_3", "sq_order_3")
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	ok, err := repo.MarkStockCommitted(ctx, order.ID, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkStockCommitted(ctx, order.ID, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkCartCleared(ctx, order.ID, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkCartCleared(ctx, order.ID, at)
	require.NoError(t, err)
	assert.False(t, ok)
}
