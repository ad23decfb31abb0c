package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyConflictAndCleanup(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	keys := NewMemoryIdempotency()
	keys.now = func() time.Time { return clock }

	require.NoError(t, keys.CheckAndInsert(ctx, "old", "invoice.payment"))
	require.ErrorIs(t, keys.CheckAndInsert(ctx, "old", "invoice.payment"), ErrIdempotencyConflict)

	clock = clock.Add(48 * time.Hour)
	require.NoError(t, keys.CheckAndInsert(ctx, "fresh", "invoice.payment"))

	removed, err := keys.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	require.NoError(t, keys.CheckAndInsert(ctx, "old", "invoice.payment"))
	require.ErrorIs(t, keys.CheckAndInsert(ctx, "fresh", "invoice.payment"), ErrIdempotencyConflict)
}

func TestMemoryIdempotencyRequiresKeyAndModule(t *testing.T) {
	keys := NewMemoryIdempotency()
	require.Error(t, keys.CheckAndInsert(context.Background(), "", "invoice.payment"))
	require.Error(t, keys.CheckAndInsert(context.Background(), "k", ""))
}
