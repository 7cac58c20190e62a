package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDraftRepository(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Hour)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SetAndGetDraft", func(t *testing.T) {
		draft := testDraft("m-1")
		require.NoError(t, repo.SetDraft(ctx, draft))

		got, err := repo.GetDraft(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, draft, got)

		got.Step = "changed"
		again, _ := repo.GetDraft(ctx, "m-1")
		assert.Equal(t, draft.Step, again.Step, "callers get a copy")
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, repo.SetDraft(ctx, testDraft("m-ttl")))
		now = now.Add(2 * time.Hour)

		got, err := repo.GetDraft(ctx, "m-ttl")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearDraft", func(t *testing.T) {
		require.NoError(t, repo.SetDraft(ctx, testDraft("m-2")))
		require.NoError(t, repo.ClearDraft(ctx, "m-2"))
		got, _ := repo.GetDraft(ctx, "m-2")
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		allowed, _ := repo.CheckRateLimit(ctx, "ip", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "ip", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "ip", 2, time.Second)
		assert.False(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, "other", 2, time.Second)
		assert.True(t, allowed, "keys are independent")

		now = now.Add(time.Second + 10*time.Millisecond)
		allowed, _ = repo.CheckRateLimit(ctx, "ip", 2, time.Second)
		assert.True(t, allowed)
	})
}
