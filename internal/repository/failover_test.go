package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gardiens/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetDraft(ctx context.Context, id string) (*models.BookingDraft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingDraft), args.Error(1)
}

func (m *mockRepo) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	return m.Called(ctx, draft).Error(0)
}

func (m *mockRepo) ClearDraft(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverDraftRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverDraftRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		draft := testDraft("a")
		primary.On("GetDraft", ctx, "a").Return(draft, nil).Once()

		got, err := repo.GetDraft(ctx, "a")
		assert.NoError(t, err)
		assert.Equal(t, draft, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		draft := testDraft("b")
		primary.On("GetDraft", ctx, "b").Return(nil, errors.New("fail")).Once()
		fallback.On("GetDraft", ctx, "b").Return(draft, nil).Once()

		got, err := repo.GetDraft(ctx, "b")
		assert.NoError(t, err)
		assert.Equal(t, draft, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DownSkipsPrimary", func(t *testing.T) {
		draft := testDraft("c")
		fallback.On("SetDraft", ctx, draft).Return(nil).Once()

		assert.NoError(t, repo.SetDraft(ctx, draft))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SetDraft", ctx, draft)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		draft := testDraft("d")
		primary.On("GetDraft", ctx, "d").Return(draft, nil).Once()

		got, err := repo.GetDraft(ctx, "d")
		assert.NoError(t, err)
		assert.Equal(t, draft, got)
		assert.False(t, repo.isDown.Load())
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("GetDraft", ctx, "e").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetDraft", ctx, "e").Return(nil, nil).Once()

		got, err := repo.GetDraft(ctx, "e")
		assert.NoError(t, err)
		assert.Nil(t, got)
		assert.True(t, repo.isDown.Load())
		assert.WithinDuration(t, time.Now(), repo.lastCheck, time.Second)
	})

	t.Run("ClearDraftClearsBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ClearDraft", ctx, "f").Return(nil).Once()
		fallback.On("ClearDraft", ctx, "f").Return(nil).Once()

		assert.NoError(t, repo.ClearDraft(ctx, "f"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "k", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "k", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
	})

	t.Run("WithRealStores", func(t *testing.T) {
		primary := new(mockRepo)
		memory := NewMemoryDraftRepository(time.Hour)
		repo := NewFailoverDraftRepository(primary, memory, &logger)

		draft := testDraft("g")
		primary.On("SetDraft", ctx, draft).Return(errors.New("down")).Once()
		assert.NoError(t, repo.SetDraft(ctx, draft))

		got, err := repo.GetDraft(ctx, "g")
		assert.NoError(t, err)
		assert.Equal(t, draft.Request.VariantID, got.Request.VariantID)
	})
}
