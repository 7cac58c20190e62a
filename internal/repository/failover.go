package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gardiens/internal/domain"
	"gardiens/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDraftRepository writes to the primary store until it fails, then
// serves from the fallback and retries the primary once per recoveryInterval.
type FailoverDraftRepository struct {
	primary  domain.DraftRepository
	fallback domain.DraftRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverDraftRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary draft repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverDraftRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverDraftRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary draft repository recovered")
	}
}

func (r *FailoverDraftRepository) GetDraft(ctx context.Context, id string) (*models.BookingDraft, error) {
	if r.usePrimary() {
		draft, err := r.primary.GetDraft(ctx, id)
		if err == nil {
			r.recovered()
			return draft, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetDraft(ctx, id)
}

func (r *FailoverDraftRepository) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	if r.usePrimary() {
		err := r.primary.SetDraft(ctx, draft)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetDraft(ctx, draft)
}

func (r *FailoverDraftRepository) ClearDraft(ctx context.Context, id string) error {
	if r.usePrimary() {
		err := r.primary.ClearDraft(ctx, id)
		if err == nil {
			r.recovered()
			// the fallback may hold a copy written during an outage
			return r.fallback.ClearDraft(ctx, id)
		}
		r.markDown(err)
	}
	return r.fallback.ClearDraft(ctx, id)
}

func (r *FailoverDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
