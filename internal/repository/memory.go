package repository

import (
	"context"
	"sync"
	"time"

	"gardiens/internal/models"
)

type memoryDraft struct {
	draft     models.BookingDraft
	expiresAt time.Time
}

// MemoryDraftRepository keeps drafts in process. Used alone in tests and as
// the fallback when redis is unreachable.
type MemoryDraftRepository struct {
	mu         sync.Mutex
	drafts     map[string]memoryDraft
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{
		drafts:     make(map[string]memoryDraft),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryDraftRepository) GetDraft(_ context.Context, id string) (*models.BookingDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.drafts[id]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.drafts, id)
		return nil, nil
	}
	draft := entry.draft
	return &draft, nil
}

func (r *MemoryDraftRepository) SetDraft(_ context.Context, draft *models.BookingDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draft.ID] = memoryDraft{draft: *draft, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, id)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryDraftRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
