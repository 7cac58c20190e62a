package service

import (
	"context"
	"fmt"
	"time"

	"gardiens/internal/config"
	"gardiens/internal/domain"
	"gardiens/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var validSteps = map[string]bool{
	models.StepSelectVariant: true,
	models.StepSelectDates:   true,
	models.StepSelectTimes:   true,
	models.StepSelectOptions: true,
	models.StepRecap:         true,
}

// DraftService keeps the in-progress wizard selection of each client.
type DraftService struct {
	repo   domain.DraftRepository
	cfg    config.DraftsConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDraftService(repo domain.DraftRepository, cfg config.DraftsConfig, logger *zerolog.Logger) *DraftService {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = models.RateLimitRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = models.RateLimitWindow
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DraftService{repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// Allow applies the draft write rate limit to clientKey.
func (s *DraftService) Allow(ctx context.Context, clientKey string) error {
	window := time.Duration(s.cfg.RateLimitWindow) * time.Second
	ok, err := s.repo.CheckRateLimit(ctx, clientKey, s.cfg.RateLimitRequests, window)
	if err != nil {
		// drafts are best effort, a broken limiter must not lock clients out
		s.logger.Warn().Err(err).Str("client", clientKey).Msg("draft rate limit check failed")
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Create starts a new draft for userID.
func (s *DraftService) Create(ctx context.Context, userID int64, req models.BookingRequest) (*models.BookingDraft, error) {
	draft := &models.BookingDraft{
		ID:      uuid.NewString(),
		UserID:  userID,
		Step:    models.StepSelectVariant,
		Request: req,
	}
	if req.VariantID != 0 {
		draft.Step = models.StepSelectDates
	}
	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Get returns the draft when it exists and belongs to userID.
func (s *DraftService) Get(ctx context.Context, userID int64, id string) (*models.BookingDraft, error) {
	draft, err := s.repo.GetDraft(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("draft_id", id).Msg("failed to get draft")
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if draft == nil || draft.UserID != userID {
		return nil, fmt.Errorf("%w: draft %s", ErrNotFound, id)
	}
	return draft, nil
}

// Save replaces the selection and step of an existing draft.
func (s *DraftService) Save(ctx context.Context, userID int64, id, step string, req models.BookingRequest) (*models.BookingDraft, error) {
	if step != "" && !validSteps[step] {
		return nil, invalid(fmt.Errorf("unknown step %q", step))
	}
	draft, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if step != "" {
		draft.Step = step
	}
	draft.Request = req
	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Clear drops the draft, typically after a successful commit.
func (s *DraftService) Clear(ctx context.Context, userID int64, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.ClearDraft(ctx, id); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (s *DraftService) save(ctx context.Context, draft *models.BookingDraft) error {
	draft.UpdatedAt = s.now().UTC()
	if err := s.repo.SetDraft(ctx, draft); err != nil {
		s.logger.Error().Err(err).Str("draft_id", draft.ID).Msg("failed to save draft")
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}
