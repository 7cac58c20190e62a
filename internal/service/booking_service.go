package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gardiens/internal/availability"
	"gardiens/internal/config"
	"gardiens/internal/database"
	"gardiens/internal/domain"
	"gardiens/internal/events"
	"gardiens/internal/export"
	"gardiens/internal/metrics"
	"gardiens/internal/models"
	"gardiens/internal/pricing"
	"gardiens/internal/scheduler"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pricing formulas a quote can resolve to.
const (
	FormulaDuration   = "duration"
	FormulaHourly     = "hourly"
	FormulaDaily      = "daily"
	FormulaMultiDay   = "multi_day"
	FormulaSessions   = "sessions"
	FormulaCollective = "collective"
)

// Quote is the recap shown before the commit call.
type Quote struct {
	Request           models.BookingRequest        `json:"request"`
	Formula           string                       `json:"formula"`
	Breakdown         models.PriceBreakdown        `json:"breakdown"`
	DisplayTotal      int64                        `json:"display_total"`
	CommissionPercent float64                      `json:"commission_percent"`
	Occupation        []availability.DayOccupation `json:"occupation,omitempty"`
	Sessions          *scheduler.SessionReport     `json:"sessions,omitempty"`
	Collective        *scheduler.CollectiveReport  `json:"collective,omitempty"`
}

// Calendar is the month view of one service variant.
type Calendar struct {
	ServiceID int64                    `json:"service_id"`
	VariantID int64                    `json:"variant_id"`
	Month     string                   `json:"month"`
	Mode      string                   `json:"mode"`
	Days      []models.AvailabilityDay `json:"days"`
}

type BookingService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	engine   config.EngineConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(repo domain.Repository, eventBus domain.EventPublisher, engine config.EngineConfig, logger *zerolog.Logger) *BookingService {
	if engine.MaxBookingDays <= 0 {
		engine.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if engine.WorkdayHours <= 0 {
		engine.WorkdayHours = models.DefaultWorkdayHours
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		engine:   engine,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source used to decide what "today" is.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *BookingService) today() models.Date {
	return models.DateOf(s.now())
}

// CalendarOptions returns the classification options for a variant.
// Engine buffers apply when the service sets none of its own.
func (s *BookingService) CalendarOptions(svc models.ServiceConfig, variant models.ServiceVariant) availability.CalendarOptions {
	opts := availability.OptionsFor(svc, variant, s.engine.SlotStepMinutes)
	if opts.BufferBefore == 0 {
		opts.BufferBefore = s.engine.BufferBeforeMinutes
	}
	if opts.BufferAfter == 0 {
		opts.BufferAfter = s.engine.BufferAfterMinutes
	}
	return opts
}

func (s *BookingService) GetService(ctx context.Context, id int64) (*models.ServiceConfig, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: service %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return svc, nil
}

func (s *BookingService) loadVariant(ctx context.Context, serviceID, variantID int64) (*models.ServiceConfig, models.ServiceVariant, error) {
	svc, err := s.GetService(ctx, serviceID)
	if err != nil {
		return nil, models.ServiceVariant{}, err
	}
	variant, ok := svc.Variant(variantID)
	if !ok {
		return nil, models.ServiceVariant{}, fmt.Errorf("%w: %d on service %d", ErrUnknownVariant, variantID, serviceID)
	}
	return svc, variant, nil
}

// GetCalendar classifies every day of the month containing month.
func (s *BookingService) GetCalendar(ctx context.Context, serviceID, variantID int64, month models.Date) (*Calendar, error) {
	svc, variant, err := s.loadVariant(ctx, serviceID, variantID)
	if err != nil {
		return nil, err
	}

	from, to := monthBounds(month)
	snaps, err := s.repo.GetMonthSnapshots(ctx, svc, from, to)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	opts := s.CalendarOptions(*svc, variant)
	mode := "exclusive"
	if opts.CapacityBased {
		mode = "capacity"
	}
	metrics.IncCalendar(mode)

	return &Calendar{
		ServiceID: serviceID,
		VariantID: variantID,
		Month:     from.Format("2006-01"),
		Mode:      mode,
		Days:      availability.BuildMonthCalendar(from, snaps, s.today(), opts),
	}, nil
}

// ListCollectiveSlots returns the upcoming published slots of a collective
// variant within the month containing month.
func (s *BookingService) ListCollectiveSlots(ctx context.Context, serviceID, variantID int64, month models.Date) ([]models.CollectiveSlot, error) {
	_, variant, err := s.loadVariant(ctx, serviceID, variantID)
	if err != nil {
		return nil, err
	}
	if !variant.IsCollective() {
		return nil, invalid(fmt.Errorf("%w: variant %d", scheduler.ErrNotMultiUnit, variantID))
	}

	from, to := monthBounds(month)
	if today := s.today(); from.Before(today) {
		from = today
	}
	if to.Before(from) {
		return []models.CollectiveSlot{}, nil
	}

	slots, err := s.repo.GetCollectiveSlots(ctx, variant.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load collective slots: %w", err)
	}
	return slots, nil
}

// Quote validates a wizard selection and prices it. Nothing is held.
func (s *BookingService) Quote(ctx context.Context, req models.BookingRequest) (*Quote, error) {
	svc, variant, err := s.loadVariant(ctx, req.ServiceID, req.VariantID)
	if err != nil {
		return nil, err
	}
	q, err := s.quote(ctx, req, svc, variant)
	if err != nil {
		return nil, err
	}
	metrics.IncQuote(q.Formula)
	return q, nil
}

func (s *BookingService) quote(ctx context.Context, req models.BookingRequest, svc *models.ServiceConfig, variant models.ServiceVariant) (*Quote, error) {
	optionsTotal, unknown := svc.OptionsTotal(req.OptionIDs)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownOption, unknown)
	}

	rates := pricing.VariantRates(*svc, variant, s.engine.WorkdayHours)
	today := s.today()
	q := &Quote{Request: req, CommissionPercent: s.engine.CommissionPercent}

	var err error
	switch {
	case variant.IsCollective():
		err = s.quoteCollective(ctx, q, variant, optionsTotal, rates, today)
	case variant.Sessions() > 1:
		err = s.quoteSessions(ctx, q, svc, variant, optionsTotal, rates, today)
	default:
		err = s.quoteRange(ctx, q, svc, variant, optionsTotal, rates, today)
	}
	if err != nil {
		return nil, err
	}

	q.DisplayTotal = pricing.DisplayTotal(q.Breakdown.TotalAmount, s.engine.CommissionPercent)
	return q, nil
}

func (s *BookingService) quoteCollective(
	ctx context.Context,
	q *Quote,
	variant models.ServiceVariant,
	optionsTotal int64,
	rates models.Rates,
	today models.Date,
) error {
	if variant.Price <= 0 {
		return fmt.Errorf("%w: variant %d has no session price", ErrPricingUnavailable, variant.ID)
	}

	published, err := s.repo.GetCollectiveSlots(ctx, variant.ID, today, today.AddDays(s.engine.MaxBookingDays))
	if err != nil {
		return fmt.Errorf("load collective slots: %w", err)
	}

	participants := q.Request.ParticipantCount()
	report, err := scheduler.ValidateCollective(q.Request.SlotIDs, published, variant, participants, today)
	q.Collective = &report
	if err != nil {
		return invalid(err)
	}

	q.Formula = FormulaCollective
	q.Breakdown = scheduler.MultiUnitPrice(variant, participants, optionsTotal, rates)
	return nil
}

func (s *BookingService) quoteSessions(
	ctx context.Context,
	q *Quote,
	svc *models.ServiceConfig,
	variant models.ServiceVariant,
	optionsTotal int64,
	rates models.Rates,
	today models.Date,
) error {
	if variant.Price <= 0 {
		return fmt.Errorf("%w: variant %d has no session price", ErrPricingUnavailable, variant.ID)
	}

	byDate := map[string]models.DaySnapshot{}
	if from, to, ok := sessionSpan(q.Request.Sessions, today, s.engine.MaxBookingDays); ok {
		snaps, err := s.repo.GetMonthSnapshots(ctx, svc, from, to)
		if err != nil {
			return fmt.Errorf("load snapshots: %w", err)
		}
		for _, snap := range snaps {
			byDate[snap.Date.String()] = snap
		}
	}

	report := scheduler.ValidateSessions(q.Request.Sessions, scheduler.SessionContext{
		Service:  *svc,
		Variant:  variant,
		Today:    today,
		MaxDays:  s.engine.MaxBookingDays,
		Snapshot: func(d models.Date) models.DaySnapshot { return byDate[d.String()] },
		Calendar: s.CalendarOptions(*svc, variant),
	})
	q.Sessions = &report
	if err := report.FirstError(); err != nil {
		return invalid(err)
	}

	for _, c := range report.Sessions {
		q.Occupation = append(q.Occupation, c.Occupation)
	}
	q.Formula = FormulaSessions
	q.Breakdown = scheduler.MultiUnitPrice(variant, 1, optionsTotal, rates)
	return nil
}

// sessionSpan returns the dates worth loading for a session selection,
// clipped to the bookable horizon.
func sessionSpan(sessions []models.SessionRequest, today models.Date, maxDays int) (models.Date, models.Date, bool) {
	if len(sessions) == 0 {
		return models.Date{}, models.Date{}, false
	}
	from, to := sessions[0].Date, sessions[0].Date
	for _, sr := range sessions[1:] {
		if sr.Date.Before(from) {
			from = sr.Date
		}
		if sr.Date.After(to) {
			to = sr.Date
		}
	}
	if from.Before(today) {
		from = today
	}
	if horizon := today.AddDays(maxDays); to.After(horizon) {
		to = horizon
	}
	return from, to, !to.Before(from)
}

func (s *BookingService) quoteRange(
	ctx context.Context,
	q *Quote,
	svc *models.ServiceConfig,
	variant models.ServiceVariant,
	optionsTotal int64,
	rates models.Rates,
	today models.Date,
) error {
	req := q.Request
	fixedDuration := svc.EnableDurationBasedBlocking && variant.DurationMinutes() > 0

	switch {
	case fixedDuration && variant.Price <= 0:
		return fmt.Errorf("%w: variant %d has no price", ErrPricingUnavailable, variant.ID)
	case !fixedDuration && !rates.Priced():
		return fmt.Errorf("%w: variant %d has neither hourly nor daily rate", ErrPricingUnavailable, variant.ID)
	}

	if err := availability.ValidateDate(req.StartDate, today, s.engine.MaxBookingDays); err != nil {
		return invalid(err)
	}
	if err := availability.ValidateDate(req.LastDate(), today, s.engine.MaxBookingDays); err != nil {
		return invalid(err)
	}

	if req.IncludeOvernightStay {
		if !svc.AllowOvernightStay {
			return invalid(availability.ErrOvernightNotOffered)
		}
		if req.IsMultiDay() && rates.Nightly <= 0 {
			return fmt.Errorf("%w: no nightly rate for service %d", ErrPricingUnavailable, svc.ID)
		}
	}

	occupation, err := availability.Occupation(req, *svc, variant)
	if err != nil {
		return invalid(err)
	}

	snaps, err := s.repo.GetMonthSnapshots(ctx, svc, occupation[0].Date, occupation[len(occupation)-1].Date)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	byDate := make(map[string]models.DaySnapshot, len(snaps))
	for _, snap := range snaps {
		byDate[snap.Date.String()] = snap
	}

	opts := s.CalendarOptions(*svc, variant)
	for _, occ := range occupation {
		if err := availability.CheckOccupation(byDate[occ.Date.String()], occ, req.ParticipantCount(), opts); err != nil {
			return invalid(err)
		}
	}

	q.Occupation = occupation
	q.Breakdown = pricing.CalculateSmartPrice(req, *svc, variant, rates, optionsTotal, pricing.Options{
		WorkdayHours:            s.engine.WorkdayHours,
		FullDayToleranceMinutes: s.engine.FullDayToleranceMinutes,
	})

	switch {
	case fixedDuration:
		q.Formula = FormulaDuration
	case req.IsMultiDay():
		q.Formula = FormulaMultiDay
	case req.StartTime != nil && !q.Breakdown.FirstDayIsFullDay:
		q.Formula = FormulaHourly
	default:
		q.Formula = FormulaDaily
	}
	return nil
}

// CreateBooking re-validates the selection, prices it and commits it.
// The storage commit repeats the availability check inside its
// transaction; losing that race returns ErrSlotNoLongerAvailable.
func (s *BookingService) CreateBooking(ctx context.Context, userID int64, req models.BookingRequest) (*models.Booking, error) {
	svc, variant, err := s.loadVariant(ctx, req.ServiceID, req.VariantID)
	if err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, req, svc, variant)
	if err != nil {
		if IsValidation(err) {
			metrics.IncCommit("invalid")
		} else {
			metrics.IncCommit("error")
		}
		return nil, err
	}

	booking := newBooking(userID, q)

	commitCtx := ctx
	if s.engine.CommitTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(ctx, time.Duration(s.engine.CommitTimeoutSeconds)*time.Second)
		defer cancel()
	}

	occupation := q.Occupation
	if variant.IsCollective() {
		occupation = nil
	}
	if err := s.repo.CreateBookingWithLock(commitCtx, booking, svc, occupation, s.CalendarOptions(*svc, variant)); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncCommit("slot_taken")
			s.logger.Info().Err(err).Int64("service_id", svc.ID).Str("reference", booking.Reference).Msg("booking lost the commit race")
			s.publishEvent(events.EventBookingRejected, booking, err.Error())
			return nil, fmt.Errorf("%w: %w", ErrSlotNoLongerAvailable, err)
		}
		metrics.IncCommit("error")
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	metrics.IncCommit("created")
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("reference", booking.Reference).
		Str("formula", q.Formula).
		Int64("amount", booking.CalculatedAmount).
		Msg("booking created")
	s.publishEvent(events.EventBookingCreated, booking, "")
	return booking, nil
}

func newBooking(userID int64, q *Quote) *models.Booking {
	req := q.Request
	b := &models.Booking{
		Reference:        uuid.NewString(),
		UserID:           userID,
		ServiceID:        req.ServiceID,
		VariantID:        req.VariantID,
		StartDate:        req.StartDate,
		EndDate:          req.LastDate(),
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Participants:     req.ParticipantCount(),
		CalculatedAmount: q.Breakdown.TotalAmount,
		OvernightNights:  q.Breakdown.Nights,
		OvernightAmount:  q.Breakdown.NightsAmount,
		OptionIDs:        req.OptionIDs,
		Sessions:         req.Sessions,
		SlotIDs:          req.SlotIDs,
		Location:         req.Location,
		Status:           models.StatusPending,
	}

	// occurrence formulas span from the first to the last occurrence
	var dates []models.Date
	if q.Collective != nil {
		for _, slot := range q.Collective.Slots {
			dates = append(dates, slot.Date)
		}
	} else if q.Sessions != nil {
		for _, occ := range q.Occupation {
			dates = append(dates, occ.Date)
		}
	}
	if len(dates) > 0 {
		b.StartDate, b.EndDate = dates[0], dates[0]
		for _, d := range dates[1:] {
			if d.Before(b.StartDate) {
				b.StartDate = d
			}
			if d.After(b.EndDate) {
				b.EndDate = d
			}
		}
		b.StartTime, b.EndTime = nil, nil
	}
	return b
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// ListBookings returns the bookings of a service that touch [from, to].
func (s *BookingService) ListBookings(ctx context.Context, serviceID int64, from, to models.Date) ([]*models.Booking, error) {
	bookings, err := s.repo.ListBookings(ctx, serviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// MonthReport gathers the calendar and the variant's bookings overlapping
// the month, ready for the workbook exporter.
func (s *BookingService) MonthReport(ctx context.Context, serviceID, variantID int64, month models.Date) (*export.MonthReport, error) {
	cal, err := s.GetCalendar(ctx, serviceID, variantID, month)
	if err != nil {
		return nil, err
	}
	svc, variant, err := s.loadVariant(ctx, serviceID, variantID)
	if err != nil {
		return nil, err
	}

	from, to := monthBounds(month)
	all, err := s.ListBookings(ctx, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	var bookings []*models.Booking
	for _, b := range all {
		if b.VariantID == variantID {
			bookings = append(bookings, b)
		}
	}

	return &export.MonthReport{
		Service:  svc,
		Variant:  variant,
		Month:    cal.Month,
		Days:     cal.Days,
		Bookings: bookings,
	}, nil
}

// CancelBooking releases a pending or confirmed booking. version must match
// the stored version.
func (s *BookingService) CancelBooking(ctx context.Context, id, version int64) (*models.Booking, error) {
	b, err := s.repo.CancelBooking(ctx, id, version)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, id)
		case errors.Is(err, database.ErrConcurrentModification):
			return nil, fmt.Errorf("%w: booking %d", ErrVersionConflict, id)
		case errors.Is(err, database.ErrInvalidTransition):
			return nil, fmt.Errorf("%w: booking %d", ErrInvalidTransition, id)
		}
		return nil, fmt.Errorf("cancel booking %d: %w", id, err)
	}

	s.logger.Info().Int64("booking_id", id).Str("reference", b.Reference).Msg("booking cancelled")
	s.publishEvent(events.EventBookingCancelled, b, "")
	return b, nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, reason string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:    b.ID,
		Reference:    b.Reference,
		UserID:       b.UserID,
		ServiceID:    b.ServiceID,
		VariantID:    b.VariantID,
		StartDate:    b.StartDate.String(),
		EndDate:      b.EndDate.String(),
		Participants: b.Participants,
		TotalAmount:  b.CalculatedAmount,
		Status:       b.Status,
		Reason:       reason,
	}
	if b.StartTime != nil {
		payload.StartTime = b.StartTime.String()
	}
	if b.EndTime != nil {
		payload.EndTime = b.EndTime.String()
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("booking_id", b.ID).Msg("Failed to publish event")
	}
}

func monthBounds(month models.Date) (models.Date, models.Date) {
	from := month.MonthStart()
	return from, models.DateOf(from.AddDate(0, 1, -1))
}
