package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"gardiens/internal/availability"
	"gardiens/internal/models"
)

var (
	ErrIntervalViolated    = errors.New("sessions are closer than the required interval")
	ErrSlotNotPublished    = errors.New("slot is not published for this variant")
	ErrNotEnoughSpots      = errors.New("slot does not have enough spots left")
	ErrTooManyParticipants = errors.New("too many participants for this session")
	ErrNotMultiUnit        = errors.New("variant is not a multi-session formula")
)

// SessionKey identifies an individual session inside a Selection.
type SessionKey struct {
	Date  string
	Start models.ClockTime
}

func keyOf(s models.SessionRequest) SessionKey {
	return SessionKey{Date: s.Date.String(), Start: s.StartTime}
}

// SessionCheck is the outcome for one session of an individual formula.
type SessionCheck struct {
	Session    models.SessionRequest      `json:"session"`
	Occupation availability.DayOccupation `json:"occupation"`
	Err        error                      `json:"-"`
	Reason     string                     `json:"reason,omitempty"`
}

// SessionReport summarises an individual multi-session selection.
type SessionReport struct {
	Sessions []SessionCheck `json:"sessions"`
	Selected int            `json:"selected"`
	Required int            `json:"required"`
	Complete bool           `json:"complete"`
}

// Valid reports whether the selection is complete and every session passed.
func (r SessionReport) Valid() bool {
	if !r.Complete {
		return false
	}
	for _, s := range r.Sessions {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// FirstError returns the first problem found, or nil for a valid report.
func (r SessionReport) FirstError() error {
	for _, s := range r.Sessions {
		if s.Err != nil {
			return s.Err
		}
	}
	if !r.Complete {
		return fmt.Errorf("%w: %d of %d sessions", ErrIncompleteSelection, r.Selected, r.Required)
	}
	return nil
}

// SessionContext carries everything needed to judge individual sessions.
type SessionContext struct {
	Service  models.ServiceConfig
	Variant  models.ServiceVariant
	Today    models.Date
	MaxDays  int
	Snapshot func(models.Date) models.DaySnapshot
	Calendar availability.CalendarOptions
}

// ValidateSessions checks an individual multi-session selection.
//
// Sessions are sorted by date. Consecutive sessions must be at least
// SessionInterval days apart. Each session must pass the slot conflict
// checker against its day, where sessions accepted earlier in the same
// selection count as booked.
func ValidateSessions(sessions []models.SessionRequest, c SessionContext) SessionReport {
	sorted := make([]models.SessionRequest, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].StartTime < sorted[j].StartTime
	})

	required := c.Variant.Sessions()
	report := SessionReport{Required: required}

	sel := NewSelection[SessionKey](required)
	pending := map[string][]models.TimeSlot{}
	var prev *models.SessionRequest

	for i := range sorted {
		s := sorted[i]
		check := SessionCheck{Session: s}

		switch {
		case sel.Contains(keyOf(s)):
			check.Err = ErrAlreadySelected
		case sel.Len() >= required:
			check.Err = ErrSelectionFull
		default:
			check.Err = validateSession(s, prev, pending, c, &check)
		}

		if check.Err == nil {
			sel, _ = sel.Add(keyOf(s))
			prev = &sorted[i]
			day := s.Date.String()
			pending[day] = append(pending[day], availability.BookedSlot(check.Occupation, c.Calendar.BufferBefore, c.Calendar.BufferAfter))
		} else {
			check.Reason = check.Err.Error()
		}
		report.Sessions = append(report.Sessions, check)
	}

	report.Selected, _ = sel.Progress()
	report.Complete = sel.IsComplete()
	return report
}

func validateSession(
	s models.SessionRequest,
	prev *models.SessionRequest,
	pending map[string][]models.TimeSlot,
	c SessionContext,
	check *SessionCheck,
) error {
	if err := availability.ValidateDate(s.Date, c.Today, c.MaxDays); err != nil {
		return err
	}

	if prev != nil {
		gap := prev.Date.DaysUntil(s.Date)
		if gap < c.Variant.SessionInterval {
			return fmt.Errorf("%w: %s and %s are %d days apart, need %d",
				ErrIntervalViolated, prev.Date, s.Date, gap, c.Variant.SessionInterval)
		}
	}

	occ, err := availability.SessionOccupation(s, c.Service, c.Variant)
	if err != nil {
		return err
	}
	check.Occupation = occ

	var snap models.DaySnapshot
	if c.Snapshot != nil {
		snap = c.Snapshot(s.Date)
	}
	snap.Date = s.Date
	snap.BookedSlots = append(append([]models.TimeSlot(nil), snap.BookedSlots...), pending[s.Date.String()]...)

	return availability.CheckOccupation(snap, occ, 1, c.Calendar)
}

// CollectiveReport summarises a collective slot selection.
type CollectiveReport struct {
	Slots    []models.CollectiveSlot `json:"slots"`
	Selected int                     `json:"selected"`
	Required int                     `json:"required"`
	Complete bool                    `json:"complete"`
}

// ValidateCollective checks the slot ids chosen for a collective formula
// against the published slots. Each id may appear once; every slot must be
// upcoming and have room for all participants.
func ValidateCollective(
	slotIDs []int64,
	published []models.CollectiveSlot,
	variant models.ServiceVariant,
	participants int,
	today models.Date,
) (CollectiveReport, error) {
	if participants < 1 {
		participants = 1
	}
	report := CollectiveReport{Required: variant.Sessions()}

	if variant.MaxAnimalsPerSession > 0 && participants > variant.MaxAnimalsPerSession {
		return report, fmt.Errorf("%w: %d requested, at most %d", ErrTooManyParticipants, participants, variant.MaxAnimalsPerSession)
	}

	byID := make(map[int64]models.CollectiveSlot, len(published))
	for _, s := range published {
		byID[s.ID] = s
	}

	sel := NewSelection[int64](report.Required)
	for _, id := range slotIDs {
		slot, ok := byID[id]
		if !ok || (slot.VariantID != 0 && slot.VariantID != variant.ID) {
			return report, fmt.Errorf("%w: %d", ErrSlotNotPublished, id)
		}
		if slot.Date.Before(today) {
			return report, fmt.Errorf("%w: slot %d on %s", availability.ErrPastDate, id, slot.Date)
		}
		if slot.AvailableSpots < participants {
			return report, fmt.Errorf("%w: slot %d has %d left, %d requested", ErrNotEnoughSpots, id, slot.AvailableSpots, participants)
		}

		next, err := sel.Add(id)
		if err != nil {
			return report, fmt.Errorf("slot %d: %w", id, err)
		}
		sel = next
		report.Slots = append(report.Slots, slot)
	}

	report.Selected, _ = sel.Progress()
	report.Complete = sel.IsComplete()
	if !report.Complete {
		return report, fmt.Errorf("%w: %d of %d slots", ErrIncompleteSelection, report.Selected, report.Required)
	}
	return report, nil
}

// MultiUnitPrice prices a multi-occurrence formula as
// unitPrice × occurrences × participants + options. Individual formulas
// always count a single participant.
func MultiUnitPrice(variant models.ServiceVariant, participants int, optionsTotal int64, rates models.Rates) models.PriceBreakdown {
	if participants < 1 || !variant.IsCollective() {
		participants = 1
	}
	occurrences := variant.Sessions()
	sessions := variant.Price * int64(occurrences) * int64(participants)

	return models.PriceBreakdown{
		UnitPrice:      variant.Price,
		Occurrences:    occurrences,
		Participants:   participants,
		SessionsAmount: sessions,
		OptionsAmount:  optionsTotal,
		TotalAmount:    sessions + optionsTotal,
		HourlyRate:     rates.Hourly,
		DailyRate:      rates.Daily,
		NightlyRate:    rates.Nightly,
	}
}
