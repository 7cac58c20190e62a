package service

import (
	"errors"
	"fmt"

	"gardiens/internal/availability"
	"gardiens/internal/scheduler"
)

var (
	ErrPricingUnavailable    = errors.New("pricing unavailable for this variant")
	ErrValidation            = errors.New("validation failed")
	ErrSlotNoLongerAvailable = errors.New("slot no longer available")
	ErrNotFound              = errors.New("not found")
	ErrVersionConflict       = errors.New("booking was modified, reload and retry")
	ErrInvalidTransition     = errors.New("booking cannot be cancelled in its current status")
	ErrUnknownVariant        = errors.New("unknown variant")
	ErrUnknownOption         = errors.New("unknown option")
	ErrRateLimited           = errors.New("too many requests")
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrPricingUnavailable, "pricing_unavailable"},
	{ErrSlotNoLongerAvailable, "slot_no_longer_available"},
	{ErrVersionConflict, "version_conflict"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrUnknownVariant, "unknown_variant"},
	{ErrUnknownOption, "unknown_option"},
	{ErrRateLimited, "rate_limited"},
	{ErrNotFound, "not_found"},
	{availability.ErrPastDate, "past_date"},
	{availability.ErrDateTooFar, "date_too_far"},
	{availability.ErrInvalidTimeRange, "invalid_time_range"},
	{availability.ErrOutsideWorkingHours, "outside_working_hours"},
	{availability.ErrDayUnavailable, "day_unavailable"},
	{availability.ErrSlotConflict, "slot_conflict"},
	{availability.ErrCapacityExhausted, "capacity_exhausted"},
	{availability.ErrOvernightNotOffered, "overnight_not_offered"},
	{scheduler.ErrIntervalViolated, "interval_violated"},
	{scheduler.ErrIncompleteSelection, "incomplete_selection"},
	{scheduler.ErrSelectionFull, "selection_full"},
	{scheduler.ErrAlreadySelected, "already_selected"},
	{scheduler.ErrSlotNotPublished, "slot_not_published"},
	{scheduler.ErrNotEnoughSpots, "not_enough_spots"},
	{scheduler.ErrTooManyParticipants, "too_many_participants"},
	{scheduler.ErrNotMultiUnit, "not_multi_unit"},
}

// ReasonCode maps an error returned by this package to a stable machine
// code. Unknown errors map to "internal".
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	if errors.Is(err, ErrValidation) {
		return "invalid_request"
	}
	return "internal"
}

// IsValidation reports whether err describes a request the caller can fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrPricingUnavailable) ||
		errors.Is(err, ErrUnknownVariant) || errors.Is(err, ErrUnknownOption)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
