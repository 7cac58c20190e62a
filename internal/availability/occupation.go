package availability

import (
	"errors"
	"fmt"

	"gardiens/internal/models"
)

var (
	ErrPastDate            = errors.New("date is in the past")
	ErrDateTooFar          = errors.New("date is too far in the future")
	ErrInvalidTimeRange    = errors.New("invalid time range")
	ErrOutsideWorkingHours = errors.New("time is outside working hours")
	ErrDayUnavailable      = errors.New("day is not available")
	ErrSlotConflict        = errors.New("time slot conflicts with an existing booking")
	ErrCapacityExhausted   = errors.New("not enough capacity left")
	ErrOvernightNotOffered = errors.New("overnight stay is not offered")
)

// DayOccupation is the interval a booking holds on one calendar day,
// before buffers.
type DayOccupation struct {
	Date models.Date     `json:"date"`
	Slot models.TimeSlot `json:"slot"`
}

// ValidateDate checks a start date against today and the booking horizon.
// maxDays <= 0 disables the horizon check.
func ValidateDate(date, today models.Date, maxDays int) error {
	if date.Before(today) {
		return fmt.Errorf("%w: %s", ErrPastDate, date)
	}
	if maxDays > 0 && date.After(today.AddDays(maxDays)) {
		return fmt.Errorf("%w: %s", ErrDateTooFar, date)
	}
	return nil
}

// Occupation expands a date-range request into the interval held on each
// day. Fixed-duration formulas hold exactly the variant duration from the
// chosen start; other formulas hold the chosen times, or the whole working
// window where no time was chosen.
func Occupation(req models.BookingRequest, svc models.ServiceConfig, variant models.ServiceVariant) ([]DayOccupation, error) {
	window := svc.WorkingWindow()
	last := req.LastDate()
	if last.Before(req.StartDate) {
		return nil, fmt.Errorf("%w: end date %s before start date %s", ErrInvalidTimeRange, last, req.StartDate)
	}

	if svc.EnableDurationBasedBlocking && variant.DurationMinutes() > 0 {
		if req.StartTime == nil {
			return nil, fmt.Errorf("%w: start time is required", ErrInvalidTimeRange)
		}
		slot := models.TimeSlot{Start: *req.StartTime, End: req.StartTime.Add(variant.DurationMinutes())}
		if err := checkWindow(slot, window); err != nil {
			return nil, err
		}
		return []DayOccupation{{Date: req.StartDate, Slot: slot}}, nil
	}

	if req.TotalDays() == 1 {
		slot := window
		if req.StartTime != nil || req.EndTime != nil {
			if req.StartTime == nil || req.EndTime == nil {
				return nil, fmt.Errorf("%w: both start and end time are required", ErrInvalidTimeRange)
			}
			slot = models.TimeSlot{Start: *req.StartTime, End: *req.EndTime}
		}
		if slot.End <= slot.Start {
			return nil, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, slot.Start, slot.End)
		}
		if err := checkWindow(slot, window); err != nil {
			return nil, err
		}
		return []DayOccupation{{Date: req.StartDate, Slot: slot}}, nil
	}

	first := window
	if req.StartTime != nil {
		first.Start = *req.StartTime
	}
	final := window
	if req.EndTime != nil {
		final.End = *req.EndTime
	}
	for _, s := range []models.TimeSlot{first, final} {
		if s.End <= s.Start {
			return nil, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, s.Start, s.End)
		}
		if err := checkWindow(s, window); err != nil {
			return nil, err
		}
	}

	days := req.TotalDays()
	out := make([]DayOccupation, 0, days)
	for i := 0; i < days; i++ {
		slot := window
		switch i {
		case 0:
			slot = first
		case days - 1:
			slot = final
		}
		out = append(out, DayOccupation{Date: req.StartDate.AddDays(i), Slot: slot})
	}
	return out, nil
}

// SessionOccupation returns the interval held by one session of a
// multi-session formula.
func SessionOccupation(s models.SessionRequest, svc models.ServiceConfig, variant models.ServiceVariant) (DayOccupation, error) {
	slot := s.Slot()
	if svc.EnableDurationBasedBlocking && variant.DurationMinutes() > 0 {
		slot.End = slot.Start.Add(variant.DurationMinutes())
	}
	if slot.End <= slot.Start {
		return DayOccupation{}, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, slot.Start, slot.End)
	}
	if err := checkWindow(slot, svc.WorkingWindow()); err != nil {
		return DayOccupation{}, err
	}
	return DayOccupation{Date: s.Date, Slot: slot}, nil
}

func checkWindow(slot, window models.TimeSlot) error {
	if !window.Contains(slot) {
		return fmt.Errorf("%w: %s-%s not within %s-%s", ErrOutsideWorkingHours, slot.Start, slot.End, window.Start, window.End)
	}
	return nil
}

// CheckOccupation is the per-day booking rule shared by quotes and the
// commit transaction. Capacity-based days only look at head count;
// exclusive days run the slot conflict checker.
func CheckOccupation(snap models.DaySnapshot, occ DayOccupation, participants int, opts CalendarOptions) error {
	if snap.Blocked {
		return fmt.Errorf("%w: %s", ErrDayUnavailable, occ.Date)
	}

	if opts.CapacityBased {
		capacity := snapshotCapacity(snap, opts)
		if capacity.Remaining < participants {
			return fmt.Errorf("%w: %s has %d left, %d requested", ErrCapacityExhausted, occ.Date, capacity.Remaining, participants)
		}
		return nil
	}

	if !IsTimeSlotAvailable(occ.Slot.Start, occ.Slot.Duration(), dayView(snap), opts.BufferBefore, opts.BufferAfter) {
		return fmt.Errorf("%w: %s %s-%s", ErrSlotConflict, occ.Date, occ.Slot.Start, occ.Slot.End)
	}
	return nil
}

// BookedSlot converts an occupation into the form stored in snapshots,
// with the booking's own buffers folded in.
func BookedSlot(occ DayOccupation, bufferBefore, bufferAfter int) models.TimeSlot {
	return occ.Slot.Widen(bufferBefore, bufferAfter)
}
