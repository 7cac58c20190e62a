package availability

import (
	"gardiens/internal/models"
)

// CalendarOptions describes how days of one service variant are classified.
type CalendarOptions struct {
	// CapacityBased switches to head-count classification.
	CapacityBased bool
	// MaxCapacity is used when a snapshot carries no capacity of its own.
	MaxCapacity int

	// WorkingWindow bounds the candidate starts probed on exclusive days.
	WorkingWindow models.TimeSlot
	// SlotDuration is the length of each probed candidate, in minutes.
	// Zero means SlotStep.
	SlotDuration int
	// SlotStep is the spacing between probed starts, in minutes.
	SlotStep     int
	BufferBefore int
	BufferAfter  int
}

// OptionsFor derives calendar options from a service and one of its variants.
func OptionsFor(svc models.ServiceConfig, variant models.ServiceVariant, slotStep int) CalendarOptions {
	opts := CalendarOptions{
		CapacityBased: svc.IsCapacityBased,
		MaxCapacity:   svc.MaxAnimalsPerSlot,
		WorkingWindow: svc.WorkingWindow(),
		SlotStep:      slotStep,
		BufferBefore:  svc.BufferBefore,
		BufferAfter:   svc.BufferAfter,
	}
	if svc.EnableDurationBasedBlocking && variant.DurationMinutes() > 0 {
		opts.SlotDuration = variant.DurationMinutes()
	}
	return opts
}

func (o CalendarOptions) step() int {
	if o.SlotStep <= 0 {
		return models.DefaultSlotStepMinutes
	}
	return o.SlotStep
}

func (o CalendarOptions) duration() int {
	if o.SlotDuration <= 0 {
		return o.step()
	}
	return o.SlotDuration
}

// BuildMonthCalendar classifies every day of the month containing month.
//
// Snapshots are matched by date; a day without a snapshot is treated as
// empty. Days before today are past whatever the snapshot says.
func BuildMonthCalendar(month models.Date, days []models.DaySnapshot, today models.Date, opts CalendarOptions) []models.AvailabilityDay {
	byDate := make(map[string]models.DaySnapshot, len(days))
	for _, d := range days {
		byDate[d.Date.String()] = d
	}

	first := month.MonthStart()
	next := models.DateOf(first.AddDate(0, 1, 0))

	out := make([]models.AvailabilityDay, 0, first.DaysUntil(next))
	for d := first; d.Before(next); d = d.AddDays(1) {
		snap, ok := byDate[d.String()]
		if !ok {
			snap = models.DaySnapshot{Date: d}
		}
		snap.Date = d
		out = append(out, ClassifyDay(snap, today, opts))
	}
	return out
}

// ClassifyDay computes the status of a single day.
func ClassifyDay(snap models.DaySnapshot, today models.Date, opts CalendarOptions) models.AvailabilityDay {
	day := dayView(snap)

	if opts.CapacityBased {
		capacity := snapshotCapacity(snap, opts)
		day.Capacity = &capacity
	}

	switch {
	case snap.Date.Before(today):
		day.Status = models.DayPast
	case snap.Blocked:
		day.Status = models.DayUnavailable
	case opts.CapacityBased:
		day.Status = capacityStatus(*day.Capacity)
	default:
		day.Status = exclusiveStatus(day, opts)
	}
	return day
}

func snapshotCapacity(snap models.DaySnapshot, opts CalendarOptions) models.Capacity {
	if snap.Capacity == nil {
		return models.NewCapacity(0, opts.MaxCapacity)
	}
	limit := snap.Capacity.Max
	if limit == 0 {
		limit = opts.MaxCapacity
	}
	return models.NewCapacity(snap.Capacity.Current, limit)
}

func capacityStatus(c models.Capacity) string {
	switch {
	case c.Remaining <= 0:
		return models.DayUnavailable
	case c.Remaining < c.Max:
		return models.DayPartial
	default:
		return models.DayAvailable
	}
}

// exclusiveStatus probes every candidate start across the working window.
func exclusiveStatus(day models.AvailabilityDay, opts CalendarOptions) string {
	free, total := 0, 0
	for _, start := range CandidateStarts(opts) {
		total++
		if IsTimeSlotAvailable(start, opts.duration(), day, opts.BufferBefore, opts.BufferAfter) {
			free++
		}
	}

	switch {
	case free == 0:
		return models.DayUnavailable
	case free < total:
		return models.DayPartial
	default:
		return models.DayAvailable
	}
}

// CandidateStarts lists the starts probed within the working window.
// Every candidate ends inside the window.
func CandidateStarts(opts CalendarOptions) []models.ClockTime {
	window := opts.WorkingWindow
	if window.End <= window.Start {
		window.End = models.MinutesPerDay
	}

	var starts []models.ClockTime
	for s := window.Start; s.Add(opts.duration()) <= window.End; s = s.Add(opts.step()) {
		starts = append(starts, s)
	}
	return starts
}

// FreeStarts lists candidate starts still bookable on day. Callers use it to
// offer concrete times once a date is chosen.
func FreeStarts(day models.AvailabilityDay, opts CalendarOptions) []models.ClockTime {
	if !day.Bookable() || opts.CapacityBased {
		return nil
	}
	var free []models.ClockTime
	for _, s := range CandidateStarts(opts) {
		if IsTimeSlotAvailable(s, opts.duration(), day, opts.BufferBefore, opts.BufferAfter) {
			free = append(free, s)
		}
	}
	return free
}
