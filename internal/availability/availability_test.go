package availability

import (
	"testing"

	"gardiens/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ct(s string) models.ClockTime { return models.MustClockTime(s) }

func slot(from, to string) models.TimeSlot {
	return models.TimeSlot{Start: ct(from), End: ct(to)}
}

func TestIsTimeSlotAvailable(t *testing.T) {
	day := models.AvailabilityDay{
		BookedSlots: []models.TimeSlot{slot("10:00", "11:00")},
	}

	tests := []struct {
		name          string
		start         string
		duration      int
		before, after int
		want          bool
	}{
		{name: "FreeMorning", start: "08:00", duration: 60, want: true},
		{name: "EndsExactlyAtBooking", start: "09:00", duration: 60, want: true},
		{name: "StartsExactlyAfterBooking", start: "11:00", duration: 60, want: true},
		{name: "Overlaps", start: "10:30", duration: 60, want: false},
		{name: "Inside", start: "10:15", duration: 15, want: false},
		{name: "Covers", start: "09:00", duration: 180, want: false},
		{name: "BufferAfterHitsBooking", start: "09:00", duration: 60, after: 15, want: false},
		{name: "BufferBeforeHitsBooking", start: "11:00", duration: 60, before: 1, want: false},
		{name: "BuffersOverlap", start: "08:45", duration: 60, before: 30, after: 30, want: false},
		{name: "BuffersTouch", start: "08:30", duration: 60, before: 30, after: 30, want: true},
		{name: "BuffersStayClear", start: "08:00", duration: 60, before: 30, after: 60, want: true},
		{name: "ZeroDuration", start: "08:00", duration: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsTimeSlotAvailable(ct(tt.start), tt.duration, day, tt.before, tt.after)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsTimeSlotAvailablePartialWindows(t *testing.T) {
	day := models.AvailabilityDay{
		TimeSlots: []models.TimeSlot{slot("09:00", "12:00"), slot("14:00", "18:00")},
	}

	assert.True(t, IsTimeSlotAvailable(ct("09:00"), 180, day, 0, 0))
	assert.True(t, IsTimeSlotAvailable(ct("15:00"), 60, day, 30, 30))
	assert.False(t, IsTimeSlotAvailable(ct("11:00"), 120, day, 0, 0), "spans the gap between windows")
	assert.False(t, IsTimeSlotAvailable(ct("09:00"), 60, day, 15, 0), "buffer leaves the window")
	assert.False(t, IsTimeSlotAvailable(ct("19:00"), 30, day, 0, 0))
}

func TestConflictSymmetry(t *testing.T) {
	candidates := []models.TimeSlot{
		slot("08:00", "09:00"),
		slot("09:00", "10:00"),
		slot("09:30", "11:30"),
		slot("10:45", "12:00"),
		slot("12:15", "13:00"),
	}
	buffers := [][2]int{{0, 0}, {15, 0}, {0, 15}, {30, 30}}

	for _, bb := range buffers {
		for _, a := range candidates {
			for _, b := range candidates {
				dayB := models.AvailabilityDay{BookedSlots: []models.TimeSlot{b.Widen(bb[0], bb[1])}}
				dayA := models.AvailabilityDay{BookedSlots: []models.TimeSlot{a.Widen(bb[0], bb[1])}}

				ab := IsTimeSlotAvailable(a.Start, a.Duration(), dayB, bb[0], bb[1])
				ba := IsTimeSlotAvailable(b.Start, b.Duration(), dayA, bb[0], bb[1])
				assert.Equal(t, ab, ba, "a=%v b=%v buffers=%v", a, b, bb)
			}
		}
	}
}

func TestBuildMonthCalendarCapacity(t *testing.T) {
	month := models.NewDate(2025, 2, 1)
	today := models.NewDate(2025, 2, 10)
	opts := CalendarOptions{CapacityBased: true, MaxCapacity: 3}

	snaps := []models.DaySnapshot{
		{Date: models.NewDate(2025, 2, 5), Capacity: &models.Capacity{Current: 0, Max: 3}},
		{Date: models.NewDate(2025, 2, 11), Capacity: &models.Capacity{Current: 3, Max: 3}},
		{Date: models.NewDate(2025, 2, 12), Capacity: &models.Capacity{Current: 1, Max: 3}},
		{Date: models.NewDate(2025, 2, 13), Capacity: &models.Capacity{Current: 7, Max: 3}},
		{Date: models.NewDate(2025, 2, 14), Blocked: true},
	}

	days := BuildMonthCalendar(month, snaps, today, opts)
	require.Len(t, days, 28)

	byDay := map[int]models.AvailabilityDay{}
	for _, d := range days {
		byDay[d.Date.Day()] = d
		require.NotNil(t, d.Capacity)
		assert.GreaterOrEqual(t, d.Capacity.Remaining, 0)
		assert.LessOrEqual(t, d.Capacity.Remaining, d.Capacity.Max)
	}

	assert.Equal(t, models.DayPast, byDay[5].Status, "past overrides free capacity")
	assert.Equal(t, models.DayPast, byDay[1].Status)
	assert.Equal(t, models.DayAvailable, byDay[10].Status, "today is bookable")

	assert.Equal(t, models.DayUnavailable, byDay[11].Status)
	assert.Equal(t, 0, byDay[11].Capacity.Remaining)

	assert.Equal(t, models.DayPartial, byDay[12].Status)
	assert.Equal(t, 2, byDay[12].Capacity.Remaining)

	assert.Equal(t, models.DayUnavailable, byDay[13].Status)
	assert.Equal(t, 0, byDay[13].Capacity.Remaining)

	assert.Equal(t, models.DayUnavailable, byDay[14].Status)
	assert.Equal(t, models.DayAvailable, byDay[20].Status)
	assert.Equal(t, 3, byDay[20].Capacity.Remaining)
}

func TestBuildMonthCalendarExclusive(t *testing.T) {
	month := models.NewDate(2025, 4, 15)
	today := models.NewDate(2025, 4, 1)
	opts := CalendarOptions{
		WorkingWindow: slot("09:00", "12:00"),
		SlotDuration:  60,
		SlotStep:      60,
	}

	snaps := []models.DaySnapshot{
		{Date: models.NewDate(2025, 4, 2), BookedSlots: []models.TimeSlot{slot("10:00", "11:00")}},
		{Date: models.NewDate(2025, 4, 3), BookedSlots: []models.TimeSlot{slot("09:00", "12:00")}},
		{Date: models.NewDate(2025, 4, 4), TimeSlots: []models.TimeSlot{slot("09:00", "10:00")}},
		{Date: models.NewDate(2025, 4, 5), TimeSlots: []models.TimeSlot{slot("13:00", "14:00")}},
	}

	days := BuildMonthCalendar(month, snaps, today, opts)
	require.Len(t, days, 30)
	assert.Equal(t, "2025-04-01", days[0].Date.String())
	assert.Equal(t, "2025-04-30", days[29].Date.String())

	assert.Equal(t, models.DayAvailable, days[0].Status)
	assert.Equal(t, models.DayPartial, days[1].Status)
	assert.Equal(t, models.DayUnavailable, days[2].Status)
	assert.Equal(t, models.DayPartial, days[3].Status)
	assert.Equal(t, models.DayUnavailable, days[4].Status)
	assert.Nil(t, days[0].Capacity)
	assert.Equal(t, snaps[0].BookedSlots, days[1].BookedSlots)
}

func TestBuildMonthCalendarDurationLongerThanWindow(t *testing.T) {
	opts := CalendarOptions{WorkingWindow: slot("09:00", "10:00"), SlotDuration: 90}
	days := BuildMonthCalendar(models.NewDate(2025, 4, 1), nil, models.NewDate(2025, 4, 1), opts)
	assert.Equal(t, models.DayUnavailable, days[0].Status)
}

func TestCandidateAndFreeStarts(t *testing.T) {
	opts := CalendarOptions{WorkingWindow: slot("09:00", "11:00"), SlotDuration: 60, SlotStep: 30}
	assert.Equal(t, []models.ClockTime{ct("09:00"), ct("09:30"), ct("10:00")}, CandidateStarts(opts))

	day := models.AvailabilityDay{Status: models.DayPartial, BookedSlots: []models.TimeSlot{slot("10:30", "11:00")}}
	assert.Equal(t, []models.ClockTime{ct("09:00"), ct("09:30")}, FreeStarts(day, opts))

	day.Status = models.DayPast
	assert.Nil(t, FreeStarts(day, opts))
}

func TestValidateDate(t *testing.T) {
	today := models.NewDate(2025, 5, 10)

	assert.NoError(t, ValidateDate(today, today, 30))
	assert.ErrorIs(t, ValidateDate(today.AddDays(-1), today, 30), ErrPastDate)
	assert.ErrorIs(t, ValidateDate(today.AddDays(31), today, 30), ErrDateTooFar)
	assert.NoError(t, ValidateDate(today.AddDays(400), today, 0))
}

func exclusiveService() models.ServiceConfig {
	return models.ServiceConfig{
		DayStartTime: ct("08:00"),
		DayEndTime:   ct("20:00"),
	}
}

func TestOccupation(t *testing.T) {
	svc := exclusiveService()
	start := models.NewDate(2025, 6, 2)

	t.Run("SingleDayWithTimes", func(t *testing.T) {
		s, e := ct("09:00"), ct("11:00")
		occ, err := Occupation(models.BookingRequest{StartDate: start, StartTime: &s, EndTime: &e}, svc, models.ServiceVariant{})
		require.NoError(t, err)
		require.Len(t, occ, 1)
		assert.Equal(t, slot("09:00", "11:00"), occ[0].Slot)
	})

	t.Run("SingleDayWholeWindow", func(t *testing.T) {
		occ, err := Occupation(models.BookingRequest{StartDate: start}, svc, models.ServiceVariant{})
		require.NoError(t, err)
		assert.Equal(t, slot("08:00", "20:00"), occ[0].Slot)
	})

	t.Run("OnlyOneTime", func(t *testing.T) {
		s := ct("09:00")
		_, err := Occupation(models.BookingRequest{StartDate: start, StartTime: &s}, svc, models.ServiceVariant{})
		assert.ErrorIs(t, err, ErrInvalidTimeRange)
	})

	t.Run("InvertedTimes", func(t *testing.T) {
		s, e := ct("12:00"), ct("11:00")
		_, err := Occupation(models.BookingRequest{StartDate: start, StartTime: &s, EndTime: &e}, svc, models.ServiceVariant{})
		assert.ErrorIs(t, err, ErrInvalidTimeRange)
	})

	t.Run("OutsideWorkingHours", func(t *testing.T) {
		s, e := ct("07:00"), ct("09:00")
		_, err := Occupation(models.BookingRequest{StartDate: start, StartTime: &s, EndTime: &e}, svc, models.ServiceVariant{})
		assert.ErrorIs(t, err, ErrOutsideWorkingHours)
	})

	t.Run("MultiDay", func(t *testing.T) {
		s, e := ct("14:00"), ct("12:00")
		end := start.AddDays(2)
		occ, err := Occupation(models.BookingRequest{StartDate: start, EndDate: &end, StartTime: &s, EndTime: &e}, svc, models.ServiceVariant{})
		require.NoError(t, err)
		require.Len(t, occ, 3)
		assert.Equal(t, slot("14:00", "20:00"), occ[0].Slot)
		assert.Equal(t, slot("08:00", "20:00"), occ[1].Slot)
		assert.Equal(t, slot("08:00", "12:00"), occ[2].Slot)
		assert.Equal(t, start.AddDays(2), occ[2].Date)
	})

	t.Run("MultiDayLateStart", func(t *testing.T) {
		s := ct("21:00")
		end := start.AddDays(1)
		_, err := Occupation(models.BookingRequest{StartDate: start, EndDate: &end, StartTime: &s}, svc, models.ServiceVariant{})
		assert.Error(t, err)
	})

	t.Run("EndBeforeStart", func(t *testing.T) {
		end := start.AddDays(-1)
		_, err := Occupation(models.BookingRequest{StartDate: start, EndDate: &end}, svc, models.ServiceVariant{})
		assert.ErrorIs(t, err, ErrInvalidTimeRange)
	})

	t.Run("DurationBased", func(t *testing.T) {
		fixed := svc
		fixed.EnableDurationBasedBlocking = true
		d := 45
		s, e := ct("10:00"), ct("18:00")
		occ, err := Occupation(models.BookingRequest{StartDate: start, StartTime: &s, EndTime: &e}, fixed, models.ServiceVariant{Duration: &d})
		require.NoError(t, err)
		assert.Equal(t, slot("10:00", "10:45"), occ[0].Slot)

		_, err = Occupation(models.BookingRequest{StartDate: start}, fixed, models.ServiceVariant{Duration: &d})
		assert.ErrorIs(t, err, ErrInvalidTimeRange)
	})
}

func TestSessionOccupation(t *testing.T) {
	svc := exclusiveService()
	s := models.SessionRequest{Date: models.NewDate(2025, 6, 2), StartTime: ct("10:00"), EndTime: ct("11:00")}

	occ, err := SessionOccupation(s, svc, models.ServiceVariant{})
	require.NoError(t, err)
	assert.Equal(t, slot("10:00", "11:00"), occ.Slot)

	s.EndTime = ct("09:00")
	_, err = SessionOccupation(s, svc, models.ServiceVariant{})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestCheckOccupation(t *testing.T) {
	date := models.NewDate(2025, 6, 2)
	occ := DayOccupation{Date: date, Slot: slot("10:00", "11:00")}

	t.Run("Exclusive", func(t *testing.T) {
		opts := CalendarOptions{BufferAfter: 15}
		free := models.DaySnapshot{Date: date, BookedSlots: []models.TimeSlot{slot("12:00", "13:00")}}
		assert.NoError(t, CheckOccupation(free, occ, 1, opts))

		taken := models.DaySnapshot{Date: date, BookedSlots: []models.TimeSlot{slot("11:00", "12:00")}}
		assert.ErrorIs(t, CheckOccupation(taken, occ, 1, opts), ErrSlotConflict)

		blocked := models.DaySnapshot{Date: date, Blocked: true}
		assert.ErrorIs(t, CheckOccupation(blocked, occ, 1, opts), ErrDayUnavailable)
	})

	t.Run("Capacity", func(t *testing.T) {
		opts := CalendarOptions{CapacityBased: true, MaxCapacity: 3}
		snap := models.DaySnapshot{Date: date, Capacity: &models.Capacity{Current: 1, Max: 3}}
		assert.NoError(t, CheckOccupation(snap, occ, 2, opts))
		assert.ErrorIs(t, CheckOccupation(snap, occ, 3, opts), ErrCapacityExhausted)
	})
}

func TestBookedSlot(t *testing.T) {
	occ := DayOccupation{Slot: slot("10:00", "11:00")}
	assert.Equal(t, slot("09:45", "11:30"), BookedSlot(occ, 15, 30))
}

func TestOptionsFor(t *testing.T) {
	d := 60
	svc := models.ServiceConfig{
		DayStartTime:                ct("09:00"),
		DayEndTime:                  ct("17:00"),
		EnableDurationBasedBlocking: true,
		IsCapacityBased:             true,
		MaxAnimalsPerSlot:           4,
		BufferBefore:                10,
		BufferAfter:                 20,
	}
	opts := OptionsFor(svc, models.ServiceVariant{Duration: &d}, 15)

	assert.True(t, opts.CapacityBased)
	assert.Equal(t, 4, opts.MaxCapacity)
	assert.Equal(t, 60, opts.SlotDuration)
	assert.Equal(t, 15, opts.SlotStep)
	assert.Equal(t, slot("09:00", "17:00"), opts.WorkingWindow)
	assert.Equal(t, 10, opts.BufferBefore)
	assert.Equal(t, 20, opts.BufferAfter)
}
