package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "08:00", want: 480},
		{in: "8:30", want: 510},
		{in: "20:15", want: 1215},
		{in: "24:00", want: MinutesPerDay},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClockTime(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidClockTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockTimeJSON(t *testing.T) {
	type payload struct {
		At ClockTime `json:"at"`
	}

	raw, err := json.Marshal(payload{At: NewClockTime(9, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"09:05"}`, string(raw))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"at":"14:30"}`), &p))
	assert.Equal(t, NewClockTime(14, 30), p.At)

	assert.Error(t, json.Unmarshal([]byte(`{"at":"25:00"}`), &p))
}

func TestTimeSlot(t *testing.T) {
	morning := TimeSlot{Start: MustClockTime("09:00"), End: MustClockTime("10:00")}
	next := TimeSlot{Start: MustClockTime("10:00"), End: MustClockTime("11:00")}
	inside := TimeSlot{Start: MustClockTime("09:15"), End: MustClockTime("09:45")}

	assert.False(t, morning.Overlaps(next), "adjacent slots must not overlap")
	assert.False(t, next.Overlaps(morning))
	assert.True(t, morning.Overlaps(inside))
	assert.True(t, morning.Contains(inside))
	assert.False(t, inside.Contains(morning))

	widened := morning.Widen(30, 15)
	assert.Equal(t, MustClockTime("08:30"), widened.Start)
	assert.Equal(t, MustClockTime("10:15"), widened.End)

	edge := TimeSlot{Start: MustClockTime("00:10"), End: MustClockTime("23:50")}.Widen(30, 30)
	assert.Equal(t, ClockTime(0), edge.Start)
	assert.Equal(t, ClockTime(MinutesPerDay), edge.End)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-30")
	require.NoError(t, err)

	assert.Equal(t, "2025-03-31", d.AddDays(1).String())
	assert.Equal(t, 3, d.DaysUntil(NewDate(2025, 4, 2)))
	assert.Equal(t, "2025-03-01", d.MonthStart().String())
	assert.True(t, d.Before(d.AddDays(1)))

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-30"`, string(raw))

	var back Date
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Equal(d))

	_, err = ParseDate("30/03/2025")
	assert.Error(t, err)
}

func TestNewCapacity(t *testing.T) {
	assert.Equal(t, Capacity{Current: 1, Max: 3, Remaining: 2}, NewCapacity(1, 3))
	assert.Equal(t, 0, NewCapacity(5, 3).Remaining)
	assert.Equal(t, 3, NewCapacity(-2, 3).Remaining)
	assert.Equal(t, 0, NewCapacity(0, -1).Remaining)
}

func TestBookingRequestDays(t *testing.T) {
	start := NewDate(2025, 6, 1)
	req := BookingRequest{StartDate: start}
	assert.Equal(t, 1, req.TotalDays())
	assert.False(t, req.IsMultiDay())
	assert.Equal(t, 1, req.ParticipantCount())

	end := start.AddDays(3)
	req.EndDate = &end
	assert.Equal(t, 4, req.TotalDays())
	assert.True(t, req.IsMultiDay())
}

func TestServiceConfigOptionsTotal(t *testing.T) {
	svc := ServiceConfig{Options: []ServiceOption{{ID: 1, Price: 500}, {ID: 2, Price: 250}}}

	total, unknown := svc.OptionsTotal([]int64{1, 2})
	assert.Equal(t, int64(750), total)
	assert.Empty(t, unknown)

	total, unknown = svc.OptionsTotal([]int64{2, 9})
	assert.Equal(t, int64(250), total)
	assert.Equal(t, []int64{9}, unknown)
}

func TestServiceVariantHelpers(t *testing.T) {
	v := ServiceVariant{}
	assert.Equal(t, 1, v.Sessions())
	assert.False(t, v.IsMultiUnit())
	assert.Equal(t, 0, v.DurationMinutes())

	v.NumberOfSessions = 3
	assert.True(t, v.IsMultiUnit())

	v = ServiceVariant{SessionType: SessionTypeCollective}
	assert.True(t, v.IsMultiUnit())
}
