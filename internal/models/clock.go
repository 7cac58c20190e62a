package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the upper bound of a ClockTime; 24:00 marks the end of a day.
const MinutesPerDay = 24 * 60

var ErrInvalidClockTime = errors.New("invalid clock time, expected HH:MM")

// ClockTime is a wall-clock time of day stored as minutes since midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses "HH:MM". "24:00" is accepted as end of day.
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}

	if hour < 0 || minute < 0 || minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}

	return NewClockTime(hour, minute), nil
}

// MustClockTime is ParseClockTime for literals known to be valid.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Minutes() int { return int(c) }

func (c ClockTime) Hours() float64 { return float64(c) / 60 }

func (c ClockTime) Add(minutes int) ClockTime { return c + ClockTime(minutes) }

// Clamp bounds the value to [00:00, 24:00].
func (c ClockTime) Clamp() ClockTime {
	if c < 0 {
		return 0
	}
	if c > MinutesPerDay {
		return MinutesPerDay
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On places the clock time on the given date.
func (c ClockTime) On(d Date) time.Time {
	return d.Time.Add(time.Duration(c) * time.Minute)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c ClockTime) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeSlot is a half-open interval [Start, End) within one day.
type TimeSlot struct {
	Start ClockTime `json:"start" yaml:"start"`
	End   ClockTime `json:"end" yaml:"end"`
}

func (s TimeSlot) Duration() int { return int(s.End - s.Start) }

// Overlaps uses strict comparison so back-to-back intervals do not conflict.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start < other.End && s.End > other.Start
}

// Contains reports whether other lies fully inside s.
func (s TimeSlot) Contains(other TimeSlot) bool {
	return other.Start >= s.Start && other.End <= s.End
}

// Widen applies preparation buffers on both sides, clamped to the day.
func (s TimeSlot) Widen(before, after int) TimeSlot {
	return TimeSlot{
		Start: s.Start.Add(-before).Clamp(),
		End:   s.End.Add(after).Clamp(),
	}
}
