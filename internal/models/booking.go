package models

import "time"

// SessionRequest is one independently scheduled occurrence.
type SessionRequest struct {
	Date      Date      `json:"date"`
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
}

func (s SessionRequest) Slot() TimeSlot {
	return TimeSlot{Start: s.StartTime, End: s.EndTime}
}

// BookingRequest is the wizard selection handed to the engine.
type BookingRequest struct {
	ServiceID            int64            `json:"service_id"`
	VariantID            int64            `json:"variant_id"`
	StartDate            Date             `json:"start_date"`
	EndDate              *Date            `json:"end_date,omitempty"`
	StartTime            *ClockTime       `json:"start_time,omitempty"`
	EndTime              *ClockTime       `json:"end_time,omitempty"`
	IncludeOvernightStay bool             `json:"include_overnight_stay"`
	OptionIDs            []int64          `json:"option_ids,omitempty"`
	Participants         int              `json:"participants,omitempty"`
	Sessions             []SessionRequest `json:"sessions,omitempty"`
	SlotIDs              []int64          `json:"slot_ids,omitempty"`
	Location             string           `json:"location,omitempty"`
}

// LastDate returns EndDate, or StartDate for single-day requests.
func (r BookingRequest) LastDate() Date {
	if r.EndDate == nil {
		return r.StartDate
	}
	return *r.EndDate
}

// TotalDays counts calendar days in the range, both ends included.
func (r BookingRequest) TotalDays() int {
	return r.StartDate.DaysUntil(r.LastDate()) + 1
}

func (r BookingRequest) IsMultiDay() bool {
	return r.TotalDays() > 1
}

func (r BookingRequest) ParticipantCount() int {
	if r.Participants < 1 {
		return 1
	}
	return r.Participants
}

// PriceBreakdown is the itemised quote. For date-range formulas
// TotalAmount = FirstDayAmount + FullDaysAmount + LastDayAmount + NightsAmount + OptionsAmount.
// For multi-unit formulas TotalAmount = SessionsAmount + OptionsAmount.
type PriceBreakdown struct {
	FirstDayAmount    int64   `json:"first_day_amount"`
	FirstDayHours     float64 `json:"first_day_hours"`
	FirstDayIsFullDay bool    `json:"first_day_is_full_day"`
	FullDays          int     `json:"full_days"`
	FullDaysAmount    int64   `json:"full_days_amount"`
	LastDayAmount     int64   `json:"last_day_amount"`
	LastDayHours      float64 `json:"last_day_hours"`
	LastDayIsFullDay  bool    `json:"last_day_is_full_day"`
	NightsAmount      int64   `json:"nights_amount"`
	Nights            int     `json:"nights"`
	OptionsAmount     int64   `json:"options_amount"`
	TotalAmount       int64   `json:"total_amount"`

	HourlyRate  int64 `json:"hourly_rate"`
	DailyRate   int64 `json:"daily_rate"`
	NightlyRate int64 `json:"nightly_rate"`

	UnitPrice      int64 `json:"unit_price,omitempty"`
	Occurrences    int   `json:"occurrences,omitempty"`
	Participants   int   `json:"participants,omitempty"`
	SessionsAmount int64 `json:"sessions_amount,omitempty"`
}

// Booking is the committed reservation record.
type Booking struct {
	ID               int64            `json:"id"`
	Reference        string           `json:"reference"`
	UserID           int64            `json:"user_id"`
	ServiceID        int64            `json:"service_id"`
	VariantID        int64            `json:"variant_id"`
	StartDate        Date             `json:"start_date"`
	EndDate          Date             `json:"end_date"`
	StartTime        *ClockTime       `json:"start_time,omitempty"`
	EndTime          *ClockTime       `json:"end_time,omitempty"`
	Participants     int              `json:"participants"`
	CalculatedAmount int64            `json:"calculated_amount"`
	OvernightNights  int              `json:"overnight_nights"`
	OvernightAmount  int64            `json:"overnight_amount"`
	OptionIDs        []int64          `json:"option_ids,omitempty"`
	Sessions         []SessionRequest `json:"sessions,omitempty"`
	SlotIDs          []int64          `json:"slot_ids,omitempty"`
	Location         string           `json:"location,omitempty"`
	Status           string           `json:"status"` // pending, confirmed, cancelled, completed
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Version          int64            `json:"version"`
}

// Occupies reports whether the booking still holds calendar time.
func (b Booking) Occupies() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}
