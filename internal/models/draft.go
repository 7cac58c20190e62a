package models

import "time"

// Wizard steps a draft can be parked at.
const (
	StepSelectVariant = "select_variant"
	StepSelectDates   = "select_dates"
	StepSelectTimes   = "select_times"
	StepSelectOptions = "select_options"
	StepRecap         = "recap"
)

// BookingDraft is an in-progress wizard selection. Nothing about it is
// authoritative; it may be dropped at any time.
type BookingDraft struct {
	ID        string         `json:"id"`
	UserID    int64          `json:"user_id"`
	Step      string         `json:"step"`
	Request   BookingRequest `json:"request"`
	UpdatedAt time.Time      `json:"updated_at"`
}
