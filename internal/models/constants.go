package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// ActiveStatuses are the booking statuses that occupy the calendar.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

const (
	// DefaultWorkdayHours is the length of a billable full day.
	DefaultWorkdayHours = 8

	// DefaultSlotStepMinutes is the spacing of candidate starts when probing a day.
	DefaultSlotStepMinutes = 30

	// DefaultMaxBookingDays limits how far ahead a booking may start.
	DefaultMaxBookingDays = 365

	// DefaultDraftTTL is how long an abandoned wizard draft is kept, in minutes.
	DefaultDraftTTL = 24 * 60

	// RateLimitRequests is the number of draft writes allowed per window.
	RateLimitRequests = 30

	// RateLimitWindow is the draft rate limit window in seconds.
	RateLimitWindow = 60
)
