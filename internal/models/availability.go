package models

// Day statuses produced by the calendar builder.
const (
	DayAvailable   = "available"
	DayPartial     = "partial"
	DayUnavailable = "unavailable"
	DayPast        = "past"
)

// Capacity tracks head count for capacity-based services.
// Remaining is always Max - Current, bounded to [0, Max].
type Capacity struct {
	Current   int `json:"current"`
	Max       int `json:"max"`
	Remaining int `json:"remaining"`
}

// NewCapacity builds a Capacity with a bounded Remaining.
func NewCapacity(current, max int) Capacity {
	if max < 0 {
		max = 0
	}
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	if remaining > max {
		remaining = max
	}
	return Capacity{Current: current, Max: max, Remaining: remaining}
}

// DaySnapshot is the pre-aggregated storage view of one day.
// BookedSlots already include the buffers of the bookings they represent.
type DaySnapshot struct {
	Date        Date       `json:"date"`
	Blocked     bool       `json:"blocked"`
	Capacity    *Capacity  `json:"capacity,omitempty"`
	TimeSlots   []TimeSlot `json:"time_slots,omitempty"`
	BookedSlots []TimeSlot `json:"booked_slots,omitempty"`
}

// AvailabilityDay is one classified calendar cell.
type AvailabilityDay struct {
	Date        Date       `json:"date"`
	Status      string     `json:"status"`
	Capacity    *Capacity  `json:"capacity,omitempty"`
	TimeSlots   []TimeSlot `json:"time_slots,omitempty"`
	BookedSlots []TimeSlot `json:"booked_slots,omitempty"`
}

// Bookable reports whether the day can still take a booking.
func (d AvailabilityDay) Bookable() bool {
	return d.Status == DayAvailable || d.Status == DayPartial
}
