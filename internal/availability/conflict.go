package availability

import "gardiens/internal/models"

// IsTimeSlotAvailable decides whether a candidate of durationMinutes starting
// at start can be booked on day.
//
// The candidate is widened by the preparation buffers. If the day publishes
// partial time slots the widened interval must fit entirely inside one of
// them. It must not overlap any booked slot; booked slots already carry the
// buffers of their own bookings. Touching intervals do not overlap.
//
// The commit transaction calls this same function.
func IsTimeSlotAvailable(start models.ClockTime, durationMinutes int, day models.AvailabilityDay, bufferBefore, bufferAfter int) bool {
	if durationMinutes <= 0 {
		return false
	}
	candidate := models.TimeSlot{Start: start, End: start.Add(durationMinutes)}
	return slotFits(candidate, day.TimeSlots, day.BookedSlots, bufferBefore, bufferAfter)
}

func slotFits(candidate models.TimeSlot, windows, booked []models.TimeSlot, bufferBefore, bufferAfter int) bool {
	effective := candidate.Widen(bufferBefore, bufferAfter)

	if len(windows) > 0 {
		inside := false
		for _, w := range windows {
			if w.Contains(effective) {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}

	for _, b := range booked {
		if effective.Overlaps(b) {
			return false
		}
	}
	return true
}

// dayView adapts a storage snapshot to the shape the checker reads.
func dayView(s models.DaySnapshot) models.AvailabilityDay {
	return models.AvailabilityDay{
		Date:        s.Date,
		TimeSlots:   s.TimeSlots,
		BookedSlots: s.BookedSlots,
	}
}
