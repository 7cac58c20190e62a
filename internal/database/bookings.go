package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gardiens/internal/availability"
	"gardiens/internal/models"

	"github.com/Masterminds/squirrel"
)

var bookingColumns = []string{
	"id", "reference", "user_id", "service_id", "variant_id", "start_date", "end_date",
	"start_minute", "end_minute", "participants", "calculated_amount", "overnight_nights",
	"overnight_amount", "option_ids", "sessions", "slot_ids", "location", "status",
	"created_at", "updated_at", "version",
}

// CreateBookingWithLock commits a booking after re-checking availability
// inside the write transaction.
//
// Collective bookings decrement the spots of each chosen slot. Every other
// booking rebuilds the snapshot of each occupied day and runs the same rule
// the quote path used; a failure on any day returns ErrSlotTaken wrapping
// the reason.
func (db *DB) CreateBookingWithLock(
	ctx context.Context,
	booking *models.Booking,
	svc *models.ServiceConfig,
	occupation []availability.DayOccupation,
	opts availability.CalendarOptions,
) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		participants := booking.Participants
		if participants < 1 {
			participants = 1
		}

		if len(booking.SlotIDs) > 0 {
			if err := takeCollectiveSpots(ctx, tx, booking.SlotIDs, participants); err != nil {
				return err
			}
		} else if err := recheckOccupation(ctx, tx, svc, occupation, participants, opts); err != nil {
			return err
		}

		if err := insertBooking(ctx, tx, booking); err != nil {
			return err
		}

		for _, occ := range occupation {
			held := availability.BookedSlot(occ, opts.BufferBefore, opts.BufferAfter)
			query, args, err := squirrel.Insert("booking_days").
				Columns("booking_id", "service_id", "date", "held_start", "held_end", "participants").
				Values(booking.ID, svc.ID, occ.Date.String(), held.Start.Minutes(), held.End.Minutes(), participants).
				ToSql()
			if err != nil {
				return fmt.Errorf("%w: booking day: %v", errBuildQuery, err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert booking day: %w", err)
			}
		}
		return nil
	})
}

func recheckOccupation(
	ctx context.Context,
	tx *sql.Tx,
	svc *models.ServiceConfig,
	occupation []availability.DayOccupation,
	participants int,
	opts availability.CalendarOptions,
) error {
	if len(occupation) == 0 {
		return nil
	}
	from, to := occupation[0].Date, occupation[0].Date
	for _, occ := range occupation[1:] {
		if occ.Date.Before(from) {
			from = occ.Date
		}
		if occ.Date.After(to) {
			to = occ.Date
		}
	}

	snaps, err := loadSnapshots(ctx, tx, svc, from, to)
	if err != nil {
		return err
	}
	byDate := make(map[string]*models.DaySnapshot, len(snaps))
	for i := range snaps {
		byDate[snaps[i].Date.String()] = &snaps[i]
	}

	for _, occ := range occupation {
		snap := byDate[occ.Date.String()]
		if err := availability.CheckOccupation(*snap, occ, participants, opts); err != nil {
			return fmt.Errorf("%w: %w", ErrSlotTaken, err)
		}
		// later occurrences of the same booking on this day see this one
		snap.BookedSlots = append(snap.BookedSlots, availability.BookedSlot(occ, opts.BufferBefore, opts.BufferAfter))
		if snap.Capacity != nil {
			c := models.NewCapacity(snap.Capacity.Current+participants, snap.Capacity.Max)
			snap.Capacity = &c
		}
	}
	return nil
}

func takeCollectiveSpots(ctx context.Context, tx *sql.Tx, slotIDs []int64, participants int) error {
	for _, id := range slotIDs {
		query, args, err := squirrel.Update("collective_slots").
			Set("available_spots", squirrel.Expr("available_spots - ?", participants)).
			Where(squirrel.Eq{"id": id}).
			Where(squirrel.GtOrEq{"available_spots": participants}).
			ToSql()
		if err != nil {
			return fmt.Errorf("%w: take spots: %v", errBuildQuery, err)
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to take collective spots: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: collective slot %d has fewer than %d spots", ErrSlotTaken, id, participants)
		}
	}
	return nil
}

func insertBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) error {
	optionIDs, err := json.Marshal(nonNil(b.OptionIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal option ids: %w", err)
	}
	sessions, err := json.Marshal(b.Sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	slotIDs, err := json.Marshal(nonNil(b.SlotIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal slot ids: %w", err)
	}
	if b.Status == "" {
		b.Status = models.StatusPending
	}

	now := time.Now().UTC()
	query, args, err := squirrel.Insert("bookings").
		Columns(bookingColumns[1:]...).
		Values(
			b.Reference, b.UserID, b.ServiceID, b.VariantID, b.StartDate.String(), b.EndDate.String(),
			clockValue(b.StartTime), clockValue(b.EndTime), b.Participants, b.CalculatedAmount,
			b.OvernightNights, b.OvernightAmount, string(optionIDs), string(sessions), string(slotIDs),
			b.Location, b.Status, now, now, 1,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: booking: %v", errBuildQuery, err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func clockValue(c *models.ClockTime) any {
	if c == nil {
		return nil
	}
	return c.Minutes()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, ex executor, id int64) (*models.Booking, error) {
	bookings, err := queryBookings(ctx, ex, squirrel.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return bookings[0], nil
}

// ListBookings returns the service's bookings overlapping [from, to].
func (db *DB) ListBookings(ctx context.Context, serviceID int64, from, to models.Date) ([]*models.Booking, error) {
	return queryBookings(ctx, db, squirrel.And{
		squirrel.Eq{"service_id": serviceID},
		squirrel.LtOrEq{"start_date": to.String()},
		squirrel.GtOrEq{"end_date": from.String()},
	})
}

// CancelBooking moves an active booking to cancelled if version still
// matches, releasing its calendar time and any collective spots.
func (db *DB) CancelBooking(ctx context.Context, id, version int64) (*models.Booking, error) {
	var cancelled *models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if !b.Occupies() {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, id, b.Status)
		}

		now := time.Now().UTC()
		query, args, err := squirrel.Update("bookings").
			Set("status", models.StatusCancelled).
			Set("version", squirrel.Expr("version + 1")).
			Set("updated_at", now).
			Where(squirrel.Eq{"id": id, "version": version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("%w: cancel: %v", errBuildQuery, err)
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrConcurrentModification
		}

		participants := b.Participants
		if participants < 1 {
			participants = 1
		}
		for _, slotID := range b.SlotIDs {
			query, args, err := squirrel.Update("collective_slots").
				Set("available_spots", squirrel.Expr("MIN(total_spots, available_spots + ?)", participants)).
				Where(squirrel.Eq{"id": slotID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("%w: release spots: %v", errBuildQuery, err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to release collective spots: %w", err)
			}
		}

		b.Status = models.StatusCancelled
		b.Version++
		b.UpdatedAt = now
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func queryBookings(ctx context.Context, ex executor, where squirrel.Sqlizer) ([]*models.Booking, error) {
	query, args, err := squirrel.Select(bookingColumns...).
		From("bookings").
		Where(where).
		OrderBy("start_date", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: bookings: %v", errBuildQuery, err)
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(rows *sql.Rows) (*models.Booking, error) {
	var b models.Booking
	var startDate, endDate, optionIDs, sessions, slotIDs string
	var startMinute, endMinute sql.NullInt64
	err := rows.Scan(
		&b.ID, &b.Reference, &b.UserID, &b.ServiceID, &b.VariantID, &startDate, &endDate,
		&startMinute, &endMinute, &b.Participants, &b.CalculatedAmount, &b.OvernightNights,
		&b.OvernightAmount, &optionIDs, &sessions, &slotIDs, &b.Location, &b.Status,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if b.StartDate, err = models.ParseDate(startDate); err != nil {
		return nil, err
	}
	if b.EndDate, err = models.ParseDate(endDate); err != nil {
		return nil, err
	}
	b.StartTime = nullClock(startMinute)
	b.EndTime = nullClock(endMinute)

	for _, field := range []struct {
		raw string
		dst any
	}{{optionIDs, &b.OptionIDs}, {sessions, &b.Sessions}, {slotIDs, &b.SlotIDs}} {
		if err := json.Unmarshal([]byte(field.raw), field.dst); err != nil {
			return nil, fmt.Errorf("booking %d: %w", b.ID, err)
		}
	}
	return &b, nil
}

func nullClock(v sql.NullInt64) *models.ClockTime {
	if !v.Valid {
		return nil
	}
	c := models.ClockTime(v.Int64)
	return &c
}

