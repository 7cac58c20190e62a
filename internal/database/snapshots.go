package database

import (
	"context"
	"fmt"

	"gardiens/internal/models"

	"github.com/Masterminds/squirrel"
)

// GetMonthSnapshots aggregates what the calendar builder needs for every day
// in [from, to]: blocked flag, published windows, slots held by active
// bookings (buffers included) and head count against MaxAnimalsPerSlot.
func (db *DB) GetMonthSnapshots(ctx context.Context, svc *models.ServiceConfig, from, to models.Date) ([]models.DaySnapshot, error) {
	return loadSnapshots(ctx, db, svc, from, to)
}

func loadSnapshots(ctx context.Context, ex executor, svc *models.ServiceConfig, from, to models.Date) ([]models.DaySnapshot, error) {
	if to.Before(from) {
		return nil, nil
	}

	days := make(map[string]*models.DaySnapshot)
	var out []models.DaySnapshot
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, models.DaySnapshot{Date: d})
	}
	for i := range out {
		days[out[i].Date.String()] = &out[i]
	}

	inRange := squirrel.And{
		squirrel.Eq{"service_id": svc.ID},
		squirrel.GtOrEq{"date": from.String()},
		squirrel.LtOrEq{"date": to.String()},
	}

	if err := loadBlocked(ctx, ex, inRange, days); err != nil {
		return nil, err
	}
	if err := loadWindows(ctx, ex, inRange, days); err != nil {
		return nil, err
	}
	heads, err := loadHeld(ctx, ex, svc.ID, from, to, days)
	if err != nil {
		return nil, err
	}

	if svc.IsCapacityBased {
		for i := range out {
			capacity := models.NewCapacity(heads[out[i].Date.String()], svc.MaxAnimalsPerSlot)
			out[i].Capacity = &capacity
		}
	}
	return out, nil
}

func loadBlocked(ctx context.Context, ex executor, where squirrel.Sqlizer, days map[string]*models.DaySnapshot) error {
	query, args, err := squirrel.Select("date").From("blocked_days").Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("%w: blocked days: %v", errBuildQuery, err)
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to get blocked days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return fmt.Errorf("failed to scan blocked day: %w", err)
		}
		if d, ok := days[date]; ok {
			d.Blocked = true
		}
	}
	return rows.Err()
}

func loadWindows(ctx context.Context, ex executor, where squirrel.Sqlizer, days map[string]*models.DaySnapshot) error {
	query, args, err := squirrel.Select("date", "start_minute", "end_minute").
		From("availability_windows").
		Where(where).
		OrderBy("date", "start_minute").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: windows: %v", errBuildQuery, err)
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to get availability windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date string
		var start, end int
		if err := rows.Scan(&date, &start, &end); err != nil {
			return fmt.Errorf("failed to scan window: %w", err)
		}
		if d, ok := days[date]; ok {
			d.TimeSlots = append(d.TimeSlots, models.TimeSlot{Start: models.ClockTime(start), End: models.ClockTime(end)})
		}
	}
	return rows.Err()
}

// loadHeld fills BookedSlots and returns the head count per day.
func loadHeld(ctx context.Context, ex executor, serviceID int64, from, to models.Date, days map[string]*models.DaySnapshot) (map[string]int, error) {
	query, args, err := squirrel.Select("bd.date", "bd.held_start", "bd.held_end", "bd.participants").
		From("booking_days bd").
		Join("bookings b ON b.id = bd.booking_id").
		Where(squirrel.And{
			squirrel.Eq{"bd.service_id": serviceID},
			squirrel.GtOrEq{"bd.date": from.String()},
			squirrel.LtOrEq{"bd.date": to.String()},
			squirrel.Eq{"b.status": models.ActiveStatuses},
		}).
		OrderBy("bd.date", "bd.held_start").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: held slots: %v", errBuildQuery, err)
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get held slots: %w", err)
	}
	defer rows.Close()

	heads := make(map[string]int)
	for rows.Next() {
		var date string
		var start, end, participants int
		if err := rows.Scan(&date, &start, &end, &participants); err != nil {
			return nil, fmt.Errorf("failed to scan held slot: %w", err)
		}
		heads[date] += participants
		if d, ok := days[date]; ok {
			d.BookedSlots = append(d.BookedSlots, models.TimeSlot{Start: models.ClockTime(start), End: models.ClockTime(end)})
		}
	}
	return heads, rows.Err()
}
