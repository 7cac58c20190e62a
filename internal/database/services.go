package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gardiens/internal/models"

	"github.com/Masterminds/squirrel"
)

var serviceColumns = []string{
	"id", "announcer_id", "name", "category", "day_start", "day_end",
	"allow_overnight", "overnight_price", "duration_blocking", "capacity_based",
	"max_per_slot", "buffer_before", "buffer_after",
}

// SaveService inserts or replaces a service with its variants and options.
// Zero ids are assigned by the database and written back.
func (db *DB) SaveService(ctx context.Context, svc *models.ServiceConfig) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		id, err := upsert(ctx, tx, "services", svc.ID, map[string]any{
			"announcer_id":      svc.AnnouncerID,
			"name":              svc.Name,
			"category":          svc.Category,
			"day_start":         svc.DayStartTime.Minutes(),
			"day_end":           svc.DayEndTime.Minutes(),
			"allow_overnight":   svc.AllowOvernightStay,
			"overnight_price":   svc.OvernightPrice,
			"duration_blocking": svc.EnableDurationBasedBlocking,
			"capacity_based":    svc.IsCapacityBased,
			"max_per_slot":      svc.MaxAnimalsPerSlot,
			"buffer_before":     svc.BufferBefore,
			"buffer_after":      svc.BufferAfter,
		})
		if err != nil {
			return fmt.Errorf("failed to save service: %w", err)
		}
		svc.ID = id

		for i := range svc.Variants {
			v := &svc.Variants[i]
			v.ServiceID = id
			pricing, err := json.Marshal(v.Pricing)
			if err != nil {
				return fmt.Errorf("failed to marshal pricing: %w", err)
			}
			features, err := json.Marshal(v.IncludedFeatures)
			if err != nil {
				return fmt.Errorf("failed to marshal features: %w", err)
			}
			var duration any
			if v.Duration != nil {
				duration = *v.Duration
			}
			vid, err := upsert(ctx, tx, "variants", v.ID, map[string]any{
				"service_id":       id,
				"name":             v.Name,
				"duration":         duration,
				"price":            v.Price,
				"pricing":          string(pricing),
				"price_unit":       v.PriceUnit,
				"sessions":         v.Sessions(),
				"session_interval": v.SessionInterval,
				"session_type":     v.SessionType,
				"max_per_session":  v.MaxAnimalsPerSession,
				"features":         string(features),
			})
			if err != nil {
				return fmt.Errorf("failed to save variant %q: %w", v.Name, err)
			}
			v.ID = vid
		}

		for i := range svc.Options {
			o := &svc.Options[i]
			o.ServiceID = id
			oid, err := upsert(ctx, tx, "options", o.ID, map[string]any{
				"service_id": id,
				"name":       o.Name,
				"price":      o.Price,
			})
			if err != nil {
				return fmt.Errorf("failed to save option %q: %w", o.Name, err)
			}
			o.ID = oid
		}
		return nil
	})
}

// upsert writes one row. With id == 0 the row is inserted and the new id
// returned; otherwise the row with that id is inserted or updated in place.
func upsert(ctx context.Context, ex executor, table string, id int64, values map[string]any) (int64, error) {
	builder := squirrel.Insert(table)
	if id != 0 {
		columns := make([]string, 0, len(values))
		for col := range values {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		sets := make([]string, len(columns))
		for i, col := range columns {
			sets[i] = col + " = excluded." + col
		}
		values["id"] = id
		builder = builder.Suffix("ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", "))
	}
	query, args, err := builder.SetMap(values).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBuildQuery, table, err)
	}

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	return result.LastInsertId()
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.ServiceConfig, error) {
	return getService(ctx, db, id)
}

func getService(ctx context.Context, ex executor, id int64) (*models.ServiceConfig, error) {
	query, args, err := squirrel.Select(serviceColumns...).
		From("services").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: service: %v", errBuildQuery, err)
	}

	var svc models.ServiceConfig
	var dayStart, dayEnd int
	err = ex.QueryRowContext(ctx, query, args...).Scan(
		&svc.ID, &svc.AnnouncerID, &svc.Name, &svc.Category, &dayStart, &dayEnd,
		&svc.AllowOvernightStay, &svc.OvernightPrice, &svc.EnableDurationBasedBlocking,
		&svc.IsCapacityBased, &svc.MaxAnimalsPerSlot, &svc.BufferBefore, &svc.BufferAfter,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	svc.DayStartTime = models.ClockTime(dayStart)
	svc.DayEndTime = models.ClockTime(dayEnd)

	if svc.Variants, err = getVariants(ctx, ex, id); err != nil {
		return nil, err
	}
	if svc.Options, err = getOptions(ctx, ex, id); err != nil {
		return nil, err
	}
	return &svc, nil
}

func getVariants(ctx context.Context, ex executor, serviceID int64) ([]models.ServiceVariant, error) {
	query, args, err := squirrel.Select(
		"id", "service_id", "name", "duration", "price", "pricing", "price_unit",
		"sessions", "session_interval", "session_type", "max_per_session", "features",
	).
		From("variants").
		Where(squirrel.Eq{"service_id": serviceID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: variants: %v", errBuildQuery, err)
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get variants: %w", err)
	}
	defer rows.Close()

	var variants []models.ServiceVariant
	for rows.Next() {
		var v models.ServiceVariant
		var duration sql.NullInt64
		var pricing, features string
		if err := rows.Scan(
			&v.ID, &v.ServiceID, &v.Name, &duration, &v.Price, &pricing, &v.PriceUnit,
			&v.NumberOfSessions, &v.SessionInterval, &v.SessionType, &v.MaxAnimalsPerSession, &features,
		); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if duration.Valid {
			d := int(duration.Int64)
			v.Duration = &d
		}
		if err := json.Unmarshal([]byte(pricing), &v.Pricing); err != nil {
			return nil, fmt.Errorf("variant %d pricing: %w", v.ID, err)
		}
		if err := json.Unmarshal([]byte(features), &v.IncludedFeatures); err != nil {
			return nil, fmt.Errorf("variant %d features: %w", v.ID, err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func getOptions(ctx context.Context, ex executor, serviceID int64) ([]models.ServiceOption, error) {
	query, args, err := squirrel.Select("id", "service_id", "name", "price").
		From("options").
		Where(squirrel.Eq{"service_id": serviceID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: options: %v", errBuildQuery, err)
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get options: %w", err)
	}
	defer rows.Close()

	var options []models.ServiceOption
	for rows.Next() {
		var o models.ServiceOption
		if err := rows.Scan(&o.ID, &o.ServiceID, &o.Name, &o.Price); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// AddAvailabilityWindow publishes a bookable window on one day. Once a day
// has windows, bookings must fit inside one of them.
func (db *DB) AddAvailabilityWindow(ctx context.Context, serviceID int64, date models.Date, slot models.TimeSlot) error {
	query, args, err := squirrel.Insert("availability_windows").
		Columns("service_id", "date", "start_minute", "end_minute").
		Values(serviceID, date.String(), slot.Start.Minutes(), slot.End.Minutes()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: window: %v", errBuildQuery, err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add availability window: %w", err)
	}
	return nil
}

// BlockDay marks a day as closed for the service.
func (db *DB) BlockDay(ctx context.Context, serviceID int64, date models.Date) error {
	query, args, err := squirrel.Insert("blocked_days").
		Options("OR IGNORE").
		Columns("service_id", "date").
		Values(serviceID, date.String()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: blocked day: %v", errBuildQuery, err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to block day: %w", err)
	}
	return nil
}

// PublishCollectiveSlot stores a shared session. AvailableSpots defaults to
// TotalSpots.
func (db *DB) PublishCollectiveSlot(ctx context.Context, slot *models.CollectiveSlot) error {
	if slot.AvailableSpots == 0 {
		slot.AvailableSpots = slot.TotalSpots
	}
	id, err := upsert(ctx, db, "collective_slots", slot.ID, map[string]any{
		"variant_id":      slot.VariantID,
		"date":            slot.Date.String(),
		"start_minute":    slot.StartTime.Minutes(),
		"end_minute":      slot.EndTime.Minutes(),
		"total_spots":     slot.TotalSpots,
		"available_spots": slot.AvailableSpots,
	})
	if err != nil {
		return fmt.Errorf("failed to publish collective slot: %w", err)
	}
	slot.ID = id
	return nil
}

// GetCollectiveSlots lists the variant's slots dated within [from, to].
func (db *DB) GetCollectiveSlots(ctx context.Context, variantID int64, from, to models.Date) ([]models.CollectiveSlot, error) {
	return getCollectiveSlots(ctx, db, squirrel.And{
		squirrel.Eq{"variant_id": variantID},
		squirrel.GtOrEq{"date": from.String()},
		squirrel.LtOrEq{"date": to.String()},
	})
}

func getCollectiveSlots(ctx context.Context, ex executor, where squirrel.Sqlizer) ([]models.CollectiveSlot, error) {
	query, args, err := squirrel.Select(
		"id", "variant_id", "date", "start_minute", "end_minute", "total_spots", "available_spots",
	).
		From("collective_slots").
		Where(where).
		OrderBy("date", "start_minute").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: collective slots: %v", errBuildQuery, err)
	}

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get collective slots: %w", err)
	}
	defer rows.Close()

	var slots []models.CollectiveSlot
	for rows.Next() {
		var s models.CollectiveSlot
		var date string
		var start, end int
		if err := rows.Scan(&s.ID, &s.VariantID, &date, &start, &end, &s.TotalSpots, &s.AvailableSpots); err != nil {
			return nil, fmt.Errorf("failed to scan collective slot: %w", err)
		}
		if s.Date, err = models.ParseDate(date); err != nil {
			return nil, err
		}
		s.StartTime = models.ClockTime(start)
		s.EndTime = models.ClockTime(end)
		slots = append(slots, s)
	}
	return slots, rows.Err()
}
