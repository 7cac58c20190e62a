package database

import (
	"context"
	"testing"

	"gardiens/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := seedExclusiveService(t, db)

	require.NotZero(t, svc.ID)
	require.NotZero(t, svc.Variants[0].ID)
	require.NotZero(t, svc.Options[0].ID)

	got, err := db.GetService(ctx, svc.ID)
	require.NoError(t, err)

	assert.Equal(t, "Dog walking", got.Name)
	assert.Equal(t, int64(7), got.AnnouncerID)
	assert.Equal(t, ct("08:00"), got.DayStartTime)
	assert.Equal(t, ct("18:00"), got.DayEndTime)
	assert.Equal(t, 15, got.BufferBefore)
	require.Len(t, got.Variants, 2)

	dayCare := got.Variants[0]
	require.NotNil(t, dayCare.Pricing.Daily)
	assert.Equal(t, int64(8000), *dayCare.Pricing.Daily)
	assert.Nil(t, dayCare.Pricing.Hourly)
	assert.Nil(t, dayCare.Duration)
	assert.Equal(t, 1, dayCare.NumberOfSessions)

	walk := got.Variants[1]
	require.NotNil(t, walk.Duration)
	assert.Equal(t, 60, *walk.Duration)
	assert.Equal(t, []string{"leash"}, walk.IncludedFeatures)
	assert.Equal(t, svc.ID, walk.ServiceID)

	require.Len(t, got.Options, 1)
	assert.Equal(t, int64(500), got.Options[0].Price)
}

func TestSaveServiceUpdatesInPlace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := seedExclusiveService(t, db)

	day := models.NewDate(2025, 10, 1)
	require.NoError(t, db.BlockDay(ctx, svc.ID, day))

	svc.Name = "Dog walking deluxe"
	svc.Variants[1].Price = 1800
	require.NoError(t, db.SaveService(ctx, svc))

	got, err := db.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dog walking deluxe", got.Name)
	assert.Equal(t, int64(1800), got.Variants[1].Price)
	assert.Len(t, got.Variants, 2)

	snaps, err := db.GetMonthSnapshots(ctx, got, day, day)
	require.NoError(t, err)
	assert.True(t, snaps[0].Blocked, "updating a service keeps its calendar")
}

func TestGetServiceNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetService(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectiveSlots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := seedExclusiveService(t, db)
	variantID := svc.Variants[1].ID

	day := models.NewDate(2025, 10, 6)
	for i, date := range []models.Date{day, day.AddDays(7), day.AddDays(40)} {
		slot := &models.CollectiveSlot{
			VariantID:  variantID,
			Date:       date,
			StartTime:  ct("10:00"),
			EndTime:    ct("11:00"),
			TotalSpots: 4 + i,
		}
		require.NoError(t, db.PublishCollectiveSlot(ctx, slot))
		assert.NotZero(t, slot.ID)
		assert.Equal(t, slot.TotalSpots, slot.AvailableSpots)
	}

	slots, err := db.GetCollectiveSlots(ctx, variantID, day, day.AddDays(30))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, day, slots[0].Date)
	assert.Equal(t, ct("10:00"), slots[0].StartTime)
	assert.Equal(t, 5, slots[1].AvailableSpots)

	none, err := db.GetCollectiveSlots(ctx, variantID+100, day, day.AddDays(30))
	require.NoError(t, err)
	assert.Empty(t, none)
}
