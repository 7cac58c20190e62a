package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gardiens/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleReport() MonthReport {
	date := func(s string) models.Date {
		d, err := models.ParseDate(s)
		if err != nil {
			panic(err)
		}
		return d
	}
	start := models.MustClockTime("09:00")
	end := models.MustClockTime("12:00")
	capacity := models.NewCapacity(1, 3)

	return MonthReport{
		Service: &models.ServiceConfig{
			ID:      1,
			Name:    "Garde Paris 11",
			Options: []models.ServiceOption{{ID: 100, Name: "Photos", Price: 500}},
		},
		Variant: models.ServiceVariant{ID: 10, Name: "Day care"},
		Month:   "2026-03",
		Days: []models.AvailabilityDay{
			{Date: date("2026-03-01"), Status: models.DayPast},
			{Date: date("2026-03-02"), Status: models.DayPartial, Capacity: &capacity,
				BookedSlots: []models.TimeSlot{{Start: start, End: end}}},
		},
		Bookings: []*models.Booking{{
			Reference: "b-1", Status: models.StatusPending,
			StartDate: date("2026-03-02"), EndDate: date("2026-03-02"),
			StartTime: &start, EndTime: &end, Participants: 1,
			CalculatedAmount: 3500, OptionIDs: []int64{100, 7},
		}},
	}
}

func TestBuild(t *testing.T) {
	f, err := Build(sampleReport())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetCalendar, SheetBookings}, f.GetSheetList())

	title, err := f.GetCellValue(SheetCalendar, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Garde Paris 11 / Day care: 2026-03", title)

	rows, err := f.GetRows(SheetCalendar)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Date", "Weekday", "Status", "Remaining", "Booked"}, rows[1])
	assert.Equal(t, []string{"2026-03-02", "Monday", "partial", "2/3", "09:00-12:00"}, rows[3])

	bookings, err := f.GetRows(SheetBookings)
	require.NoError(t, err)
	require.Len(t, bookings, 3)
	assert.Equal(t, "b-1", bookings[2][0])
	assert.Equal(t, "3500", bookings[2][7])
	assert.Equal(t, "Photos, #7", bookings[2][10])
}

func TestBuildWithoutService(t *testing.T) {
	_, err := Build(MonthReport{})
	require.Error(t, err)
}

func TestExporterWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter("", nil).Write(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), SheetBookings)
}

func TestExporterSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := NewExporter(dir, nil).Save(sampleReport())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "calendar_1_10_2026-03.xlsx"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)
}
