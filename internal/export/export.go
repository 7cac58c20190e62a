package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gardiens/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	SheetCalendar = "Calendar"
	SheetBookings = "Bookings"
)

// MonthReport is everything written into one announcer workbook.
type MonthReport struct {
	Service  *models.ServiceConfig
	Variant  models.ServiceVariant
	Month    string
	Days     []models.AvailabilityDay
	Bookings []*models.Booking
}

// FileName is the name a saved report gets inside the export directory.
func (r MonthReport) FileName() string {
	return fmt.Sprintf("calendar_%d_%d_%s.xlsx", r.Service.ID, r.Variant.ID, r.Month)
}

type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{dir: dir, logger: logger}
}

// Write streams the workbook to w.
func (e *Exporter) Write(w io.Writer, r MonthReport) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into the export directory and returns its path.
func (e *Exporter) Save(r MonthReport) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := Build(r)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, r.FileName())
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("file_path", path).Msg("Excel file created")
	return path, nil
}

// Build renders the month calendar and the month's bookings on two sheets.
func Build(r MonthReport) (*excelize.File, error) {
	if r.Service == nil {
		return nil, fmt.Errorf("report has no service")
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(SheetCalendar); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetBookings); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := writeCalendar(f, r); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeBookings(f, r); err != nil {
		f.Close()
		return nil, err
	}

	if idx, err := f.GetSheetIndex(SheetCalendar); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func writeCalendar(f *excelize.File, r MonthReport) error {
	title := fmt.Sprintf("%s / %s: %s", r.Service.Name, r.Variant.Name, r.Month)
	if err := f.SetCellValue(SheetCalendar, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	_ = f.MergeCell(SheetCalendar, "A1", "E1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(SheetCalendar, "A1", "A1", titleStyle)

	if err := writeHeader(f, SheetCalendar, []string{"Date", "Weekday", "Status", "Remaining", "Booked"}); err != nil {
		return err
	}

	styles, err := statusStyles(f)
	if err != nil {
		return err
	}

	for i, day := range r.Days {
		row := i + 3
		remaining := ""
		if day.Capacity != nil {
			remaining = fmt.Sprintf("%d/%d", day.Capacity.Remaining, day.Capacity.Max)
		}
		values := []any{day.Date.String(), day.Date.Weekday().String(), day.Status, remaining, slotsText(day.BookedSlots)}
		if err := setRow(f, SheetCalendar, row, values); err != nil {
			return err
		}

		if style, ok := styles[day.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(SheetCalendar, cell, cell, style)
		}
	}

	_ = f.SetColWidth(SheetCalendar, "A", "B", 14)
	_ = f.SetColWidth(SheetCalendar, "C", "D", 12)
	_ = f.SetColWidth(SheetCalendar, "E", "E", 40)
	return nil
}

func writeBookings(f *excelize.File, r MonthReport) error {
	if err := f.SetCellValue(SheetBookings, "A1", fmt.Sprintf("Bookings %s", r.Month)); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	header := []string{
		"Reference", "Status", "Start date", "End date", "Start time", "End time",
		"Participants", "Amount", "Nights", "Overnight amount", "Options",
	}
	if err := writeHeader(f, SheetBookings, header); err != nil {
		return err
	}

	for i, b := range r.Bookings {
		values := []any{
			b.Reference, b.Status, b.StartDate.String(), b.EndDate.String(),
			clockText(b.StartTime), clockText(b.EndTime),
			b.Participants, b.CalculatedAmount, b.OvernightNights, b.OvernightAmount,
			optionsText(r.Service, b.OptionIDs),
		}
		if err := setRow(f, SheetBookings, i+3, values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(SheetBookings, "A", "A", 38)
	_ = f.SetColWidth(SheetBookings, "B", "K", 14)
	return nil
}

func writeHeader(f *excelize.File, sheet string, titles []string) error {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	values := make([]any, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	if err := setRow(f, sheet, 2, values); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(titles), 2)
	_ = f.SetCellStyle(sheet, "A2", last, style)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

// statusStyles colours the status column: green free, yellow partly
// taken, red full, grey past.
func statusStyles(f *excelize.File) (map[string]int, error) {
	colors := map[string]string{
		models.DayAvailable:   "#C6EFCE",
		models.DayPartial:     "#FFEB9C",
		models.DayUnavailable: "#FFC7CE",
		models.DayPast:        "#EDEDED",
	}
	out := make(map[string]int, len(colors))
	for status, color := range colors {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return nil, fmt.Errorf("create style: %w", err)
		}
		out[status] = id
	}
	return out, nil
}

func slotsText(slots []models.TimeSlot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, s.Start.String()+"-"+s.End.String())
	}
	return strings.Join(parts, ", ")
}

func clockText(c *models.ClockTime) string {
	if c == nil {
		return ""
	}
	return c.String()
}

func optionsText(svc *models.ServiceConfig, ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name := fmt.Sprintf("#%d", id)
		for _, o := range svc.Options {
			if o.ID == id {
				name = o.Name
				break
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
