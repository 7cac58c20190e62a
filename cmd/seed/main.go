package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gardiens/internal/database"
	"gardiens/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Catalogue is the YAML layout of configs/services.yaml.
type Catalogue struct {
	Services []ServiceEntry `yaml:"services"`
}

type ServiceEntry struct {
	models.ServiceConfig `yaml:",inline"`
	Windows              []WindowEntry         `yaml:"windows"`
	BlockedDays          []models.Date         `yaml:"blocked_days"`
	CollectiveSlots      []CollectiveSlotEntry `yaml:"collective_slots"`
}

type WindowEntry struct {
	Date  models.Date      `yaml:"date"`
	Start models.ClockTime `yaml:"start"`
	End   models.ClockTime `yaml:"end"`
}

// CollectiveSlotEntry names its variant because ids are only known once the
// service is saved.
type CollectiveSlotEntry struct {
	Variant    string           `yaml:"variant"`
	Date       models.Date      `yaml:"date"`
	StartTime  models.ClockTime `yaml:"start_time"`
	EndTime    models.ClockTime `yaml:"end_time"`
	TotalSpots int              `yaml:"total_spots"`
}

type summary struct {
	services, windows, blocked, slots int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		cataloguePath = flag.String("services", "configs/services.yaml", "path to services.yaml")
		dbPath        = flag.String("db", "./data/gardiens.db", "path to sqlite db")
	)
	flag.Parse()

	cat, err := loadCatalogue(*cataloguePath)
	if err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sum, err := seed(ctx, db, cat)
	if err != nil {
		return err
	}

	logger.Info().
		Int("services", sum.services).
		Int("windows", sum.windows).
		Int("blocked_days", sum.blocked).
		Int("collective_slots", sum.slots).
		Msg("catalogue seeded")
	return nil
}

func loadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if len(cat.Services) == 0 {
		return nil, fmt.Errorf("no services in %s", path)
	}
	return &cat, nil
}

// seed upserts every service with its variants and options, then adds its
// windows, blocked days and collective slots.
func seed(ctx context.Context, db *database.DB, cat *Catalogue) (summary, error) {
	var sum summary
	for i := range cat.Services {
		entry := &cat.Services[i]
		svc := &entry.ServiceConfig
		if svc.Name == "" {
			continue
		}
		if err := db.SaveService(ctx, svc); err != nil {
			return sum, fmt.Errorf("save %s: %w", svc.Name, err)
		}
		sum.services++

		for _, w := range entry.Windows {
			if err := db.AddAvailabilityWindow(ctx, svc.ID, w.Date, models.TimeSlot{Start: w.Start, End: w.End}); err != nil {
				return sum, fmt.Errorf("%s window %s: %w", svc.Name, w.Date, err)
			}
			sum.windows++
		}

		for _, day := range entry.BlockedDays {
			if err := db.BlockDay(ctx, svc.ID, day); err != nil {
				return sum, fmt.Errorf("%s block %s: %w", svc.Name, day, err)
			}
			sum.blocked++
		}

		for _, s := range entry.CollectiveSlots {
			variantID, ok := variantByName(svc, s.Variant)
			if !ok {
				return sum, fmt.Errorf("%s: unknown variant %q for collective slot", svc.Name, s.Variant)
			}
			slot := &models.CollectiveSlot{
				VariantID:  variantID,
				Date:       s.Date,
				StartTime:  s.StartTime,
				EndTime:    s.EndTime,
				TotalSpots: s.TotalSpots,
			}
			if err := db.PublishCollectiveSlot(ctx, slot); err != nil {
				return sum, fmt.Errorf("%s slot %s: %w", svc.Name, s.Date, err)
			}
			sum.slots++
		}
	}
	return sum, nil
}

func variantByName(svc *models.ServiceConfig, name string) (int64, bool) {
	for _, v := range svc.Variants {
		if v.Name == name {
			return v.ID, true
		}
	}
	return 0, false
}
