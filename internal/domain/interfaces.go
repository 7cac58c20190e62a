package domain

import (
	"context"
	"time"

	"gardiens/internal/availability"
	"gardiens/internal/models"
)

// Repository is the authoritative store for services, calendars and bookings.
type Repository interface {
	Ping(ctx context.Context) error
	GetService(ctx context.Context, id int64) (*models.ServiceConfig, error)
	GetCollectiveSlots(ctx context.Context, variantID int64, from, to models.Date) ([]models.CollectiveSlot, error)
	// GetMonthSnapshots returns one snapshot per day in [from, to].
	GetMonthSnapshots(ctx context.Context, svc *models.ServiceConfig, from, to models.Date) ([]models.DaySnapshot, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, svc *models.ServiceConfig, occupation []availability.DayOccupation, opts availability.CalendarOptions) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64, version int64) (*models.Booking, error)
	ListBookings(ctx context.Context, serviceID int64, from, to models.Date) ([]*models.Booking, error)
}

// DraftRepository holds booking wizard drafts. Drafts are disposable.
type DraftRepository interface {
	GetDraft(ctx context.Context, id string) (*models.BookingDraft, error)
	SetDraft(ctx context.Context, draft *models.BookingDraft) error
	ClearDraft(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}
