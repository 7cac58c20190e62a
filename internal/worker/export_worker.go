package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gardiens/internal/events"
	"gardiens/internal/export"
	"gardiens/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	exportQueueKey      = "exports:queue"
	exportDeadLetterKey = "exports:deadletter"
)

// ReportSource assembles the workbook content for one variant and month.
type ReportSource interface {
	MonthReport(ctx context.Context, serviceID, variantID int64, month models.Date) (*export.MonthReport, error)
}

// ReportSaver persists a rendered workbook.
type ReportSaver interface {
	Save(r export.MonthReport) (string, error)
}

// ExportTask asks for one month workbook to be rebuilt.
type ExportTask struct {
	ServiceID int64     `json:"service_id"`
	VariantID int64     `json:"variant_id"`
	Month     string    `json:"month"` // 2006-01
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportWorker keeps the saved month workbooks in step with bookings. Tasks
// go through redis when it is reachable and an in-memory queue otherwise.
type ExportWorker struct {
	source       ReportSource
	saver        ReportSaver
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan ExportTask
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewExportWorker(source ReportSource, saver ReportSaver, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *ExportWorker {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "export_worker").Logger()
	}
	return &ExportWorker{
		source:       source,
		saver:        saver,
		redis:        redisClient,
		retryPolicy:  retry.withDefaults(),
		queue:        make(chan ExportTask, 128),
		pollInterval: time.Second,
		logger:       l,
	}
}

// Enqueue schedules a rebuild.
func (w *ExportWorker) Enqueue(ctx context.Context, task ExportTask) error {
	if task.ServiceID == 0 || task.VariantID == 0 {
		return errors.New("service and variant ids are required")
	}
	if _, err := time.Parse("2006-01", task.Month); err != nil {
		return fmt.Errorf("invalid month %q: %w", task.Month, err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	if w.redis != nil {
		err := w.pushRedis(ctx, exportQueueKey, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("redis push failed, using memory queue")
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return errors.New("export queue is full")
	}
}

// HandleBookingEvent enqueues every month the booking touches. It is meant
// to be subscribed to the booking events on the bus.
func (w *ExportWorker) HandleBookingEvent(ev *events.Event) error {
	var payload events.BookingEventPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}

	months, err := touchedMonths(payload.StartDate, payload.EndDate)
	if err != nil {
		return err
	}
	for _, month := range months {
		task := ExportTask{ServiceID: payload.ServiceID, VariantID: payload.VariantID, Month: month}
		if err := w.Enqueue(context.Background(), task); err != nil {
			return err
		}
	}
	return nil
}

func touchedMonths(start, end string) ([]string, error) {
	from, err := models.ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	to := from
	if end != "" {
		if to, err = models.ParseDate(end); err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}
	}

	var months []string
	for m := from.MonthStart(); !m.After(to); m = models.DateOf(m.AddDate(0, 1, 0)) {
		months = append(months, m.Format("2006-01"))
	}
	return months, nil
}

// Start runs the loop until ctx is done.
func (w *ExportWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("export worker started")
	defer w.logger.Info().Msg("export worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.processTask(ctx, task)
			continue
		default:
		}

		if task, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.processTask(ctx, task)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *ExportWorker) tryRedis(ctx context.Context) (ExportTask, bool) {
	if w.redis == nil {
		return ExportTask{}, false
	}
	res, err := w.redis.BRPop(ctx, w.pollInterval, exportQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("redis BRPOP failed")
		}
		return ExportTask{}, false
	}
	if len(res) != 2 {
		return ExportTask{}, false
	}

	var task ExportTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return ExportTask{}, false
	}
	return task, true
}

// processTask rebuilds one workbook. Failures are retried with backoff and
// end up in the dead letter list once the policy is exhausted.
func (w *ExportWorker) processTask(ctx context.Context, task ExportTask) {
	err := w.rebuild(ctx, task)
	if err == nil {
		return
	}

	task.Attempt++
	task.LastError = err.Error()
	log := w.logger.With().
		Int64("service_id", task.ServiceID).
		Int64("variant_id", task.VariantID).
		Str("month", task.Month).
		Int("attempt", task.Attempt).
		Logger()

	if w.retryPolicy.Exhausted(task.Attempt) {
		log.Error().Err(err).Msg("export task failed permanently")
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempt)
	log.Warn().Err(err).Dur("retry_in", delay).Msg("export task failed")
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.Enqueue(ctx, task); err != nil {
			log.Error().Err(err).Msg("requeue export task")
		}
	})
}

func (w *ExportWorker) rebuild(ctx context.Context, task ExportTask) error {
	month, err := time.Parse("2006-01", task.Month)
	if err != nil {
		return fmt.Errorf("invalid month %q: %w", task.Month, err)
	}

	report, err := w.source.MonthReport(ctx, task.ServiceID, task.VariantID, models.DateOf(month))
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	path, err := w.saver.Save(*report)
	if err != nil {
		return err
	}

	w.logger.Debug().Str("path", path).Msg("month workbook rebuilt")
	return nil
}

func (w *ExportWorker) pushRedis(ctx context.Context, key string, task ExportTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *ExportWorker) pushDeadLetter(ctx context.Context, task ExportTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, exportDeadLetterKey, task); err != nil {
		w.logger.Error().Err(err).Msg("dead letter push failed")
	}
}
