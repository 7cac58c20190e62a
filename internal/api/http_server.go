package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"gardiens/internal/config"
	"gardiens/internal/export"
	"gardiens/internal/metrics"
	"gardiens/internal/models"
	"gardiens/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Route names double as metric labels and permission keys.
const (
	routeHealthz     = "healthz"
	routeReadyz      = "readyz"
	routeService     = "service"
	routeCalendar    = "calendar"
	routeCollective  = "collective_slots"
	routeExport      = "calendar_export"
	routeQuote       = "quote"
	routeBookingNew  = "booking_create"
	routeBookingGet  = "booking_get"
	routeBookingStop = "booking_cancel"
	routeDraftNew    = "draft_create"
	routeDraftGet    = "draft_get"
	routeDraftPut    = "draft_save"
	routeDraftDelete = "draft_delete"
)

var routePermissions = map[string]string{
	routeService:     permReadCalendar,
	routeCalendar:    permReadCalendar,
	routeCollective:  permReadCalendar,
	routeQuote:       permReadCalendar,
	routeExport:      permReadBookings,
	routeBookingGet:  permReadBookings,
	routeBookingNew:  permWriteBookings,
	routeBookingStop: permWriteBookings,
	routeDraftNew:    permWriteBookings,
	routeDraftGet:    permWriteBookings,
	routeDraftPut:    permWriteBookings,
	routeDraftDelete: permWriteBookings,
}

// Bookings is the booking engine as seen by the HTTP layer.
type Bookings interface {
	GetService(ctx context.Context, id int64) (*models.ServiceConfig, error)
	GetCalendar(ctx context.Context, serviceID, variantID int64, month models.Date) (*service.Calendar, error)
	ListCollectiveSlots(ctx context.Context, serviceID, variantID int64, month models.Date) ([]models.CollectiveSlot, error)
	Quote(ctx context.Context, req models.BookingRequest) (*service.Quote, error)
	CreateBooking(ctx context.Context, userID int64, req models.BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id, version int64) (*models.Booking, error)
	MonthReport(ctx context.Context, serviceID, variantID int64, month models.Date) (*export.MonthReport, error)
}

// Drafts is the wizard draft store as seen by the HTTP layer.
type Drafts interface {
	Allow(ctx context.Context, clientKey string) error
	Create(ctx context.Context, userID int64, req models.BookingRequest) (*models.BookingDraft, error)
	Get(ctx context.Context, userID int64, id string) (*models.BookingDraft, error)
	Save(ctx context.Context, userID int64, id, step string, req models.BookingRequest) (*models.BookingDraft, error)
	Clear(ctx context.Context, userID int64, id string) error
}

type Dependencies struct {
	Bookings Bookings
	Drafts   Drafts
	Exporter *export.Exporter
	DB       Pinger
}

// HTTPServer exposes the booking engine over JSON.
type HTTPServer struct {
	cfg    *config.APIConfig
	deps   Dependencies
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, deps: deps, auth: NewHTTPAuth(cfg), log: zerolog.Nop()}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}
	if srv.deps.Exporter == nil {
		srv.deps.Exporter = export.NewExporter("", logger)
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware, metricsMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet).Name(routeHealthz)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet).Name(routeReadyz)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.auth.Middleware)

	variant := "/services/{serviceId:[0-9]+}/variants/{variantId:[0-9]+}"
	v1.HandleFunc("/services/{serviceId:[0-9]+}", s.handleGetService).Methods(http.MethodGet).Name(routeService)
	v1.HandleFunc(variant+"/calendar", s.handleCalendar).Methods(http.MethodGet).Name(routeCalendar)
	v1.HandleFunc(variant+"/calendar/export", s.handleCalendarExport).Methods(http.MethodGet).Name(routeExport)
	v1.HandleFunc(variant+"/collective-slots", s.handleCollectiveSlots).Methods(http.MethodGet).Name(routeCollective)

	v1.HandleFunc("/quotes", s.handleQuote).Methods(http.MethodPost).Name(routeQuote)
	v1.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost).Name(routeBookingNew)
	v1.HandleFunc("/bookings/{bookingId:[0-9]+}", s.handleGetBooking).Methods(http.MethodGet).Name(routeBookingGet)
	v1.HandleFunc("/bookings/{bookingId:[0-9]+}/cancel", s.handleCancelBooking).Methods(http.MethodPost).Name(routeBookingStop)

	v1.HandleFunc("/drafts", s.handleCreateDraft).Methods(http.MethodPost).Name(routeDraftNew)
	v1.HandleFunc("/drafts/{draftId}", s.handleGetDraft).Methods(http.MethodGet).Name(routeDraftGet)
	v1.HandleFunc("/drafts/{draftId}", s.handleSaveDraft).Methods(http.MethodPut).Name(routeDraftPut)
	v1.HandleFunc("/drafts/{draftId}", s.handleDeleteDraft).Methods(http.MethodDelete).Name(routeDraftDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	*authenticator
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	return &HTTPAuth{authenticator: newAuthenticator(cfg)}
}

func (a *HTTPAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					code = http.StatusForbidden
				}
				writeError(w, code, "unauthorized", err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader, extraHeader := a.headers()
	client, err := a.authenticate(strings.TrimSpace(r.Header.Get(apiKeyHeader)), strings.TrimSpace(r.Header.Get(extraHeader)))
	if err != nil {
		return err
	}
	return authorize(client, routePermissions[routeName(r)])
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader, _ := a.headers()
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(routeName(r))
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", routeName(r)).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: message, Code: code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
