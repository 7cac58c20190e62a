package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gardiens/internal/models"
	"gardiens/internal/service"

	"github.com/gorilla/mux"
)

const (
	userIDHeader = "X-User-ID"
	maxBodyBytes = 1 << 20
)

var errBadRequest = errors.New("bad request")

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	serviceID, err := pathID(r, "serviceId")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	svc, err := s.deps.Bookings.GetService(r.Context(), serviceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	serviceID, variantID, month, err := calendarParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cal, err := s.deps.Bookings.GetCalendar(r.Context(), serviceID, variantID, month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *HTTPServer) handleCollectiveSlots(w http.ResponseWriter, r *http.Request) {
	serviceID, variantID, month, err := calendarParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	slots, err := s.deps.Bookings.ListCollectiveSlots(r.Context(), serviceID, variantID, month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// handleCalendarExport streams the month workbook, or stores it in the
// export directory when save=true.
func (s *HTTPServer) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	serviceID, variantID, month, err := calendarParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	report, err := s.deps.Bookings.MonthReport(r.Context(), serviceID, variantID, month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("save") == "true" {
		path, err := s.deps.Exporter.Save(*report)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"path": path})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName()))
	if err := s.deps.Exporter.Write(w, *report); err != nil {
		s.log.Error().Err(err).Int64("service_id", serviceID).Msg("export failed")
	}
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	q, err := s.deps.Bookings.Quote(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type createBookingBody struct {
	models.BookingRequest
	DraftID string `json:"draft_id,omitempty"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body createBookingBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.deps.Bookings.CreateBooking(r.Context(), userID, body.BookingRequest)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if body.DraftID != "" && s.deps.Drafts != nil {
		if err := s.deps.Drafts.Clear(r.Context(), userID, body.DraftID); err != nil {
			s.log.Warn().Err(err).Str("draft_id", body.DraftID).Msg("failed to clear draft after booking")
		}
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.ownedBooking(r, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body struct {
		Version int64 `json:"version"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.ownedBooking(r, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	cancelled, err := s.deps.Bookings.CancelBooking(r.Context(), booking.ID, body.Version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// ownedBooking hides other users' bookings behind a 404.
func (s *HTTPServer) ownedBooking(r *http.Request, userID int64) (*models.Booking, error) {
	id, err := pathID(r, "bookingId")
	if err != nil {
		return nil, err
	}
	booking, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, fmt.Errorf("%w: booking %d", service.ErrNotFound, id)
	}
	return booking, nil
}

type draftBody struct {
	Step    string                `json:"step,omitempty"`
	Request models.BookingRequest `json:"request"`
}

func (s *HTTPServer) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := s.draftClient(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body draftBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	draft, err := s.deps.Drafts.Create(r.Context(), userID, body.Request)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	draft, err := s.deps.Drafts.Get(r.Context(), userID, mux.Vars(r)["draftId"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := s.draftClient(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var body draftBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	draft, err := s.deps.Drafts.Save(r.Context(), userID, mux.Vars(r)["draftId"], body.Step, body.Request)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.deps.Drafts.Clear(r.Context(), userID, mux.Vars(r)["draftId"]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// draftClient resolves the user and applies the draft write rate limit.
func (s *HTTPServer) draftClient(r *http.Request) (int64, error) {
	userID, err := userIDFrom(r)
	if err != nil {
		return 0, err
	}
	if err := s.deps.Drafts.Allow(r.Context(), "user:"+strconv.FormatInt(userID, 10)); err != nil {
		return 0, err
	}
	return userID, nil
}

// writeServiceError maps engine errors to status codes: fixable requests
// are 422, lost races 409, missing records 404.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.ReasonCode(err)

	switch {
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, service.ErrSlotNoLongerAvailable):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: code, Retryable: true})
	case errors.Is(err, service.ErrVersionConflict), errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, code, err.Error())
	case service.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, code, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("request timed out")
		writeError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func userIDFrom(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s header is required", errBadRequest, userIDHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s header", errBadRequest, userIDHeader)
	}
	return id, nil
}

func calendarParams(r *http.Request) (int64, int64, models.Date, error) {
	serviceID, err := pathID(r, "serviceId")
	if err != nil {
		return 0, 0, models.Date{}, err
	}
	variantID, err := pathID(r, "variantId")
	if err != nil {
		return 0, 0, models.Date{}, err
	}

	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		return 0, 0, models.Date{}, fmt.Errorf("%w: month is required", errBadRequest)
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return 0, 0, models.Date{}, fmt.Errorf("%w: invalid month format; expected YYYY-MM", errBadRequest)
	}
	return serviceID, variantID, models.DateOf(t), nil
}
