package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"bookings/backend/internal/domain"
	"bookings/backend/internal/service/appointments"
	"bookings/backend/internal/store"
	"bookings/backend/internal/telemetry"
)

// Machine readable failure classes carried in every error envelope.
const (
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeConflict         = "conflict"
	codeStorageError     = "storage_error"
	codeMethodNotAllowed = "method_not_allowed"
)

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Availability(ctx context.Context, date string) (appointments.Availability, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

type AppointmentsHandler struct {
	svc     appointmentsService
	metrics *telemetry.Metrics
	log     *slog.Logger
}

func NewAppointmentsHandler(svc appointmentsService, metrics *telemetry.Metrics, log *slog.Logger) *AppointmentsHandler {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &AppointmentsHandler{
		svc:     svc,
		metrics: metrics,
		log:     log.With(slog.String("component", "http.appointments")),
	}
}

type envelope struct {
	StatusCode int          `json:"statusCode"`
	Success    bool         `json:"success"`
	Code       string       `json:"code,omitempty"`
	Error      string       `json:"error,omitempty"`
	Message    string       `json:"message,omitempty"`
	Errors     []fieldError `json:"errors,omitempty"`
	Data       any          `json:"data,omitempty"`
	Count      *int         `json:"count,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type availabilityResponse struct {
	StatusCode     int      `json:"statusCode"`
	Success        bool     `json:"success"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
	BookedSlots    []string `json:"bookedSlots"`
	TotalAvailable int      `json:"totalAvailable"`
	TotalBooked    int      `json:"totalBooked"`
	Message        string   `json:"message,omitempty"`
}

type createAppointmentRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r, "ListAppointments")

	appts, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, log, "list", "Failed to fetch appointments", err)
		return
	}

	if appts == nil {
		appts = []domain.Appointment{}
	}
	count := len(appts)
	log.Debug("appointments listed", slog.Int("count", count))
	writeJSON(w, http.StatusOK, envelope{
		StatusCode: http.StatusOK,
		Success:    true,
		Data:       appts,
		Count:      &count,
	})
}

func (h *AppointmentsHandler) Available(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r, "AvailableSlots")
	date := r.URL.Query().Get("date")

	av, err := h.svc.Availability(r.Context(), date)
	if err != nil {
		h.fail(w, log, "availability", "Failed to fetch available slots", err)
		return
	}

	log.Debug(
		"availability computed",
		slog.String("date", av.Date.String()),
		slog.Int("available", len(av.AvailableSlots)),
		slog.Int("booked", len(av.BookedSlots)),
	)
	writeJSON(w, http.StatusOK, availabilityResponse{
		StatusCode:     http.StatusOK,
		Success:        true,
		Date:           date,
		AvailableSlots: av.AvailableSlots,
		BookedSlots:    av.BookedSlots,
		TotalAvailable: len(av.AvailableSlots),
		TotalBooked:    len(av.BookedSlots),
		Message:        av.Message,
	})
}

func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r, "CreateAppointment")

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_json"))
		h.metrics.BookingRejections.WithLabelValues("body").Inc()
		writeJSON(w, http.StatusBadRequest, envelope{
			StatusCode: http.StatusBadRequest,
			Code:       codeValidationFailed,
			Error:      "Invalid JSON body",
		})
		return
	}

	appt, err := h.svc.Create(r.Context(), appointments.CreateInput{
		Date:   req.Date,
		Time:   req.Time,
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Reason: req.Reason,
	})
	if err != nil {
		var vErr *appointments.ValidationError
		if errors.As(err, &vErr) {
			h.metrics.BookingRejections.WithLabelValues(vErr.Field).Inc()
		}
		if errors.Is(err, store.ErrConflict) {
			h.metrics.BookingConflicts.Inc()
		}
		h.fail(w, log.With(slog.String("date", req.Date), slog.String("time", req.Time)), "create", "Failed to create appointment", err)
		return
	}

	h.metrics.BookingsCreated.Inc()
	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("date", appt.Date.String()),
		slog.String("time", appt.Time),
	)
	writeJSON(w, http.StatusCreated, envelope{
		StatusCode: http.StatusCreated,
		Success:    true,
		Message:    "Appointment created successfully",
		Data:       appt,
	})
}

func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r, "CancelAppointment")

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		writeJSON(w, http.StatusBadRequest, envelope{
			StatusCode: http.StatusBadRequest,
			Code:       codeValidationFailed,
			Error:      "Invalid appointment ID format",
			Errors:     []fieldError{{Field: "id", Message: "Invalid appointment ID format"}},
		})
		return
	}
	log = log.With(slog.String("appointment_id", id.String()))

	appt, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, log, "cancel", "Failed to cancel appointment", err)
		return
	}

	h.metrics.Cancellations.Inc()
	log.Info("appointment cancelled", slog.String("date", appt.Date.String()), slog.String("time", appt.Time))
	writeJSON(w, http.StatusOK, envelope{
		StatusCode: http.StatusOK,
		Success:    true,
		Message:    "Appointment cancelled successfully",
		Data:       appt,
	})
}

func (h *AppointmentsHandler) requestLog(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// fail maps service errors onto status codes and failure classes.
func (h *AppointmentsHandler) fail(w http.ResponseWriter, log *slog.Logger, op, storageMsg string, err error) {
	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", slog.Any("err", err), slog.String("field", vErr.Field))
		writeJSON(w, http.StatusBadRequest, envelope{
			StatusCode: http.StatusBadRequest,
			Code:       codeValidationFailed,
			Error:      vErr.Error(),
			Errors:     []fieldError{{Field: vErr.Field, Message: vErr.Error()}},
		})
		return
	}
	if errors.Is(err, store.ErrConflict) {
		log.Info("slot already booked")
		writeJSON(w, http.StatusConflict, envelope{
			StatusCode: http.StatusConflict,
			Code:       codeConflict,
			Error:      "This time slot is already booked",
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		log.Info("appointment not found")
		writeJSON(w, http.StatusNotFound, envelope{
			StatusCode: http.StatusNotFound,
			Code:       codeNotFound,
			Error:      "Appointment not found",
		})
		return
	}

	h.metrics.StorageFailures.WithLabelValues(op).Inc()
	status := http.StatusInternalServerError
	var sErr *appointments.StorageError
	if errors.As(err, &sErr) && sErr.Timeout() {
		status = http.StatusServiceUnavailable
	}
	log.Error("storage failure", slog.Any("err", err), slog.Int("status", status))
	writeJSON(w, status, envelope{
		StatusCode: status,
		Code:       codeStorageError,
		Error:      storageMsg,
		Message:    "Please try again later",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
