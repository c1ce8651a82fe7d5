package event_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-studyplanner/internal/auth"
	"ms-studyplanner/internal/event"
	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/models"
	"ms-studyplanner/internal/reminder"
	"ms-studyplanner/internal/timer"
	"ms-studyplanner/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	EventService    *event.Service
	TimerService    *timer.Service
	ReminderService *reminder.Service
	Scheduler       *reminder.Scheduler
	Logger          *logger.Logger
}

func NewHandler(events *event.Service, timers *timer.Service, reminders *reminder.Service, scheduler *reminder.Scheduler, log *logger.Logger) *Handler {
	return &Handler{
		EventService:    events,
		TimerService:    timers,
		ReminderService: reminders,
		Scheduler:       scheduler,
		Logger:          log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/upcoming", h.ListUpcoming)
		r.Get("/stats", h.GetStats)
		r.Get("/{eventId}", h.GetEvent)
		r.Put("/{eventId}", h.UpdateEvent)
		r.Delete("/{eventId}", h.DeleteEvent)

		r.Post("/{eventId}/reminders", h.AddReminder)

		r.Route("/{eventId}/timer", func(r chi.Router) {
			r.Get("/", h.TimerStatus)
			r.Post("/start", h.StartTimer)
			r.Post("/pause", h.PauseTimer)
			r.Post("/resume", h.ResumeTimer)
			r.Post("/stop", h.StopTimer)
		})
	})

	r.Route("/reminders", func(r chi.Router) {
		r.Get("/upcoming", h.UpcomingReminders)
		r.Post("/check", h.TriggerReminderScan)
	})
}

// ---------------- EVENTS ----------------

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req event.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.EventService.CreateEvent(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEvent failed: %v", err))
		h.writeError(w, err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateEvent: created event %s for user %s", created.ID, userID))
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventId")

	ev, err := h.EventService.GetEvent(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventId")

	var req event.UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.EventService.UpdateEvent(r.Context(), userID, eventID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateEvent %s failed: %v", eventID, err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventId")

	if err := h.EventService.DeleteEvent(r.Context(), userID, eventID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteEvent %s failed: %v", eventID, err))
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	events, err := h.EventService.ListUpcoming(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	stats, err := h.EventService.Stats(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// ---------------- REMINDERS ----------------

func (h *Handler) AddReminder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventId")

	var req struct {
		Type          models.ReminderType `json:"type"`
		MinutesBefore int                 `json:"time_before_event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	added, err := h.ReminderService.AddReminder(r.Context(), userID, eventID, req.Type, req.MinutesBefore)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AddReminder to %s failed: %v", eventID, err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) UpcomingReminders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeJSONError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	upcoming, err := h.ReminderService.GetUpcomingReminders(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, upcoming)
}

// TriggerReminderScan is the operator hook for an immediate scan outside the
// regular tick.
func (h *Handler) TriggerReminderScan(w http.ResponseWriter, r *http.Request) {
	delivered, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, reminder.ErrScanInFlight) {
			h.writeJSONError(w, http.StatusConflict, "A reminder scan is already running", err)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Manual reminder scan failed: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse(
		fmt.Sprintf("Scan complete, delivered %d reminder(s)", delivered),
		map[string]int{"delivered": delivered},
	))
}

// ---------------- TIMER ----------------

func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, "start", h.TimerService.Start)
}

func (h *Handler) PauseTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, "pause", h.TimerService.Pause)
}

func (h *Handler) ResumeTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, "resume", h.TimerService.Resume)
}

func (h *Handler) StopTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, "stop", h.TimerService.Stop)
}

func (h *Handler) TimerStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventId")

	state, err := h.TimerService.Status(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *Handler) timerCommand(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID, eventID string) (*models.Event, error)) {
	userID := auth.UserID(r.Context())
	eventID := chi.URLParam(r, "eventId")

	ev, err := fn(r.Context(), userID, eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Timer %s on %s failed: %v", op, eventID, err))
		h.writeError(w, err)
		return
	}

	h.Logger.LogTimer(op, eventID, fmt.Sprintf("status=%s paused_min=%.2f", ev.Timer.Status, ev.Timer.PausedMin))
	h.writeJSON(w, http.StatusOK, ev.Timer)
}

// ---------------- HELPERS ----------------

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(utils.ErrorResponse(message, err.Error()))
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalidTransition *models.InvalidTransitionError
	var validation *models.ValidationError

	switch {
	case errors.Is(err, models.ErrNotFound):
		h.writeJSONError(w, http.StatusNotFound, "Not found", err)
	case errors.As(err, &invalidTransition):
		h.writeJSONError(w, http.StatusConflict, "Invalid timer transition", err)
	case errors.As(err, &validation):
		h.writeJSONError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		h.writeJSONError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
