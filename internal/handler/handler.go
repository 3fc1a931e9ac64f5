// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer. It owns status-code
// mapping; the allocation rules live below it.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketline/internal/model"
	"ticketline/internal/repository"
	"ticketline/internal/service"
)

// TicketHandler holds all HTTP handlers for the ticket allocation API.
type TicketHandler struct {
	svc service.TicketService
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(svc service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Initializes a new event with the given name and ticket capacity.
func (h *TicketHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.InitializeEvent(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *TicketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *TicketHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// EventStatus handles GET /events/{id}/status
// Returns the available ticket counter and waiting-list size.
func (h *TicketHandler) EventStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.svc.GetEventStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// BookTicket handles POST /events/{id}/bookings
// Books a ticket for the event; the response booking is either confirmed or
// waitlisted.
func (h *TicketHandler) BookTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.BookTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.svc.BookTicket(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, repository.ErrContention):
			writeError(w, http.StatusServiceUnavailable, "booking contention, please retry")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

// CancelBooking handles DELETE /bookings/{id}
func (h *TicketHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.CancelBooking(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrBookingNotFound):
			writeError(w, http.StatusNotFound, "booking not found")
		case errors.Is(err, repository.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, repository.ErrAlreadyCancelled):
			writeError(w, http.StatusConflict, "booking already cancelled")
		case errors.Is(err, repository.ErrContention):
			writeError(w, http.StatusServiceUnavailable, "cancellation contention, please retry")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ListBookings handles GET /events/{id}/bookings
func (h *TicketHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	bookings, err := h.svc.ListBookings(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	if bookings == nil {
		bookings = []model.Booking{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
