package handlers

import (
	"net/http"

	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/http/response"
	"github.com/tutorlink/api/pkg/auth"
)

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims.Role != auth.RoleStudent {
		response.Forbidden(w, "only students can request bookings")
		return
	}

	var req domain.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	booking, err := h.bookings.Request(r.Context(), claims.Sub, &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	limit, offset := parsePagination(r)

	var status *domain.BookingStatus
	if v := r.URL.Query().Get("status"); v != "" {
		parsed, ok := domain.ParseBookingStatus(v)
		if !ok {
			response.BadRequest(w, "unknown booking status")
			return
		}
		status = &parsed
	}

	var (
		bookings []domain.Booking
		err      error
	)
	if claims.Role == auth.RoleTutor {
		bookings, err = h.bookings.ListForTutor(r.Context(), claims.Sub, limit, offset, status)
	} else {
		bookings, err = h.bookings.ListForStudent(r.Context(), claims.Sub, limit, offset, status)
	}
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid booking id")
		return
	}

	booking, err := h.bookings.Get(r.Context(), id, claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handlers) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid booking id")
		return
	}

	session, err := h.bookings.Accept(r.Context(), id, claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *Handlers) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid booking id")
		return
	}

	if err := h.bookings.Decline(r.Context(), id, claimsFrom(r).Sub); err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": domain.BookingDeclined})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid booking id")
		return
	}

	if err := h.bookings.Cancel(r.Context(), id, claimsFrom(r).Sub); err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": domain.BookingCancelled})
}
