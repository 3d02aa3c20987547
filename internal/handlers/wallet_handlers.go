package handlers

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/http/response"
	"github.com/tutorlink/api/pkg/auth"
	"github.com/tutorlink/api/pkg/logger"
)

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	account, err := h.wallet.GetAccount(r.Context(), claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if account == nil {
		response.NotFound(w, "wallet account not found")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) ListWalletEntries(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	if v := r.URL.Query().Get("booking_id"); v != "" {
		bookingID, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid booking id")
			return
		}
		booking, err := h.bookings.Get(r.Context(), bookingID, claims.Sub)
		if err != nil {
			response.DomainError(w, err)
			return
		}
		entries, err := h.wallet.EntriesByBooking(r.Context(), booking.ID)
		if err != nil {
			response.DomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
		return
	}

	limit, offset := parsePagination(r)
	entries, err := h.wallet.EntriesByAccount(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handlers) GetEarnings(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims.Role != auth.RoleTutor {
		response.Forbidden(w, "only tutors have earnings")
		return
	}

	total, err := h.wallet.EarningsTotal(r.Context(), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_cents": total})
}

type topUpRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *Handlers) CreateTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.AmountCents <= 0 {
		response.BadRequest(w, "amount_cents must be positive")
		return
	}

	intent, err := h.gateway.CreateTopUpIntent(claimsFrom(r).Sub, req.AmountCents)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create top-up intent", "error", err)
		response.InternalError(w, "failed to create top-up")
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// PaymentWebhook consumes provider callbacks. Signature verification
// replaces bearer auth on this route.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		response.BadRequest(w, "failed to read payload")
		return
	}

	topUp, err := h.gateway.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.WarnContext(r.Context(), "Rejected payment webhook", "error", err)
		response.BadRequest(w, "invalid webhook payload")
		return
	}
	if topUp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.wallet.Credit(r.Context(), topUp.UserID, topUp.AmountCents, topUp.ExternalRef); err != nil {
		logger.ErrorContext(r.Context(), "Failed to credit wallet from webhook", "error", err, "external_ref", topUp.ExternalRef)
		response.InternalError(w, "failed to apply credit")
		return
	}
	w.WriteHeader(http.StatusOK)
}
