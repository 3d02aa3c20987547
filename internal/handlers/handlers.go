package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/http/response"
	"github.com/tutorlink/api/internal/payments"
	"github.com/tutorlink/api/internal/service"
	"github.com/tutorlink/api/pkg/auth"
	"github.com/tutorlink/api/pkg/config"
	"github.com/tutorlink/api/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// Handlers wires the service layer to the HTTP surface.
type Handlers struct {
	auth     service.AuthService
	bookings service.BookingService
	sessions service.SessionService
	wallet   service.WalletService
	notify   service.NotifyService
	gateway  payments.Gateway
	cfg      *config.Config
}

func New(
	authSvc service.AuthService,
	bookings service.BookingService,
	sessions service.SessionService,
	wallet service.WalletService,
	notify service.NotifyService,
	gateway payments.Gateway,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		auth:     authSvc,
		bookings: bookings,
		sessions: sessions,
		wallet:   wallet,
		notify:   notify,
		gateway:  gateway,
		cfg:      cfg,
	}
}

// Routes mounts all API routes on the given router.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/me", h.Me)

			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings", h.ListBookings)
			r.Get("/bookings/{id}", h.GetBooking)
			r.Post("/bookings/{id}/accept", h.AcceptBooking)
			r.Post("/bookings/{id}/decline", h.DeclineBooking)
			r.Post("/bookings/{id}/cancel", h.CancelBooking)

			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/{id}", h.GetSession)
			r.Get("/sessions/{id}/readiness", h.SessionReadiness)
			r.Post("/sessions/{id}/start", h.StartSession)
			r.Post("/sessions/{id}/end", h.EndSession)
			r.Post("/sessions/{id}/join-token", h.SessionJoinToken)

			r.Get("/wallet", h.GetWallet)
			r.Get("/wallet/entries", h.ListWalletEntries)
			r.Get("/wallet/earnings", h.GetEarnings)
			r.Post("/wallet/top-up", h.CreateTopUp)

			r.Get("/notifications", h.ListNotifications)
			r.Get("/notifications/unread-count", h.UnreadCount)
			r.Post("/notifications/read-all", h.MarkNotificationsRead)
			r.Get("/notifications/stream", h.StreamNotifications)
		})
	})
}

// RequireAuth validates the bearer token and stores the claims in the
// request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(w, "missing bearer token")
			return
		}

		claims, err := auth.Parse(strings.TrimPrefix(header, "Bearer "), h.cfg.Auth.JWTSecret)
		if err != nil {
			response.Unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
