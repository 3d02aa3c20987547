package handlers

import (
	"fmt"
	"net/http"

	"github.com/tutorlink/api/internal/http/response"
	"github.com/tutorlink/api/pkg/logger"
)

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := h.notify.List(r.Context(), claimsFrom(r).Sub, limit, offset, unreadOnly)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.notify.CountUnread(r.Context(), claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

func (h *Handlers) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notify.MarkAllRead(r.Context(), claimsFrom(r).Sub); err != nil {
		response.DomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StreamNotifications pushes real-time notifications over SSE until the
// client disconnects.
func (h *Handlers) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, "streaming not supported")
		return
	}

	claims := claimsFrom(r)
	messages, cancel, err := h.notify.Stream(r.Context(), claims.Sub)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to subscribe to notification stream", "error", err, "user_id", claims.Sub)
		response.InternalError(w, "failed to open stream")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-messages:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
