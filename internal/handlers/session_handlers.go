package handlers

import (
	"net/http"

	"github.com/tutorlink/api/internal/http/response"
)

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	sessions, err := h.sessions.ListForUser(r.Context(), claimsFrom(r).Sub, limit, offset)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return
	}

	session, err := h.sessions.Get(r.Context(), id, claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) SessionReadiness(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return
	}

	session, readiness, err := h.sessions.Readiness(r.Context(), id, claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   session,
		"readiness": readiness,
	})
}

func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return
	}

	session, err := h.sessions.Start(r.Context(), id, claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return
	}

	session, err := h.sessions.End(r.Context(), id, claimsFrom(r).Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) SessionJoinToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		response.BadRequest(w, "invalid session id")
		return
	}

	claims := claimsFrom(r)
	token, err := h.sessions.JoinToken(r.Context(), id, claims.Sub, claims.Role)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"join_token": token})
}
