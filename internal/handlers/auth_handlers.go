package handlers

import (
	"net/http"

	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/http/response"
)

type authResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	user, token, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user, AccessToken: token})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	user, token, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		if err == domain.ErrNotAuthorized {
			response.Unauthorized(w, "invalid email or password")
			return
		}
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, AccessToken: token})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	user, err := h.auth.GetUser(r.Context(), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
