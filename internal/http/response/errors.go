package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tutorlink/api/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeInvalidState      = "INVALID_STATE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeDuplicateHold     = "DUPLICATE_HOLD"
	CodeNothingToRefund   = "NOTHING_TO_REFUND"
	CodeNothingToSettle   = "NOTHING_TO_SETTLE"
	CodeNotJoinable       = "NOT_JOINABLE"
	CodeSlotTaken         = "SLOT_TAKEN"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func Conflict(w http.ResponseWriter, message string, code string) {
	WriteError(w, http.StatusConflict, message, code)
}

// DomainError maps a service error to its HTTP status and stable code.
// Unknown errors become a generic 500 so internals never leak to clients.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "resource not found")
	case errors.Is(err, domain.ErrNotAuthorized):
		Forbidden(w, "you do not have access to this resource")
	case errors.Is(err, domain.ErrInvalidInput):
		BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		Conflict(w, "the resource is not in a state that allows this action", CodeInvalidState)
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusUnprocessableEntity, "insufficient available balance", CodeInsufficientFunds)
	case errors.Is(err, domain.ErrDuplicateHold):
		Conflict(w, "a hold already exists for this booking", CodeDuplicateHold)
	case errors.Is(err, domain.ErrNothingToRefund):
		Conflict(w, "no unresolved hold to refund", CodeNothingToRefund)
	case errors.Is(err, domain.ErrNothingToSettle):
		Conflict(w, "no unresolved hold to settle", CodeNothingToSettle)
	case errors.Is(err, domain.ErrNotJoinable):
		Conflict(w, err.Error(), CodeNotJoinable)
	case errors.Is(err, domain.ErrSlotTaken):
		Conflict(w, "the tutor already has a booking overlapping this slot", CodeSlotTaken)
	default:
		InternalError(w, "internal server error")
	}
}
