package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingDeclined  BookingStatus = "declined"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingAccepted, BookingDeclined, BookingCancelled, BookingExpired:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether the booking can no longer transition.
// accepted is terminal for the booking itself; lifecycle ownership moves
// to the session derived from it.
func (s BookingStatus) Terminal() bool {
	return s != BookingPending
}

type Booking struct {
	ID              uuid.UUID     `json:"id"`
	StudentID       int64         `json:"student_id"`
	TutorID         int64         `json:"tutor_id"`
	StartAt         time.Time     `json:"start_at"`
	DurationMinutes int           `json:"duration_minutes"`
	Note            string        `json:"note"`
	Status          BookingStatus `json:"status"`
	FeeCents        int64         `json:"fee_cents"`
	CreatedAt       time.Time     `json:"created_at"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
}

func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

func (b *Booking) EndAt() time.Time {
	return b.StartAt.Add(b.Duration())
}

type BookingRequest struct {
	TutorID         int64     `json:"tutor_id"`
	StartAt         time.Time `json:"start_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Note            string    `json:"note"`
}

const (
	MinDurationMinutes = 30
	MaxDurationMinutes = 180
	MaxNoteLength      = 500
)

func (r *BookingRequest) Validate(now time.Time) error {
	if r.TutorID <= 0 {
		return fmt.Errorf("%w: tutor_id is required", ErrInvalidInput)
	}
	if !r.StartAt.After(now) {
		return fmt.Errorf("%w: start_at must be in the future", ErrInvalidInput)
	}
	if r.DurationMinutes != 0 && (r.DurationMinutes < MinDurationMinutes || r.DurationMinutes > MaxDurationMinutes) {
		return fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidInput, MinDurationMinutes, MaxDurationMinutes)
	}
	if len(r.Note) > MaxNoteLength {
		return fmt.Errorf("%w: note must be at most %d characters", ErrInvalidInput, MaxNoteLength)
	}
	return nil
}
