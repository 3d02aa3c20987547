package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionMissed     SessionStatus = "missed"
)

func ParseSessionStatus(s string) (SessionStatus, bool) {
	switch SessionStatus(s) {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionMissed:
		return SessionStatus(s), true
	default:
		return "", false
	}
}

type Session struct {
	ID             uuid.UUID     `json:"id"`
	BookingID      uuid.UUID     `json:"booking_id"`
	TutorID        int64         `json:"tutor_id"`
	StudentID      int64         `json:"student_id"`
	ScheduledStart time.Time     `json:"scheduled_start"`
	ScheduledEnd   time.Time     `json:"scheduled_end"`
	ActualStart    *time.Time    `json:"actual_start,omitempty"`
	ActualEnd      *time.Time    `json:"actual_end,omitempty"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (s *Session) ScheduledDuration() time.Duration {
	return s.ScheduledEnd.Sub(s.ScheduledStart)
}

// ActualDuration derives how long the session ran, clamped so a client can
// never be billed for more than scheduled time plus the grace overtime.
func (s *Session) ActualDuration(grace time.Duration) time.Duration {
	if s.ActualStart == nil || s.ActualEnd == nil {
		return 0
	}
	return ClampActualDuration(s.ActualEnd.Sub(*s.ActualStart), s.ScheduledDuration(), grace)
}

// Readiness is the join-gate evaluation for a session at a given instant.
// It is a pure function of (now, scheduledStart, scheduledEnd): no caching,
// no side effects, safe for any number of concurrent readers.
type Readiness struct {
	Joinable bool      `json:"joinable"`
	Reason   string    `json:"reason,omitempty"`
	OpensAt  time.Time `json:"opens_at"`
	ClosesAt time.Time `json:"closes_at"`
}

func (s *Session) ReadinessAt(now time.Time, preJoin, grace time.Duration) Readiness {
	opens := s.ScheduledStart.Add(-preJoin)
	closes := s.ScheduledEnd.Add(grace)

	r := Readiness{OpensAt: opens, ClosesAt: closes}
	switch {
	case now.Before(opens):
		r.Reason = fmt.Sprintf("session opens in %s", formatCountdown(opens.Sub(now)))
	case now.After(closes):
		r.Reason = "the join window for this session has expired"
	default:
		r.Joinable = true
	}
	return r
}

// WindowElapsed reports whether the readiness window has fully passed.
// A scheduled session in this state is a candidate for the missed sweep.
func (s *Session) WindowElapsed(now time.Time, grace time.Duration) bool {
	return now.After(s.ScheduledEnd.Add(grace))
}

// ClampActualDuration bounds a raw start-to-end measurement so a client can
// never report more than scheduled time plus the grace overtime, nor a
// negative duration.
func ClampActualDuration(raw, scheduled, grace time.Duration) time.Duration {
	if raw < 0 {
		return 0
	}
	if max := scheduled + grace; raw > max {
		return max
	}
	return raw
}

func formatCountdown(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= 24*time.Hour {
		days := d / (24 * time.Hour)
		rest := (d % (24 * time.Hour)) / time.Hour
		return fmt.Sprintf("%dd %dh", days, rest)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm %ds", d/time.Minute, (d%time.Minute)/time.Second)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}
