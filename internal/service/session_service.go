package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/repository"
	"github.com/tutorlink/api/internal/video"
	"github.com/tutorlink/api/pkg/config"
	"github.com/tutorlink/api/pkg/events"
	"github.com/tutorlink/api/pkg/logger"
)

// SessionService owns the time-gated session state machine:
// scheduled -> in_progress -> completed, or scheduled -> missed.
// Join-readiness is recomputed from the clock on every query; nothing is
// cached, so readers can never observe drift.
type SessionService interface {
	CreateFromBooking(ctx context.Context, booking *domain.Booking) (*domain.Session, error)
	Get(ctx context.Context, id uuid.UUID, callerID int64) (*domain.Session, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error)
	Readiness(ctx context.Context, id uuid.UUID, callerID int64) (*domain.Session, domain.Readiness, error)
	Start(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*domain.Session, error)
	End(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*domain.Session, error)
	JoinToken(ctx context.Context, sessionID uuid.UUID, callerID int64, role string) (string, error)
	// SweepMissed flags scheduled sessions whose window fully elapsed with
	// no start. It settles nothing: a no-show's fee disposition is a policy
	// decision made outside this core.
	SweepMissed(ctx context.Context) (int, error)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	wallet      WalletService
	notifier    NotifyService
	issuer      video.TokenIssuer
	eventBus    events.Publisher
	cfg         *config.Config
	now         func() time.Time
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	wallet WalletService,
	notifier NotifyService,
	issuer video.TokenIssuer,
	eventBus events.Publisher,
	cfg *config.Config,
) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		wallet:      wallet,
		notifier:    notifier,
		issuer:      issuer,
		eventBus:    eventBus,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *sessionService) CreateFromBooking(ctx context.Context, booking *domain.Booking) (*domain.Session, error) {
	// 1:1 with the accepted booking; never re-created.
	if existing, err := s.sessionRepo.GetByBookingID(ctx, booking.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	session := &domain.Session{
		ID:             uuid.New(),
		BookingID:      booking.ID,
		TutorID:        booking.TutorID,
		StudentID:      booking.StudentID,
		ScheduledStart: booking.StartAt,
		ScheduledEnd:   booking.EndAt(),
		Status:         domain.SessionScheduled,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publishSessionEvent(ctx, events.SessionScheduled, session)
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, id uuid.UUID, callerID int64) (*domain.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	if session.TutorID != callerID && session.StudentID != callerID {
		return nil, domain.ErrNotAuthorized
	}
	return session, nil
}

func (s *sessionService) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error) {
	return s.sessionRepo.ListByParticipant(ctx, userID, limit, offset)
}

func (s *sessionService) Readiness(ctx context.Context, id uuid.UUID, callerID int64) (*domain.Session, domain.Readiness, error) {
	session, err := s.Get(ctx, id, callerID)
	if err != nil {
		return nil, domain.Readiness{}, err
	}
	r := session.ReadinessAt(s.now(), s.cfg.Booking.PreJoinWindow, s.cfg.Booking.GraceOvertime)
	return session, r, nil
}

func (s *sessionService) Start(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*domain.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	if session.TutorID != tutorID {
		return nil, domain.ErrNotAuthorized
	}

	now := s.now()
	if r := session.ReadinessAt(now, s.cfg.Booking.PreJoinWindow, s.cfg.Booking.GraceOvertime); !r.Joinable {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotJoinable, r.Reason)
	}

	won, err := s.sessionRepo.Start(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if !won {
		return nil, domain.ErrInvalidState
	}
	session.Status = domain.SessionInProgress
	session.ActualStart = &now

	s.notifyBoth(ctx, session, domain.NotifySessionStarted)
	s.publishSessionEvent(ctx, events.SessionStarted, session)
	return session, nil
}

func (s *sessionService) End(ctx context.Context, sessionID uuid.UUID, tutorID int64) (*domain.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	if session.TutorID != tutorID {
		return nil, domain.ErrNotAuthorized
	}

	now := s.now()
	won, err := s.sessionRepo.End(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if !won {
		return nil, domain.ErrInvalidState
	}
	session.Status = domain.SessionCompleted
	session.ActualEnd = &now

	if _, err := s.wallet.Settle(ctx, session.BookingID, session.TutorID); err != nil {
		// The completion and the settlement are one unit; undo the
		// transition if the funds could not move.
		if revertErr := s.sessionRepo.RevertEnd(ctx, sessionID); revertErr != nil {
			logger.ErrorContext(ctx, "Failed to revert session end after settle failure",
				"error", revertErr, "session_id", sessionID)
		}
		return nil, fmt.Errorf("failed to settle session fee: %w", err)
	}

	if err := s.notifier.Emit(ctx, session.StudentID, domain.NotifySessionCompleted, s.sessionPayload(session)); err != nil {
		logger.ErrorContext(ctx, "Failed to emit session notification", "error", err, "session_id", session.ID)
	}
	s.publishSessionEvent(ctx, events.SessionCompleted, session)
	return session, nil
}

func (s *sessionService) JoinToken(ctx context.Context, sessionID uuid.UUID, callerID int64, role string) (string, error) {
	session, err := s.Get(ctx, sessionID, callerID)
	if err != nil {
		return "", err
	}

	r := session.ReadinessAt(s.now(), s.cfg.Booking.PreJoinWindow, s.cfg.Booking.GraceOvertime)
	if !r.Joinable {
		return "", fmt.Errorf("%w: %s", domain.ErrNotJoinable, r.Reason)
	}

	return s.issuer.IssueJoinToken(sessionID, role, r.ClosesAt)
}

func (s *sessionService) SweepMissed(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Booking.GraceOvertime)
	stale, err := s.sessionRepo.ListScheduledWindowElapsed(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list elapsed sessions: %w", err)
	}

	missed := 0
	for i := range stale {
		session := &stale[i]
		won, err := s.sessionRepo.MarkMissed(ctx, session.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mark session missed", "error", err, "session_id", session.ID)
			continue
		}
		if !won {
			continue
		}
		session.Status = domain.SessionMissed
		missed++

		// No refund, no settle: surfaced for manual resolution.
		logger.WarnContext(ctx, "Session missed, held fee requires manual resolution",
			"session_id", session.ID, "booking_id", session.BookingID)
		s.notifyBoth(ctx, session, domain.NotifySessionMissed)
		s.publishSessionEvent(ctx, events.SessionMissed, session)
	}
	return missed, nil
}

func (s *sessionService) notifyBoth(ctx context.Context, session *domain.Session, typ domain.NotificationType) {
	payload := s.sessionPayload(session)
	for _, recipientID := range []int64{session.StudentID, session.TutorID} {
		if err := s.notifier.Emit(ctx, recipientID, typ, payload); err != nil {
			logger.ErrorContext(ctx, "Failed to emit session notification", "error", err, "session_id", session.ID, "type", typ)
		}
	}
}

func (s *sessionService) sessionPayload(session *domain.Session) map[string]any {
	payload := map[string]any{
		"session_id":      session.ID,
		"booking_id":      session.BookingID,
		"scheduled_start": session.ScheduledStart,
		"status":          session.Status,
	}
	if session.Status == domain.SessionCompleted {
		payload["actual_duration_minutes"] = int(session.ActualDuration(s.cfg.Booking.GraceOvertime).Minutes())
	}
	return payload
}

func (s *sessionService) publishSessionEvent(ctx context.Context, subject string, session *domain.Session) {
	event := events.SessionEvent{
		SessionID:  session.ID,
		BookingID:  session.BookingID,
		StudentID:  session.StudentID,
		TutorID:    session.TutorID,
		Status:     string(session.Status),
		OccurredAt: time.Now(),
	}
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish session event", "error", err, "subject", subject, "session_id", session.ID)
	}
}
