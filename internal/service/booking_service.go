package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/repository"
	"github.com/tutorlink/api/pkg/config"
	"github.com/tutorlink/api/pkg/events"
	"github.com/tutorlink/api/pkg/logger"
)

// BookingService owns the booking state machine:
// pending -> accepted | declined | cancelled | expired.
// Every transition is a compare-and-set on the stored status; when a manual
// decision races the expiry sweep, the first writer wins and the loser gets
// ErrInvalidState.
type BookingService interface {
	Request(ctx context.Context, studentID int64, req *domain.BookingRequest) (*domain.Booking, error)
	Get(ctx context.Context, id uuid.UUID, callerID int64) (*domain.Booking, error)
	ListForStudent(ctx context.Context, studentID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error)
	ListForTutor(ctx context.Context, tutorID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error)
	Accept(ctx context.Context, bookingID uuid.UUID, tutorID int64) (*domain.Session, error)
	Decline(ctx context.Context, bookingID uuid.UUID, tutorID int64) error
	Cancel(ctx context.Context, bookingID uuid.UUID, studentID int64) error
	// ExpirePending sweeps pending bookings whose slot has passed without a
	// decision; safe to run concurrently with manual accept/decline.
	ExpirePending(ctx context.Context) (int, error)
}

type bookingService struct {
	bookingRepo repository.BookingRepository
	userRepo    repository.UserRepository
	wallet      WalletService
	sessions    SessionService
	notifier    NotifyService
	eventBus    events.Publisher
	cfg         *config.Config
	now         func() time.Time
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
	wallet WalletService,
	sessions SessionService,
	notifier NotifyService,
	eventBus events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		wallet:      wallet,
		sessions:    sessions,
		notifier:    notifier,
		eventBus:    eventBus,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *bookingService) Request(ctx context.Context, studentID int64, req *domain.BookingRequest) (*domain.Booking, error) {
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}

	tutor, err := s.userRepo.FindByID(ctx, req.TutorID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tutor: %w", err)
	}
	if tutor == nil || tutor.Role != "tutor" {
		return nil, fmt.Errorf("%w: no such tutor", domain.ErrInvalidInput)
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = int(s.cfg.Booking.DefaultDuration.Minutes())
	}

	booking := &domain.Booking{
		ID:              uuid.New(),
		StudentID:       studentID,
		TutorID:         req.TutorID,
		StartAt:         req.StartAt,
		DurationMinutes: duration,
		Note:            req.Note,
		Status:          domain.BookingPending,
		FeeCents:        s.cfg.Booking.FeeCents,
	}

	overlap, err := s.bookingRepo.HasOverlap(ctx, booking.TutorID, booking.StartAt, booking.EndAt())
	if err != nil {
		return nil, fmt.Errorf("failed to check tutor availability: %w", err)
	}
	if overlap {
		return nil, domain.ErrSlotTaken
	}

	// The hold is keyed on the booking ID, so it is placed before the row
	// exists; a failed persist is compensated below.
	if err := s.wallet.Hold(ctx, studentID, booking.ID, booking.FeeCents); err != nil {
		return nil, err
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		if _, _, refundErr := s.wallet.Refund(ctx, booking.ID); refundErr != nil {
			logger.ErrorContext(ctx, "Failed to compensate hold after booking create failure",
				"error", refundErr, "booking_id", booking.ID)
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.notify(ctx, booking.TutorID, domain.NotifyBookingRequested, booking)
	s.publishBookingEvent(ctx, events.BookingRequested, booking)

	return booking, nil
}

func (s *bookingService) Get(ctx context.Context, id uuid.UUID, callerID int64) (*domain.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.ErrNotFound
	}
	if booking.StudentID != callerID && booking.TutorID != callerID {
		return nil, domain.ErrNotAuthorized
	}
	return booking, nil
}

func (s *bookingService) ListForStudent(ctx context.Context, studentID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	return s.bookingRepo.ListByStudent(ctx, studentID, limit, offset, status)
}

func (s *bookingService) ListForTutor(ctx context.Context, tutorID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	return s.bookingRepo.ListByTutor(ctx, tutorID, limit, offset, status)
}

func (s *bookingService) Accept(ctx context.Context, bookingID uuid.UUID, tutorID int64) (*domain.Session, error) {
	booking, err := s.loadFor(ctx, bookingID, tutorID, ownerTutor)
	if err != nil {
		return nil, err
	}

	won, err := s.bookingRepo.Transition(ctx, bookingID, domain.BookingPending, domain.BookingAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to accept booking: %w", err)
	}
	if !won {
		return nil, domain.ErrInvalidState
	}
	booking.Status = domain.BookingAccepted

	session, err := s.sessions.CreateFromBooking(ctx, booking)
	if err != nil {
		// Roll the transition back as a unit so the booking stays decidable.
		if _, revertErr := s.bookingRepo.Transition(ctx, bookingID, domain.BookingAccepted, domain.BookingPending); revertErr != nil {
			logger.ErrorContext(ctx, "Failed to revert accept after session create failure",
				"error", revertErr, "booking_id", bookingID)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.notify(ctx, booking.StudentID, domain.NotifyBookingAccepted, booking)
	s.publishBookingEvent(ctx, events.BookingAccepted, booking)

	return session, nil
}

func (s *bookingService) Decline(ctx context.Context, bookingID uuid.UUID, tutorID int64) error {
	booking, err := s.loadFor(ctx, bookingID, tutorID, ownerTutor)
	if err != nil {
		return err
	}
	if err := s.resolve(ctx, booking, domain.BookingDeclined); err != nil {
		return err
	}

	s.notify(ctx, booking.StudentID, domain.NotifyBookingDeclined, booking)
	s.publishBookingEvent(ctx, events.BookingDeclined, booking)
	return nil
}

func (s *bookingService) Cancel(ctx context.Context, bookingID uuid.UUID, studentID int64) error {
	booking, err := s.loadFor(ctx, bookingID, studentID, ownerStudent)
	if err != nil {
		return err
	}
	if err := s.resolve(ctx, booking, domain.BookingCancelled); err != nil {
		return err
	}

	s.notify(ctx, booking.TutorID, domain.NotifyBookingCancelled, booking)
	s.publishBookingEvent(ctx, events.BookingCancelled, booking)
	return nil
}

func (s *bookingService) ExpirePending(ctx context.Context) (int, error) {
	stale, err := s.bookingRepo.ListPendingStartedBefore(ctx, s.now(), 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale bookings: %w", err)
	}

	expired := 0
	for i := range stale {
		booking := &stale[i]
		if err := s.resolve(ctx, booking, domain.BookingExpired); err != nil {
			// A manual decision won the race; nothing to do for this one.
			if err == domain.ErrInvalidState {
				continue
			}
			logger.ErrorContext(ctx, "Failed to expire booking", "error", err, "booking_id", booking.ID)
			continue
		}
		expired++

		s.notify(ctx, booking.StudentID, domain.NotifyBookingExpired, booking)
		s.publishBookingEvent(ctx, events.BookingExpired, booking)
	}
	return expired, nil
}

// resolve performs a pending -> terminal transition that returns the held
// fee: decline, cancel and expire all share this path.
func (s *bookingService) resolve(ctx context.Context, booking *domain.Booking, to domain.BookingStatus) error {
	won, err := s.bookingRepo.Transition(ctx, booking.ID, domain.BookingPending, to)
	if err != nil {
		return fmt.Errorf("failed to transition booking: %w", err)
	}
	if !won {
		return domain.ErrInvalidState
	}
	booking.Status = to

	if _, _, err := s.wallet.Refund(ctx, booking.ID); err != nil {
		if err == domain.ErrNothingToRefund {
			logger.WarnContext(ctx, "Booking resolved with no hold to refund", "booking_id", booking.ID)
			return nil
		}
		// The transition already committed; surface the refund failure
		// loudly rather than leaving it silent.
		logger.ErrorContext(ctx, "Refund failed after booking transition", "error", err, "booking_id", booking.ID)
		return fmt.Errorf("failed to refund booking hold: %w", err)
	}
	return nil
}

type ownerKind int

const (
	ownerTutor ownerKind = iota
	ownerStudent
)

func (s *bookingService) loadFor(ctx context.Context, bookingID uuid.UUID, callerID int64, kind ownerKind) (*domain.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.ErrNotFound
	}

	switch kind {
	case ownerTutor:
		if booking.TutorID != callerID {
			return nil, domain.ErrNotAuthorized
		}
	case ownerStudent:
		if booking.StudentID != callerID {
			return nil, domain.ErrNotAuthorized
		}
	}
	return booking, nil
}

func (s *bookingService) notify(ctx context.Context, recipientID int64, typ domain.NotificationType, booking *domain.Booking) {
	payload := map[string]any{
		"booking_id": booking.ID,
		"student_id": booking.StudentID,
		"tutor_id":   booking.TutorID,
		"start_at":   booking.StartAt,
		"status":     booking.Status,
	}
	if err := s.notifier.Emit(ctx, recipientID, typ, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to emit booking notification", "error", err, "booking_id", booking.ID, "type", typ)
	}
}

func (s *bookingService) publishBookingEvent(ctx context.Context, subject string, booking *domain.Booking) {
	event := events.BookingEvent{
		BookingID:  booking.ID,
		StudentID:  booking.StudentID,
		TutorID:    booking.TutorID,
		StartAt:    booking.StartAt,
		Status:     string(booking.Status),
		OccurredAt: time.Now(),
	}
	if student, err := s.userRepo.FindByID(ctx, booking.StudentID); err == nil && student != nil {
		event.StudentEmail = student.Email
	}
	if tutor, err := s.userRepo.FindByID(ctx, booking.TutorID); err == nil && tutor != nil {
		event.TutorEmail = tutor.Email
	}

	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking event", "error", err, "subject", subject, "booking_id", booking.ID)
	}
}
