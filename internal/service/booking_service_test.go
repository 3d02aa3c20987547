package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/pkg/config"
)

const (
	studentID = int64(1)
	tutorID   = int64(2)

	startingBalance = int64(10000)
	bookingFee      = int64(3000)
)

type testEnv struct {
	users    *memUserRepo
	wallets  *memWalletRepo
	bookings *memBookingRepo
	sessions *memSessionRepo
	notes    *memNotificationRepo
	broker   *mockBroker
	bus      *mockEventBus
	cfg      *config.Config

	clock time.Time

	notifySvc  NotifyService
	walletSvc  WalletService
	sessionSvc *sessionService
	bookingSvc *bookingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    newMemUserRepo(),
		wallets:  newMemWalletRepo(),
		bookings: newMemBookingRepo(),
		sessions: newMemSessionRepo(),
		notes:    newMemNotificationRepo(),
		broker:   newMockBroker(),
		bus:      newMockEventBus(),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		cfg: &config.Config{
			Booking: config.BookingConfig{
				FeeCents:        bookingFee,
				DefaultDuration: time.Hour,
				PreJoinWindow:   10 * time.Minute,
				GraceOvertime:   15 * time.Minute,
			},
		},
	}

	env.notifySvc = NewNotifyService(env.notes, env.broker)
	env.walletSvc = NewWalletService(env.wallets, env.notifySvc, env.bus)
	env.sessionSvc = NewSessionService(env.sessions, env.walletSvc, env.notifySvc, mockIssuer{}, env.bus, env.cfg).(*sessionService)
	env.bookingSvc = NewBookingService(env.bookings, env.users, env.walletSvc, env.sessionSvc, env.notifySvc, env.bus, env.cfg).(*bookingService)

	now := func() time.Time { return env.clock }
	env.sessionSvc.now = now
	env.bookingSvc.now = now

	env.users.add(studentID, "student")
	env.users.add(tutorID, "tutor")
	env.wallets.fund(studentID, startingBalance)
	env.wallets.fund(tutorID, 0)

	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func (env *testEnv) request(t *testing.T, start time.Time) *domain.Booking {
	t.Helper()
	booking, err := env.bookingSvc.Request(context.Background(), studentID, &domain.BookingRequest{
		TutorID: tutorID,
		StartAt: start,
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	return booking
}

func (env *testEnv) balances(t *testing.T, userID int64) (available, held int64) {
	t.Helper()
	a, err := env.walletSvc.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetAccount(%d) error = %v", userID, err)
	}
	return a.AvailableCents, a.HeldCents
}

func (env *testEnv) entryTypes(t *testing.T, bookingID uuid.UUID) []domain.LedgerEntryType {
	t.Helper()
	entries, err := env.walletSvc.EntriesByBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("EntriesByBooking() error = %v", err)
	}
	types := make([]domain.LedgerEntryType, len(entries))
	for i, e := range entries {
		types[i] = e.Type
	}
	return types
}

func assertEntrySequence(t *testing.T, got []domain.LedgerEntryType, want ...domain.LedgerEntryType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ledger sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ledger sequence = %v, want %v", got, want)
		}
	}
}

func TestRequestHoldsFee(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Add(24 * time.Hour)

	booking := env.request(t, start)

	if booking.Status != domain.BookingPending {
		t.Errorf("status = %s, want pending", booking.Status)
	}
	if booking.DurationMinutes != 60 {
		t.Errorf("duration = %d, want the 60 minute default", booking.DurationMinutes)
	}
	if booking.FeeCents != bookingFee {
		t.Errorf("fee = %d, want %d", booking.FeeCents, bookingFee)
	}

	available, held := env.balances(t, studentID)
	if available != startingBalance-bookingFee || held != bookingFee {
		t.Errorf("student balance = %d/%d, want %d/%d", available, held, startingBalance-bookingFee, bookingFee)
	}
	assertEntrySequence(t, env.entryTypes(t, booking.ID), domain.EntryHold)

	if got := env.notes.byType(tutorID, domain.NotifyBookingRequested); len(got) != 1 {
		t.Errorf("tutor booking_requested notifications = %d, want 1", len(got))
	}
}

func TestRequestInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	poorStudent := int64(7)
	env.users.add(poorStudent, "student")
	env.wallets.fund(poorStudent, bookingFee-1)

	_, err := env.bookingSvc.Request(context.Background(), poorStudent, &domain.BookingRequest{
		TutorID: tutorID,
		StartAt: env.clock.Add(24 * time.Hour),
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Request() error = %v, want ErrInsufficientFunds", err)
	}

	available, held := env.balances(t, poorStudent)
	if available != bookingFee-1 || held != 0 {
		t.Errorf("balance moved on a failed hold: %d/%d", available, held)
	}
	if bookings, _ := env.bookings.ListByStudent(context.Background(), poorStudent, 10, 0, nil); len(bookings) != 0 {
		t.Errorf("booking persisted despite failed hold")
	}
}

func TestRequestOverlappingSlot(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.Add(24 * time.Hour)
	env.request(t, start)

	_, err := env.bookingSvc.Request(context.Background(), studentID, &domain.BookingRequest{
		TutorID: tutorID,
		StartAt: start.Add(30 * time.Minute),
	})
	if !errors.Is(err, domain.ErrSlotTaken) {
		t.Fatalf("Request() error = %v, want ErrSlotTaken", err)
	}

	// No second hold was placed.
	available, held := env.balances(t, studentID)
	if available != startingBalance-bookingFee || held != bookingFee {
		t.Errorf("balance = %d/%d after rejected overlap", available, held)
	}
}

func TestRequestPersistFailureRefundsHold(t *testing.T) {
	env := newTestEnv(t)
	env.bookings.failCreate = errors.New("connection reset")

	_, err := env.bookingSvc.Request(context.Background(), studentID, &domain.BookingRequest{
		TutorID: tutorID,
		StartAt: env.clock.Add(24 * time.Hour),
	})
	if err == nil {
		t.Fatal("Request() should fail when persistence fails")
	}

	available, held := env.balances(t, studentID)
	if available != startingBalance || held != 0 {
		t.Errorf("balance = %d/%d, want hold compensated back to %d/0", available, held, startingBalance)
	}
}

func TestRequestRejectsNonTutor(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.bookingSvc.Request(context.Background(), studentID, &domain.BookingRequest{
		TutorID: studentID,
		StartAt: env.clock.Add(24 * time.Hour),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Request() error = %v, want ErrInvalidInput", err)
	}
}

func TestAcceptCreatesSession(t *testing.T) {
	env := newTestEnv(t)
	booking := env.request(t, env.clock.Add(24*time.Hour))

	session, err := env.bookingSvc.Accept(context.Background(), booking.ID, tutorID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if session.BookingID != booking.ID {
		t.Errorf("session booking_id = %s, want %s", session.BookingID, booking.ID)
	}
	if session.Status != domain.SessionScheduled {
		t.Errorf("session status = %s, want scheduled", session.Status)
	}
	if !session.ScheduledEnd.Equal(booking.StartAt.Add(time.Hour)) {
		t.Errorf("scheduled_end = %v, want start+60m", session.ScheduledEnd)
	}

	// Funds stay held until the session completes.
	available, held := env.balances(t, studentID)
	if available != startingBalance-bookingFee || held != bookingFee {
		t.Errorf("balance = %d/%d, want funds still held", available, held)
	}

	if got := env.notes.byType(studentID, domain.NotifyBookingAccepted); len(got) != 1 {
		t.Errorf("student booking_accepted notifications = %d, want 1", len(got))
	}

	// A second accept loses the compare-and-set.
	if _, err := env.bookingSvc.Accept(context.Background(), booking.ID, tutorID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second Accept() error = %v, want ErrInvalidState", err)
	}
}

func TestAcceptRequiresOwningTutor(t *testing.T) {
	env := newTestEnv(t)
	otherTutor := int64(9)
	env.users.add(otherTutor, "tutor")
	booking := env.request(t, env.clock.Add(24*time.Hour))

	if _, err := env.bookingSvc.Accept(context.Background(), booking.ID, otherTutor); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("Accept() error = %v, want ErrNotAuthorized", err)
	}
}

func TestAcceptRevertsWhenSessionCreateFails(t *testing.T) {
	env := newTestEnv(t)
	booking := env.request(t, env.clock.Add(24*time.Hour))
	env.sessions.failCreate = errors.New("disk full")

	if _, err := env.bookingSvc.Accept(context.Background(), booking.ID, tutorID); err == nil {
		t.Fatal("Accept() should fail when session create fails")
	}

	stored, _ := env.bookings.GetByID(context.Background(), booking.ID)
	if stored.Status != domain.BookingPending {
		t.Fatalf("booking status = %s, want reverted to pending", stored.Status)
	}

	// Once the fault clears the booking is still decidable.
	env.sessions.failCreate = nil
	if _, err := env.bookingSvc.Accept(context.Background(), booking.ID, tutorID); err != nil {
		t.Fatalf("retried Accept() error = %v", err)
	}
}

func TestDeclineRefundsHold(t *testing.T) {
	env := newTestEnv(t)
	booking := env.request(t, env.clock.Add(24*time.Hour))

	if err := env.bookingSvc.Decline(context.Background(), booking.ID, tutorID); err != nil {
		t.Fatalf("Decline() error = %v", err)
	}

	available, held := env.balances(t, studentID)
	if available != startingBalance || held != 0 {
		t.Errorf("balance = %d/%d, want full refund to %d/0", available, held, startingBalance)
	}
	assertEntrySequence(t, env.entryTypes(t, booking.ID), domain.EntryHold, domain.EntryRefund)

	if got := env.notes.byType(studentID, domain.NotifyBookingDeclined); len(got) != 1 {
		t.Errorf("student booking_declined notifications = %d, want 1", len(got))
	}
}

func TestCancelRefundsHold(t *testing.T) {
	env := newTestEnv(t)
	booking := env.request(t, env.clock.Add(24*time.Hour))

	if err := env.bookingSvc.Cancel(context.Background(), booking.ID, studentID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	available, held := env.balances(t, studentID)
	if available != startingBalance || held != 0 {
		t.Errorf("balance = %d/%d, want full refund", available, held)
	}
	if got := env.notes.byType(tutorID, domain.NotifyBookingCancelled); len(got) != 1 {
		t.Errorf("tutor booking_cancelled notifications = %d, want 1", len(got))
	}
}

func TestCancelRequiresOwningStudent(t *testing.T) {
	env := newTestEnv(t)
	booking := env.request(t, env.clock.Add(24*time.Hour))

	if err := env.bookingSvc.Cancel(context.Background(), booking.ID, tutorID); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("Cancel() by tutor error = %v, want ErrNotAuthorized", err)
	}
}

func TestExpirePendingSweep(t *testing.T) {
	env := newTestEnv(t)
	stale := env.request(t, env.clock.Add(time.Hour))

	accepted := env.request(t, env.clock.Add(3*time.Hour))
	if _, err := env.bookingSvc.Accept(context.Background(), accepted.ID, tutorID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	env.advance(2 * time.Hour)

	expired, err := env.bookingSvc.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("ExpirePending() error = %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	stored, _ := env.bookings.GetByID(context.Background(), stale.ID)
	if stored.Status != domain.BookingExpired {
		t.Errorf("stale booking status = %s, want expired", stored.Status)
	}
	assertEntrySequence(t, env.entryTypes(t, stale.ID), domain.EntryHold, domain.EntryRefund)

	// Accepted bookings are out of the sweep's reach.
	storedAccepted, _ := env.bookings.GetByID(context.Background(), accepted.ID)
	if storedAccepted.Status != domain.BookingAccepted {
		t.Errorf("accepted booking status = %s after sweep", storedAccepted.Status)
	}

	if got := env.notes.byType(studentID, domain.NotifyBookingExpired); len(got) != 1 {
		t.Errorf("student booking_expired notifications = %d, want 1", len(got))
	}
}

func TestDeclineLosesRaceAgainstExpiry(t *testing.T) {
	env := newTestEnv(t)
	booking := env.request(t, env.clock.Add(time.Hour))

	env.advance(2 * time.Hour)
	if _, err := env.bookingSvc.ExpirePending(context.Background()); err != nil {
		t.Fatalf("ExpirePending() error = %v", err)
	}

	if err := env.bookingSvc.Decline(context.Background(), booking.ID, tutorID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("Decline() after expiry error = %v, want ErrInvalidState", err)
	}

	// Exactly one refund regardless of who resolved the booking.
	assertEntrySequence(t, env.entryTypes(t, booking.ID), domain.EntryHold, domain.EntryRefund)
}

func TestGetBookingAuthorization(t *testing.T) {
	env := newTestEnv(t)
	stranger := int64(42)
	env.users.add(stranger, "student")
	booking := env.request(t, env.clock.Add(24*time.Hour))

	if _, err := env.bookingSvc.Get(context.Background(), booking.ID, stranger); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("Get() by stranger error = %v, want ErrNotAuthorized", err)
	}
	if _, err := env.bookingSvc.Get(context.Background(), uuid.New(), studentID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() unknown id error = %v, want ErrNotFound", err)
	}
}
