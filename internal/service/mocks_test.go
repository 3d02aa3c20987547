package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/domain"
)

// In-memory doubles for the repository layer. The wallet double carries the
// real ledger semantics (balance checks, idempotent holds, unresolved-hold
// resolution) so lifecycle tests exercise the same funds invariants as the
// SQL implementation.

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*domain.User), nextID: 1}
}

func (r *memUserRepo) Create(_ context.Context, email, passwordHash, name, role string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &domain.User{
		ID:           r.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	r.users[u.ID] = u
	r.nextID++
	return u, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) add(id int64, role string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &domain.User{
		ID:    id,
		Email: fmt.Sprintf("user%d@example.com", id),
		Name:  fmt.Sprintf("User %d", id),
		Role:  role,
	}
	r.users[id] = u
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return u
}

type memWalletRepo struct {
	mu       sync.Mutex
	accounts map[int64]*domain.WalletAccount
	entries  []domain.LedgerEntry
	nextID   int64

	failSettle error // injected fault for compensation tests
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{accounts: make(map[int64]*domain.WalletAccount), nextID: 1}
}

func (r *memWalletRepo) EnsureAccount(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[userID]; !ok {
		r.accounts[userID] = &domain.WalletAccount{UserID: userID}
	}
	return nil
}

func (r *memWalletRepo) GetAccount(_ context.Context, userID int64) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memWalletRepo) append(accountID int64, bookingID *uuid.UUID, typ domain.LedgerEntryType, amount int64, ref string) {
	r.entries = append(r.entries, domain.LedgerEntry{
		ID:          r.nextID,
		AccountID:   accountID,
		BookingID:   bookingID,
		Type:        typ,
		AmountCents: amount,
		ExternalRef: ref,
		CreatedAt:   time.Now(),
	})
	r.nextID++
}

func (r *memWalletRepo) bookingEntries(bookingID uuid.UUID) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.BookingID != nil && *e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out
}

func (r *memWalletRepo) Hold(_ context.Context, userID int64, bookingID uuid.UUID, amountCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, e := range r.bookingEntries(bookingID) {
		if e.Type == domain.EntryHold {
			return domain.ErrDuplicateHold
		}
	}
	if a.AvailableCents < amountCents {
		return domain.ErrInsufficientFunds
	}
	a.AvailableCents -= amountCents
	a.HeldCents += amountCents
	r.append(userID, &bookingID, domain.EntryHold, amountCents, "")
	return nil
}

func (r *memWalletRepo) unresolvedHold(bookingID uuid.UUID, notFound error) (int64, int64, error) {
	entries := r.bookingEntries(bookingID)
	if domain.ResolveHold(entries) != domain.HoldOpen {
		return 0, 0, notFound
	}
	for _, e := range entries {
		if e.Type == domain.EntryHold {
			return e.AccountID, e.AmountCents, nil
		}
	}
	return 0, 0, notFound
}

func (r *memWalletRepo) Refund(_ context.Context, bookingID uuid.UUID) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accountID, amount, err := r.unresolvedHold(bookingID, domain.ErrNothingToRefund)
	if err != nil {
		return 0, 0, err
	}
	a := r.accounts[accountID]
	a.HeldCents -= amount
	a.AvailableCents += amount
	r.append(accountID, &bookingID, domain.EntryRefund, amount, "")
	return accountID, amount, nil
}

func (r *memWalletRepo) Settle(_ context.Context, bookingID uuid.UUID, payeeID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSettle != nil {
		return 0, r.failSettle
	}
	payerID, amount, err := r.unresolvedHold(bookingID, domain.ErrNothingToSettle)
	if err != nil {
		return 0, err
	}
	payee, ok := r.accounts[payeeID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	r.accounts[payerID].HeldCents -= amount
	payee.AvailableCents += amount
	r.append(payeeID, &bookingID, domain.EntryEarning, amount, "")
	return amount, nil
}

func (r *memWalletRepo) Credit(_ context.Context, userID int64, amountCents int64, externalRef string) (bool, error) {
	if amountCents <= 0 {
		return false, fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if externalRef != "" {
		for _, e := range r.entries {
			if e.Type == domain.EntryCredit && e.ExternalRef == externalRef {
				return false, nil
			}
		}
	}
	a.AvailableCents += amountCents
	r.append(userID, nil, domain.EntryCredit, amountCents, externalRef)
	return true, nil
}

func (r *memWalletRepo) EntriesByBooking(_ context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookingEntries(bookingID), nil
}

func (r *memWalletRepo) EntriesByAccount(_ context.Context, userID int64, _, _ int) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.AccountID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memWalletRepo) EarningsTotal(_ context.Context, tutorID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, e := range r.entries {
		if e.AccountID == tutorID && e.Type == domain.EntryEarning {
			total += e.AmountCents
		}
	}
	return total, nil
}

func (r *memWalletRepo) fund(userID int64, cents int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[userID]; !ok {
		r.accounts[userID] = &domain.WalletAccount{UserID: userID}
	}
	r.accounts[userID].AvailableCents += cents
}

type memBookingRepo struct {
	mu         sync.Mutex
	bookings   map[uuid.UUID]*domain.Booking
	failCreate error
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{bookings: make(map[uuid.UUID]*domain.Booking)}
}

func (r *memBookingRepo) Create(_ context.Context, b *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	b.CreatedAt = time.Now()
	copied := *b
	r.bookings[b.ID] = &copied
	return nil
}

func (r *memBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (r *memBookingRepo) ListByStudent(_ context.Context, studentID int64, _, _ int, status *domain.BookingStatus) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.StudentID == studentID && (status == nil || b.Status == *status) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) ListByTutor(_ context.Context, tutorID int64, _, _ int, status *domain.BookingStatus) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.TutorID == tutorID && (status == nil || b.Status == *status) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) Transition(_ context.Context, id uuid.UUID, from, to domain.BookingStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	now := time.Now()
	b.DecidedAt = &now
	return true, nil
}

func (r *memBookingRepo) HasOverlap(_ context.Context, tutorID int64, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.TutorID != tutorID {
			continue
		}
		if b.Status != domain.BookingPending && b.Status != domain.BookingAccepted {
			continue
		}
		if b.StartAt.Before(end) && b.EndAt().After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memBookingRepo) ListPendingStartedBefore(_ context.Context, cutoff time.Time, _ int) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.Status == domain.BookingPending && b.StartAt.Before(cutoff) {
			out = append(out, *b)
		}
	}
	return out, nil
}

type memSessionRepo struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]*domain.Session
	failCreate error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	copied := *s
	r.sessions[s.ID] = &copied
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) GetByBookingID(_ context.Context, bookingID uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.BookingID == bookingID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) ListByParticipant(_ context.Context, userID int64, _, _ int) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.TutorID == userID || s.StudentID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Start(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != domain.SessionScheduled {
		return false, nil
	}
	s.Status = domain.SessionInProgress
	s.ActualStart = &at
	return true, nil
}

func (r *memSessionRepo) End(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != domain.SessionInProgress {
		return false, nil
	}
	s.Status = domain.SessionCompleted
	s.ActualEnd = &at
	return true, nil
}

func (r *memSessionRepo) RevertEnd(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != domain.SessionCompleted {
		return errors.New("nothing to revert")
	}
	s.Status = domain.SessionInProgress
	s.ActualEnd = nil
	return nil
}

func (r *memSessionRepo) MarkMissed(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != domain.SessionScheduled {
		return false, nil
	}
	s.Status = domain.SessionMissed
	return true, nil
}

func (r *memSessionRepo) ListScheduledWindowElapsed(_ context.Context, windowEnd time.Time, _ int) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.Status == domain.SessionScheduled && s.ScheduledEnd.Before(windowEnd) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type memNotificationRepo struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{}
}

func (r *memNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.CreatedAt = time.Now()
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r *memNotificationRepo) ListByRecipient(_ context.Context, recipientID int64, _, _ int, unreadOnly bool) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *memNotificationRepo) MarkAllRead(_ context.Context, recipientID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for i := range r.notifications {
		if r.notifications[i].RecipientID == recipientID && !r.notifications[i].IsRead {
			r.notifications[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *memNotificationRepo) CountUnread(_ context.Context, recipientID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memNotificationRepo) byType(recipientID int64, typ domain.NotificationType) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type mockBroker struct {
	mu        sync.Mutex
	published map[int64][][]byte
	failWith  error
}

func newMockBroker() *mockBroker {
	return &mockBroker{published: make(map[int64][][]byte)}
}

func (b *mockBroker) Publish(_ context.Context, recipientID int64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.published[recipientID] = append(b.published[recipientID], payload)
	return nil
}

func (b *mockBroker) Subscribe(_ context.Context, _ int64) (<-chan []byte, func(), error) {
	ch := make(chan []byte)
	close(ch)
	return ch, func() {}, nil
}

func (b *mockBroker) Close() error { return nil }

type mockEventBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	subject string
	data    interface{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{}
}

func (b *mockEventBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{subject: subject, data: data})
	return nil
}

func (b *mockEventBus) Close() error { return nil }

func (b *mockEventBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.subject
	}
	return out
}

type mockIssuer struct{}

func (mockIssuer) IssueJoinToken(sessionID uuid.UUID, role string, _ time.Time) (string, error) {
	return fmt.Sprintf("token:%s:%s", sessionID, role), nil
}
