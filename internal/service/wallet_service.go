package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/api/internal/domain"
	"github.com/tutorlink/api/internal/repository"
	"github.com/tutorlink/api/pkg/events"
	"github.com/tutorlink/api/pkg/logger"
)

// WalletService fronts the funds ledger. The atomicity and idempotency
// guarantees live in the repository transactions; this layer adds event
// publication and the top-up notification.
type WalletService interface {
	EnsureAccount(ctx context.Context, userID int64) error
	GetAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error)
	Hold(ctx context.Context, accountID int64, bookingID uuid.UUID, amountCents int64) error
	Refund(ctx context.Context, bookingID uuid.UUID) (int64, int64, error)
	Settle(ctx context.Context, bookingID uuid.UUID, payeeID int64) (int64, error)
	Credit(ctx context.Context, accountID int64, amountCents int64, externalRef string) error
	EntriesByAccount(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, error)
	EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error)
	EarningsTotal(ctx context.Context, tutorID int64) (int64, error)
}

type walletService struct {
	repo     repository.WalletRepository
	notifier NotifyService
	eventBus events.Publisher
}

func NewWalletService(repo repository.WalletRepository, notifier NotifyService, eventBus events.Publisher) WalletService {
	return &walletService{
		repo:     repo,
		notifier: notifier,
		eventBus: eventBus,
	}
}

func (s *walletService) EnsureAccount(ctx context.Context, userID int64) error {
	return s.repo.EnsureAccount(ctx, userID)
}

func (s *walletService) GetAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error) {
	return s.repo.GetAccount(ctx, userID)
}

func (s *walletService) Hold(ctx context.Context, accountID int64, bookingID uuid.UUID, amountCents int64) error {
	if err := s.repo.Hold(ctx, accountID, bookingID, amountCents); err != nil {
		return err
	}
	s.publish(ctx, events.WalletHeld, events.WalletEvent{
		AccountID:   accountID,
		BookingID:   bookingID,
		AmountCents: amountCents,
		EntryType:   string(domain.EntryHold),
		OccurredAt:  time.Now(),
	})
	return nil
}

func (s *walletService) Refund(ctx context.Context, bookingID uuid.UUID) (int64, int64, error) {
	accountID, amount, err := s.repo.Refund(ctx, bookingID)
	if err != nil {
		return 0, 0, err
	}
	s.publish(ctx, events.WalletRefunded, events.WalletEvent{
		AccountID:   accountID,
		BookingID:   bookingID,
		AmountCents: amount,
		EntryType:   string(domain.EntryRefund),
		OccurredAt:  time.Now(),
	})
	return accountID, amount, nil
}

func (s *walletService) Settle(ctx context.Context, bookingID uuid.UUID, payeeID int64) (int64, error) {
	amount, err := s.repo.Settle(ctx, bookingID, payeeID)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.WalletSettled, events.WalletEvent{
		AccountID:   payeeID,
		BookingID:   bookingID,
		AmountCents: amount,
		EntryType:   string(domain.EntryEarning),
		OccurredAt:  time.Now(),
	})
	return amount, nil
}

func (s *walletService) Credit(ctx context.Context, accountID int64, amountCents int64, externalRef string) error {
	applied, err := s.repo.Credit(ctx, accountID, amountCents, externalRef)
	if err != nil {
		return err
	}
	if !applied {
		logger.InfoContext(ctx, "Wallet credit already applied, skipping", "account_id", accountID, "external_ref", externalRef)
		return nil
	}

	if err := s.notifier.Emit(ctx, accountID, domain.NotifyWalletCredited, map[string]any{
		"amount_cents": amountCents,
		"external_ref": externalRef,
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to emit wallet credit notification", "error", err, "account_id", accountID)
	}

	s.publish(ctx, events.WalletCredited, events.WalletEvent{
		AccountID:   accountID,
		AmountCents: amountCents,
		EntryType:   string(domain.EntryCredit),
		ExternalRef: externalRef,
		OccurredAt:  time.Now(),
	})
	return nil
}

func (s *walletService) EntriesByAccount(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.repo.EntriesByAccount(ctx, userID, limit, offset)
}

func (s *walletService) EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error) {
	return s.repo.EntriesByBooking(ctx, bookingID)
}

func (s *walletService) EarningsTotal(ctx context.Context, tutorID int64) (int64, error) {
	return s.repo.EarningsTotal(ctx, tutorID)
}

func (s *walletService) publish(ctx context.Context, subject string, event events.WalletEvent) {
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish wallet event", "error", err, "subject", subject)
	}
}
