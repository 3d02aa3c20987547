package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlink/api/internal/domain"
)

// WalletRepository owns the funds ledger. Every mutation runs as a single
// transaction with the affected account rows locked, so the available+held
// invariant is never observable mid-flight. Serialization is per account
// (row locks), not global.
type WalletRepository interface {
	EnsureAccount(ctx context.Context, userID int64) error
	GetAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error)
	Hold(ctx context.Context, userID int64, bookingID uuid.UUID, amountCents int64) error
	Refund(ctx context.Context, bookingID uuid.UUID) (accountID int64, amountCents int64, err error)
	Settle(ctx context.Context, bookingID uuid.UUID, payeeID int64) (amountCents int64, err error)
	Credit(ctx context.Context, userID int64, amountCents int64, externalRef string) (applied bool, err error)
	EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error)
	EntriesByAccount(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, error)
	EarningsTotal(ctx context.Context, tutorID int64) (int64, error)
}

type walletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) WalletRepository {
	return &walletRepository{pool: pool}
}

const entryCols = `id, account_id, booking_id, type, amount_cents, COALESCE(external_ref, ''), created_at`

func (r *walletRepository) EnsureAccount(ctx context.Context, userID int64) error {
	const q = `INSERT INTO wallet_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID)
	return err
}

func (r *walletRepository) GetAccount(ctx context.Context, userID int64) (*domain.WalletAccount, error) {
	const q = `SELECT user_id, available_cents, held_cents, updated_at FROM wallet_accounts WHERE user_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var a domain.WalletAccount
	err := r.pool.QueryRow(ctx, q, userID).Scan(&a.UserID, &a.AvailableCents, &a.HeldCents, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *walletRepository) Hold(ctx context.Context, userID int64, bookingID uuid.UUID, amountCents int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var available int64
		err := tx.QueryRow(ctx,
			`SELECT available_cents FROM wallet_accounts WHERE user_id=$1 FOR UPDATE`, userID,
		).Scan(&available)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		var held bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE booking_id=$1 AND type='hold')`, bookingID,
		).Scan(&held); err != nil {
			return err
		}
		if held {
			return domain.ErrDuplicateHold
		}

		if available < amountCents {
			return domain.ErrInsufficientFunds
		}

		if _, err := tx.Exec(ctx,
			`UPDATE wallet_accounts
			 SET available_cents = available_cents - $2, held_cents = held_cents + $2, updated_at = now()
			 WHERE user_id=$1`, userID, amountCents,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (account_id, booking_id, type, amount_cents) VALUES ($1, $2, 'hold', $3)`,
			userID, bookingID, amountCents,
		)
		return err
	})
}

func (r *walletRepository) Refund(ctx context.Context, bookingID uuid.UUID) (int64, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var accountID, amount int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		accountID, amount, err = lockUnresolvedHold(ctx, tx, bookingID, domain.ErrNothingToRefund)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE wallet_accounts
			 SET held_cents = held_cents - $2, available_cents = available_cents + $2, updated_at = now()
			 WHERE user_id=$1`, accountID, amount,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (account_id, booking_id, type, amount_cents) VALUES ($1, $2, 'refund', $3)`,
			accountID, bookingID, amount,
		)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return accountID, amount, nil
}

func (r *walletRepository) Settle(ctx context.Context, bookingID uuid.UUID, payeeID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var amount int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		payerID, held, err := lockUnresolvedHold(ctx, tx, bookingID, domain.ErrNothingToSettle)
		if err != nil {
			return err
		}
		amount = held

		// Lock the payee row too; ordered by user_id to avoid deadlocks.
		if _, err := tx.Exec(ctx,
			`SELECT user_id FROM wallet_accounts WHERE user_id = ANY($1::bigint[]) ORDER BY user_id FOR UPDATE`,
			[]int64{payerID, payeeID},
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE wallet_accounts SET held_cents = held_cents - $2, updated_at = now() WHERE user_id=$1`,
			payerID, amount,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE wallet_accounts SET available_cents = available_cents + $2, updated_at = now() WHERE user_id=$1`,
			payeeID, amount,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (account_id, booking_id, type, amount_cents) VALUES ($1, $2, 'earning', $3)`,
			payeeID, bookingID, amount,
		)
		return err
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// lockUnresolvedHold finds the hold entry for a booking, locks the payer's
// account row, and verifies no refund/earning has consumed the hold yet.
func lockUnresolvedHold(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, notFound error) (int64, int64, error) {
	var accountID, amount int64
	err := tx.QueryRow(ctx,
		`SELECT account_id, amount_cents FROM ledger_entries WHERE booking_id=$1 AND type='hold'`, bookingID,
	).Scan(&accountID, &amount)
	if err == pgx.ErrNoRows {
		return 0, 0, notFound
	}
	if err != nil {
		return 0, 0, err
	}

	if _, err := tx.Exec(ctx,
		`SELECT user_id FROM wallet_accounts WHERE user_id=$1 FOR UPDATE`, accountID,
	); err != nil {
		return 0, 0, err
	}

	var resolved bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE booking_id=$1 AND type IN ('refund', 'earning'))`, bookingID,
	).Scan(&resolved); err != nil {
		return 0, 0, err
	}
	if resolved {
		return 0, 0, notFound
	}
	return accountID, amount, nil
}

func (r *walletRepository) Credit(ctx context.Context, userID int64, amountCents int64, externalRef string) (bool, error) {
	if amountCents <= 0 {
		return false, fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	applied := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO ledger_entries (account_id, type, amount_cents, external_ref)
			 VALUES ($1, 'credit', $2, $3)
			 ON CONFLICT (external_ref) WHERE external_ref IS NOT NULL DO NOTHING`,
			userID, amountCents, externalRef,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Same gateway reference already applied.
			return nil
		}
		applied = true

		_, err = tx.Exec(ctx,
			`UPDATE wallet_accounts SET available_cents = available_cents + $2, updated_at = now() WHERE user_id=$1`,
			userID, amountCents,
		)
		return err
	})
	return applied, err
}

func (r *walletRepository) EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error) {
	q := `SELECT ` + entryCols + ` FROM ledger_entries WHERE booking_id=$1 ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *walletRepository) EntriesByAccount(ctx context.Context, userID int64, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + entryCols + ` FROM ledger_entries WHERE account_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *walletRepository) EarningsTotal(ctx context.Context, tutorID int64) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE account_id=$1 AND type='earning'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int64
	err := r.pool.QueryRow(ctx, q, tutorID).Scan(&total)
	return total, err
}

func scanEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.BookingID, &e.Type, &e.AmountCents, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
