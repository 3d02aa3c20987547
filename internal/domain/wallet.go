package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletAccount tracks a user's funds in integer cents. availableBalance and
// heldBalance are both non-negative at all times; a hold moves funds between
// the two, it never creates them.
type WalletAccount struct {
	UserID         int64     `json:"user_id"`
	AvailableCents int64     `json:"available_cents"`
	HeldCents      int64     `json:"held_cents"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type LedgerEntryType string

const (
	EntryHold    LedgerEntryType = "hold"
	EntryRefund  LedgerEntryType = "refund"
	EntrySettle  LedgerEntryType = "settle"
	EntryEarning LedgerEntryType = "earning"
	EntryCredit  LedgerEntryType = "credit"
)

func ParseLedgerEntryType(s string) (LedgerEntryType, bool) {
	switch LedgerEntryType(s) {
	case EntryHold, EntryRefund, EntrySettle, EntryEarning, EntryCredit:
		return LedgerEntryType(s), true
	default:
		return "", false
	}
}

// LedgerEntry is append-only. For any booking the entry sequence is one of
// [hold], [hold refund], [hold earning]; a booking is never both refunded
// and settled. credit entries are external top-ups and carry no booking.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	BookingID   *uuid.UUID      `json:"booking_id,omitempty"`
	Type        LedgerEntryType `json:"type"`
	AmountCents int64           `json:"amount_cents"`
	ExternalRef string          `json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HoldOutcome describes how a booking's hold was resolved, derived from its
// ledger entries.
type HoldOutcome string

const (
	HoldOpen     HoldOutcome = "open"     // hold exists, not yet resolved
	HoldRefunded HoldOutcome = "refunded" // hold returned to the payer
	HoldSettled  HoldOutcome = "settled"  // hold paid out as tutor earnings
	HoldAbsent   HoldOutcome = "absent"   // no hold was ever placed
)

// ResolveHold walks a booking's entries and reports the hold disposition.
func ResolveHold(entries []LedgerEntry) HoldOutcome {
	outcome := HoldAbsent
	for _, e := range entries {
		switch e.Type {
		case EntryHold:
			if outcome == HoldAbsent {
				outcome = HoldOpen
			}
		case EntryRefund:
			outcome = HoldRefunded
		case EntryEarning:
			outcome = HoldSettled
		}
	}
	return outcome
}
