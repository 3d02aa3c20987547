package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyBookingRequested NotificationType = "booking_requested"
	NotifyBookingAccepted  NotificationType = "booking_accepted"
	NotifyBookingDeclined  NotificationType = "booking_declined"
	NotifyBookingCancelled NotificationType = "booking_cancelled"
	NotifyBookingExpired   NotificationType = "booking_expired"
	NotifySessionStarted   NotificationType = "session_started"
	NotifySessionCompleted NotificationType = "session_completed"
	NotifySessionMissed    NotificationType = "session_missed"
	NotifyWalletCredited   NotificationType = "wallet_credited"
)

// Notification is persisted before any real-time delivery attempt and is
// never deleted; mark-read is its only mutation.
type Notification struct {
	ID          uuid.UUID        `json:"id"`
	RecipientID int64            `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Payload     json.RawMessage  `json:"payload"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}
