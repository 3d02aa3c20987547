package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/tutorlink/api/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Booking lifecycle
	BookingRequested = "booking.requested"
	BookingAccepted  = "booking.accepted"
	BookingDeclined  = "booking.declined"
	BookingCancelled = "booking.cancelled"
	BookingExpired   = "booking.expired"

	// Session lifecycle
	SessionScheduled = "session.scheduled"
	SessionStarted   = "session.started"
	SessionCompleted = "session.completed"
	SessionMissed    = "session.missed"

	// Wallet movements
	WalletHeld     = "wallet.held"
	WalletRefunded = "wallet.refunded"
	WalletSettled  = "wallet.settled"
	WalletCredited = "wallet.credited"
)

// Event payloads
type BookingEvent struct {
	BookingID    uuid.UUID `json:"booking_id"`
	StudentID    int64     `json:"student_id"`
	StudentEmail string    `json:"student_email,omitempty"`
	TutorID      int64     `json:"tutor_id"`
	TutorEmail   string    `json:"tutor_email,omitempty"`
	StartAt      time.Time `json:"start_at"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type SessionEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	StudentID  int64     `json:"student_id"`
	TutorID    int64     `json:"tutor_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

type WalletEvent struct {
	AccountID   int64     `json:"account_id"`
	BookingID   uuid.UUID `json:"booking_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	EntryType   string    `json:"entry_type"`
	ExternalRef string    `json:"external_ref,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
