package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/api/pkg/events"
)

type recordingMailer struct {
	sent []sentEmail
}

type sentEmail struct {
	to      string
	subject string
}

func (m *recordingMailer) Send(toEmail, _, subject, _, _ string) (string, error) {
	m.sent = append(m.sent, sentEmail{to: toEmail, subject: subject})
	return "msg-1", nil
}

func bookingMessage(t *testing.T, subject string, ev events.BookingEvent) *events.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return &events.Message{Subject: subject, Data: data, Timestamp: time.Now()}
}

func TestEmailConsumerRouting(t *testing.T) {
	ev := events.BookingEvent{
		BookingID:    uuid.New(),
		StudentEmail: "student@example.com",
		TutorEmail:   "tutor@example.com",
		StartAt:      time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		subject string
		wantTo  string
	}{
		{events.BookingRequested, "tutor@example.com"},
		{events.BookingAccepted, "student@example.com"},
		{events.BookingDeclined, "student@example.com"},
		{events.BookingCancelled, "tutor@example.com"},
		{events.BookingExpired, "student@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			m := &recordingMailer{}
			c := NewEmailConsumer(nil, m, "test")
			c.handleBookingEvent(bookingMessage(t, tt.subject, ev))

			if len(m.sent) != 1 {
				t.Fatalf("sent %d emails, want 1", len(m.sent))
			}
			if m.sent[0].to != tt.wantTo {
				t.Errorf("sent to %s, want %s", m.sent[0].to, tt.wantTo)
			}
		})
	}
}

func TestEmailConsumerSkipsUnknownSubjects(t *testing.T) {
	m := &recordingMailer{}
	c := NewEmailConsumer(nil, m, "test")
	c.handleBookingEvent(bookingMessage(t, "booking.snoozed", events.BookingEvent{TutorEmail: "tutor@example.com"}))

	if len(m.sent) != 0 {
		t.Errorf("sent %d emails for an unknown subject, want 0", len(m.sent))
	}
}

func TestEmailConsumerSkipsMissingRecipient(t *testing.T) {
	m := &recordingMailer{}
	c := NewEmailConsumer(nil, m, "test")
	c.handleBookingEvent(bookingMessage(t, events.BookingRequested, events.BookingEvent{}))

	if len(m.sent) != 0 {
		t.Errorf("sent %d emails without a recipient address, want 0", len(m.sent))
	}
}
