package notify

import (
	"encoding/json"
	"fmt"

	"github.com/tutorlink/api/internal/mailer"
	"github.com/tutorlink/api/pkg/events"
	"github.com/tutorlink/api/pkg/logger"
)

// EmailConsumer turns booking lifecycle events from the bus into emails.
// It runs on a queue group so multiple instances share the work.
type EmailConsumer struct {
	bus    events.Subscriber
	mailer mailer.Service
	queue  string
}

func NewEmailConsumer(bus events.Subscriber, mailer mailer.Service, queue string) *EmailConsumer {
	return &EmailConsumer{bus: bus, mailer: mailer, queue: queue}
}

func (c *EmailConsumer) Start() error {
	return c.bus.QueueSubscribe("booking.*", c.queue, c.handleBookingEvent)
}

func (c *EmailConsumer) handleBookingEvent(msg *events.Message) {
	var ev events.BookingEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("email consumer: bad event payload", "subject", msg.Subject, "error", err)
		return
	}

	var toEmail, subject, text string
	when := ev.StartAt.Format("Mon Jan 2 15:04 MST")

	switch msg.Subject {
	case events.BookingRequested:
		toEmail = ev.TutorEmail
		subject = "New booking request"
		text = fmt.Sprintf("You have a new booking request for %s. Accept or decline it from your dashboard.", when)
	case events.BookingAccepted:
		toEmail = ev.StudentEmail
		subject = "Your booking was accepted"
		text = fmt.Sprintf("Your tutor accepted the booking for %s. The session link opens shortly before start.", when)
	case events.BookingDeclined:
		toEmail = ev.StudentEmail
		subject = "Your booking was declined"
		text = fmt.Sprintf("Your booking for %s was declined. The held fee has been returned to your wallet.", when)
	case events.BookingCancelled:
		toEmail = ev.TutorEmail
		subject = "A booking was cancelled"
		text = fmt.Sprintf("The student cancelled the booking for %s.", when)
	case events.BookingExpired:
		toEmail = ev.StudentEmail
		subject = "Your booking request expired"
		text = fmt.Sprintf("Your booking for %s received no decision in time. The held fee has been returned to your wallet.", when)
	default:
		return
	}

	if toEmail == "" {
		return
	}
	if _, err := c.mailer.Send(toEmail, "", subject, text, ""); err != nil {
		logger.Error("email consumer: send failed", "subject", msg.Subject, "to", toEmail, "error", err)
	}
}
