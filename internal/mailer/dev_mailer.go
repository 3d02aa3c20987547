package mailer

import (
	"fmt"
	"time"

	"github.com/tutorlink/api/pkg/logger"
)

// DevMailer logs emails instead of sending them. Used when EMAIL_DEV_MODE
// is set or no MailerSend key is configured.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (m *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("dev mailer: email not sent",
		"to", toEmail,
		"subject", subject,
		"text", text,
	)
	return fmt.Sprintf("dev-%d", time.Now().UnixNano()), nil
}
