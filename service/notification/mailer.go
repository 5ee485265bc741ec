package notification

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"

	"github.com/bookwise/bookwise-server/cmd/models"
)

// Mailer sends operator-facing mail. Delivery is fire-and-forget: the
// booking flow never depends on it.
type Mailer struct {
	smtpHost string
	smtpPort int
	smtpUser string
	smtpPass string
	opsEmail string
}

// NewMailerFromEnv returns nil when SMTP or the ops address is not
// configured; callers treat a nil mailer as "alerts disabled".
func NewMailerFromEnv() *Mailer {
	smtpHost := os.Getenv("SMTP_HOST")
	opsEmail := os.Getenv("OPS_ALERT_EMAIL")
	if smtpHost == "" || opsEmail == "" {
		return nil
	}

	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		log.Printf("notification: invalid SMTP port %q, mail disabled", os.Getenv("SMTP_PORT"))
		return nil
	}

	return &Mailer{
		smtpHost: smtpHost,
		smtpPort: port,
		smtpUser: os.Getenv("SMTP_USER"),
		smtpPass: os.Getenv("SMTP_PASS"),
		opsEmail: opsEmail,
	}
}

// SyncReviewAlert tells the operator a sync task gave up retrying and needs
// manual reconciliation against the external calendar.
func (m *Mailer) SyncReviewAlert(task models.CalendarSyncTask) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.smtpUser)
	msg.SetHeader("To", m.opsEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Calendar sync needs review: booking %d", task.BookingID))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Sync task %s (%s) for booking %d failed %d times and was parked for manual review.\n"+
			"Calendar: %s\nEvent: %s\nLast error: %s\n",
		task.ID, task.Action, task.BookingID, task.Attempts, task.CalendarID, task.EventID, task.LastError))

	d := gomail.NewDialer(m.smtpHost, m.smtpPort, m.smtpUser, m.smtpPass)
	return d.DialAndSend(msg)
}
