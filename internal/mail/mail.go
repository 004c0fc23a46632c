// Package mail sends transactional email (address verification and
// password reset) over SMTP with gomail. Without an SMTP host configured
// the sender logs the message instead, which is what development wants.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Sender delivers plain-text messages.
type Sender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSender returns a Sender. An empty host yields a log-only sender.
func NewSender(host string, port int, user, password, from string) *Sender {
	s := &Sender{from: from}
	if host != "" {
		s.dialer = gomail.NewDialer(host, port, user, password)
	}
	return s
}

// Enabled reports whether messages leave the process.
func (s *Sender) Enabled() bool { return s.dialer != nil }

// Send delivers one message.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	if s.dialer == nil {
		slog.InfoContext(ctx, "mail not configured, logging message", "to", to, "subject", subject, "body", body)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	slog.InfoContext(ctx, "mail sent", "to", to, "subject", subject)
	return nil
}

// VerificationMessage returns the subject and body of the address
// verification email.
func VerificationMessage(name, link string) (string, string) {
	return "Verify your Ajeyam email address", fmt.Sprintf(
		"Hello %s,\n\nWelcome to Ajeyam. Confirm your email address by opening the link below:\n\n%s\n\nThe link is valid for 24 hours.\n",
		name, link)
}

// ResetMessage returns the subject and body of the password reset email.
func ResetMessage(name, link string) (string, string) {
	return "Your Ajeyam password reset link", fmt.Sprintf(
		"Hello %s,\n\nSomeone asked to reset your password. If it was you, open the link below:\n\n%s\n\nThe link is valid for 10 minutes. Ignore this email if you did not request a reset.\n",
		name, link)
}
