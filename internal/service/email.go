package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/domain"

	"gopkg.in/gomail.v2"
)

type emailService struct {
	cfg config.SMTPConfig
}

func NewEmailService(cfg config.SMTPConfig) EmailService {
	return &emailService{cfg: cfg}
}

// SendExpiryReminder mails a plain-text list of members whose cards expire
// within the warning window.
func (s *emailService) SendExpiryReminder(ctx context.Context, to string, members []domain.Member) error {
	if len(members) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Die folgenden %d Ausweise laufen demnächst ab:\n\n", len(members))
	for _, m := range members {
		until := "-"
		if m.ValidUntil != nil {
			until = m.ValidUntil.Format("02.01.2006")
		}
		fmt.Fprintf(&b, "  %s (%s) – gültig bis %s\n", m.FullName(), m.FullCardNumber(), until)
	}
	b.WriteString("\nBitte die Verlängerung einplanen.\n")

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Ausweisverwaltung: %d Ausweise laufen ab", len(members)))
	msg.SetBody("text/plain", b.String())

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send expiry reminder: %w", err)
	}
	return nil
}
