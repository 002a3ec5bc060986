package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

// Mailer sends transactional email. A nil or keyless mailer logs and
// drops messages instead of failing; email is never on the critical path.
type Mailer struct {
	client   *sendgrid.Client
	from     *mail.Email
	logg     *logger.Logger
	disabled bool
}

// Message is a single outbound email.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

// New builds a Mailer from config. An empty API key yields a disabled
// mailer that only logs.
func New(cfg config.SendgridConfig, logg *logger.Logger) *Mailer {
	m := &Mailer{
		from: mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
		logg: logg,
	}
	if cfg.APIKey == "" {
		m.disabled = true
		return m
	}
	m.client = sendgrid.NewSendClient(cfg.APIKey)
	return m
}

// Send delivers a message through Sendgrid.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.ToEmail == "" {
		return fmt.Errorf("recipient email is required")
	}
	if m == nil || m.disabled || m.client == nil {
		if m != nil && m.logg != nil {
			m.logg.Warn(m.logg.WithField(ctx, "to", msg.ToEmail), "mailer disabled, dropping email")
		}
		return nil
	}

	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	text := msg.Text
	if text == "" {
		text = " "
	}
	html := msg.HTML
	if html == "" {
		html = text
	}
	email := mail.NewSingleEmail(m.from, msg.Subject, to, text, html)
	resp, err := m.client.Send(email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
