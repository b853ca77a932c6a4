// Package mailer turns queued mail events into SMTP messages.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/queue"
)

// Dialer is satisfied by *mail.Client.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// NewClient builds an SMTP client. Implicit TLS is used when cfg.SSL is
// set, opportunistic STARTTLS otherwise.
func NewClient(cfg config.SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer.NewClient: %w", err)
	}
	return c, nil
}

// Sender implements queue.Handler.
type Sender struct {
	dialer Dialer
	from   string
	log    *slog.Logger
}

func NewSender(d Dialer, from string, log *slog.Logger) *Sender {
	return &Sender{dialer: d, from: from, log: log}
}

// Handle renders and sends one event.
func (s *Sender) Handle(ctx context.Context, ev queue.MailEvent) error {
	const op = "mailer.Handle"

	msg, err := s.Compose(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.dialer.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%s: send: %w", op, err)
	}
	s.log.Info("mail sent", slog.String("kind", string(ev.Kind)), slog.String("to", ev.Email))
	return nil
}

// Compose builds the message without sending it.
func (s *Sender) Compose(ev queue.MailEvent) (*mail.Msg, error) {
	subject, body, err := render(ev)
	if err != nil {
		return nil, err
	}
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(ev.Email); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}
