package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"

	"github.com/caasmo/identity/config"
)

// Mailer handles sending emails. It is the e-mail half of the notification
// gateway; the SMS half lives in the sms package.
type Mailer struct {
	configProvider *config.Provider
	logger         *slog.Logger
}

// New creates a new Mailer instance
func New(provider *config.Provider, logger *slog.Logger) (*Mailer, error) {
	smtpCfg := provider.Get().Smtp
	if smtpCfg.Host == "" || smtpCfg.FromAddress == "" {
		return nil, fmt.Errorf("mail: smtp host and from_address are required")
	}
	return &Mailer{
		configProvider: provider,
		logger:         logger,
	}, nil
}

// SendEmail sends a plain text email. The error reports delivery failure;
// callers decide whether that failure is surfaced or only logged.
func (m *Mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	cfg := m.configProvider.Get().Smtp

	mail := mailyak.New(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host))

	mail.To(to)
	mail.From(cfg.FromAddress)
	mail.FromName(cfg.FromName)
	mail.Subject(subject)
	mail.Plain().Set(body)

	// mailyak has no context support, run the send in a goroutine so the
	// caller's deadline still applies
	done := make(chan error, 1)
	go func() {
		done <- mail.Send()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
	}

	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}
