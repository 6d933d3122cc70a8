package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/config"
)

// Sender delivers a single notification email.
type Sender interface {
	SendEmail(ctx context.Context, recipient models.User, subject, plainBody, htmlBody string) error
}

// SMTPMailer sends multipart emails through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// New returns an SMTP mailer, or a log-only mailer when no SMTP host is configured.
func New(cfg config.SMTPConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// SendEmail implements Sender.
func (m *SMTPMailer) SendEmail(ctx context.Context, recipient models.User, subject, plainBody, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recipient.Email == "" {
		return fmt.Errorf("recipient %s has no email", recipient.ID)
	}
	msg := buildMessage(m.from, recipient, subject, plainBody, htmlBody)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", recipient.Email, err)
	}
	m.logger.Debug("email sent", zap.String("to", recipient.Email), zap.String("subject", subject))
	return nil
}

func buildMessage(from string, recipient models.User, subject, plainBody, htmlBody string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetAddressHeader("To", recipient.Email, recipient.FullName())
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	if htmlBody != "" {
		msg.AddAlternative("text/html", htmlBody)
	}
	return msg
}

// LogMailer records emails in the operational log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// SendEmail implements Sender.
func (m *LogMailer) SendEmail(_ context.Context, recipient models.User, subject, plainBody, _ string) error {
	m.logger.Info("email delivery disabled",
		zap.String("to", recipient.Email),
		zap.String("subject", subject),
		zap.Int("body_length", len(plainBody)),
	)
	return nil
}
