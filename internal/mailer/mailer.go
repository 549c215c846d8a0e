// Package mailer sends outbound email through a configurable provider:
// plain SMTP, Gmail SMTP, or the Resend/Brevo HTTP APIs. Every attempt is
// recorded as an EmailLog row.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/models"
	"gorm.io/gorm"
)

// Message is a single outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Provider sends a single message through one delivery backend
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// New selects a provider from configuration. The "stub" provider logs
// instead of sending and is the development default.
func New(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(cfg.EmailProvider) {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("SMTP_HOST is required for the smtp provider")
		}
		return &smtpProvider{
			name: "smtp",
			addr: cfg.SMTPHost + ":" + cfg.SMTPPort,
			host: cfg.SMTPHost,
			user: cfg.SMTPUser,
			pass: cfg.SMTPPass,
			from: cfg.EmailFrom,
		}, nil
	case "gmail":
		if cfg.SMTPUser == "" {
			return nil, fmt.Errorf("SMTP_USER is required for the gmail provider")
		}
		return &smtpProvider{
			name: "gmail",
			addr: "smtp.gmail.com:587",
			host: "smtp.gmail.com",
			user: cfg.SMTPUser,
			pass: cfg.SMTPPass,
			from: cfg.EmailFrom,
		}, nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required for the resend provider")
		}
		return newResendProvider(cfg.ResendAPIKey, cfg.EmailFrom), nil
	case "brevo":
		if cfg.BrevoAPIKey == "" {
			return nil, fmt.Errorf("BREVO_API_KEY is required for the brevo provider")
		}
		return newBrevoProvider(cfg.BrevoAPIKey, cfg.EmailFrom), nil
	case "stub":
		return &stubProvider{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}

// smtpProvider delivers over SMTP with PLAIN auth and an HTML MIME body
type smtpProvider struct {
	name string
	addr string
	host string
	user string
	pass string
	from string
}

func (p *smtpProvider) Name() string { return p.name }

func (p *smtpProvider) Send(ctx context.Context, msg Message) error {
	body := "From: " + p.from + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Subject: " + msg.Subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		msg.HTML

	var auth smtp.Auth
	if p.user != "" {
		auth = smtp.PlainAuth("", p.user, p.pass, p.host)
	}

	envelopeFrom := p.from
	if addr, err := mail.ParseAddress(p.from); err == nil {
		envelopeFrom = addr.Address
	}

	if err := smtp.SendMail(p.addr, auth, envelopeFrom, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// stubProvider logs sends instead of delivering them
type stubProvider struct {
	logger *slog.Logger
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Send(ctx context.Context, msg Message) error {
	p.logger.Info("Stub email send", "to", msg.To, "subject", msg.Subject)
	return nil
}

// LoggingSender wraps a provider and records every attempt as an EmailLog row
type LoggingSender struct {
	db       *gorm.DB
	provider Provider
	logger   *slog.Logger
}

// NewLoggingSender wraps provider with EmailLog persistence
func NewLoggingSender(db *gorm.DB, provider Provider, logger *slog.Logger) *LoggingSender {
	return &LoggingSender{db: db, provider: provider, logger: logger}
}

func (s *LoggingSender) Name() string { return s.provider.Name() }

// Send delivers the message and appends an EmailLog row either way.
// Logging failures do not mask the send result.
func (s *LoggingSender) Send(ctx context.Context, msg Message) error {
	sendErr := s.provider.Send(ctx, msg)

	entry := models.EmailLog{
		SentTo:   msg.To,
		Subject:  msg.Subject,
		Provider: s.provider.Name(),
		Status:   models.EmailLogStatusSuccess,
		SentAt:   time.Now(),
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.Error = sendErr.Error()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("Failed to record email log", "to", msg.To, "provider", entry.Provider, "error", err.Error())
	}

	return sendErr
}
