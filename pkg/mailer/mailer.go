package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/pkg/config"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

// Message is a single outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string
}

// Validate checks the recipient address and that the message has content.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(m.To)); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if m.TextBody == "" && m.HTMLBody == "" {
		return fmt.Errorf("message body is required")
	}
	return nil
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
}

// New selects the transport named by cfg.Provider.
func New(ctx context.Context, cfg config.EmailConfig, logger *zap.Logger) (Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Configured() {
		logger.Info("email transport not configured; emails will be skipped", zap.String("provider", cfg.Provider))
		return NewNoop(), nil
	}
	switch cfg.Provider {
	case config.EmailProviderSES:
		return NewSESMailer(ctx, cfg.AWSRegion, cfg.From, cfg.FromName)
	case config.EmailProviderSendGrid:
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.From, cfg.FromName), nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
}

// Noop drops every message. It backs deployments without an email transport.
type Noop struct{}

// NewNoop returns a disabled mailer.
func NewNoop() *Noop { return &Noop{} }

// Send reports that the transport is disabled.
func (Noop) Send(context.Context, Message) error { return appErrors.ErrEmailTransportDisabled }

// Enabled is always false.
func (Noop) Enabled() bool { return false }

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
