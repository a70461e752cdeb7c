package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridAPI is the subset of the SendGrid client used here.
type SendGridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	client SendGridAPI
	from   *sgmail.Email
}

// NewSendGridMailer builds a mailer for apiKey.
func NewSendGridMailer(apiKey, from, fromName string) *SendGridMailer {
	return NewSendGridMailerWithClient(sendgrid.NewSendClient(apiKey), from, fromName)
}

// NewSendGridMailerWithClient wraps an existing SendGrid client.
func NewSendGridMailerWithClient(client SendGridAPI, from, fromName string) *SendGridMailer {
	return &SendGridMailer{client: client, from: sgmail.NewEmail(fromName, from)}
}

// Enabled is always true.
func (m *SendGridMailer) Enabled() bool { return true }

// Send delivers msg.
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	to := sgmail.NewEmail(msg.ToName, msg.To)
	payload := sgmail.NewSingleEmail(m.from, msg.Subject, to, msg.TextBody, msg.HTMLBody)

	res, err := m.client.SendWithContext(ctx, payload)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res != nil && res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
