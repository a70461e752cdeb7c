package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends email through Amazon SES.
type SESMailer struct {
	client SESAPI
	from   string
}

// NewSESMailer loads the default AWS credential chain for region.
func NewSESMailer(ctx context.Context, region, from, fromName string) (*SESMailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewSESMailerWithClient(ses.NewFromConfig(awsCfg), from, fromName), nil
}

// NewSESMailerWithClient wraps an existing SES client.
func NewSESMailerWithClient(client SESAPI, from, fromName string) *SESMailer {
	return &SESMailer{client: client, from: formatFrom(fromName, from)}
}

// Enabled is always true.
func (m *SESMailer) Enabled() bool { return true }

// Send delivers msg.
func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{formatFrom(msg.ToName, msg.To)}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
