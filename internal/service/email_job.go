package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/jobs"
	"github.com/noah-isme/admission-portal-api/pkg/mailer"
)

// JobTypeEmail identifies queued outbound emails.
const JobTypeEmail = "email.send"

// NewEmailJobHandler delivers queued emails through m.
func NewEmailJobHandler(m mailer.Mailer, metrics *MetricsService, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(mailer.Message)
		if !ok {
			logger.Error("unexpected email job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
			return nil
		}
		if err := m.Send(ctx, msg); err != nil {
			if errors.Is(err, appErrors.ErrEmailTransportDisabled) {
				metrics.RecordSideEffect(channelEmail, "skipped")
				return nil
			}
			metrics.RecordSideEffect(channelEmail, "error")
			return fmt.Errorf("send email to %s: %w", msg.To, err)
		}
		metrics.RecordSideEffect(channelEmail, "sent")
		logger.Debug("email sent", zap.String("job_id", job.ID), zap.String("to", msg.To), zap.String("subject", msg.Subject))
		return nil
	}
}
