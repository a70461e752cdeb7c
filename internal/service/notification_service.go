package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/jobs"
	"github.com/noah-isme/admission-portal-api/pkg/mailer"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// Side-effect channels reported to metrics.
const (
	channelInApp = "in_app"
	channelEmail = "email"
)

// NotificationService stores in-app notifications and hands emails to the
// background queue. Dispatch is best effort: failures are logged, never returned.
type NotificationService struct {
	store        notificationStore
	emails       jobEnqueuer
	emailEnabled bool
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewNotificationService constructs a NotificationService. A nil queue or
// emailEnabled=false disables email dispatch.
func NewNotificationService(store notificationStore, emails jobEnqueuer, emailEnabled bool, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, emails: emails, emailEnabled: emailEnabled && emails != nil, metrics: metrics, logger: logger}
}

// Notify persists an in-app notification.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) {
	if err := s.store.Create(ctx, n); err != nil {
		s.metrics.RecordSideEffect(channelInApp, "error")
		s.logger.Warn("failed to create notification", zap.String("user_id", n.UserID), zap.String("title", n.Title), zap.Error(err))
		return
	}
	s.metrics.RecordSideEffect(channelInApp, "ok")
}

// Email queues msg for delivery. It is skipped when no transport is configured.
func (s *NotificationService) Email(msg mailer.Message) {
	if !s.emailEnabled {
		s.metrics.RecordSideEffect(channelEmail, "skipped")
		return
	}
	if strings.TrimSpace(msg.To) == "" {
		s.metrics.RecordSideEffect(channelEmail, "skipped")
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeEmail, Payload: msg}
	if err := s.emails.Enqueue(job); err != nil {
		s.metrics.RecordSideEffect(channelEmail, "dropped")
		s.logger.Warn("failed to queue email", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	s.metrics.RecordSideEffect(channelEmail, "queued")
}

// List returns the user's notifications with the unread count.
func (s *NotificationService) List(ctx context.Context, userID string, filter models.NotificationFilter) (*dto.NotificationFeed, error) {
	items, unread, err := s.store.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list notifications")
	}
	return &dto.NotificationFeed{Notifications: items, UnreadCount: unread}, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	found, err := s.store.MarkRead(ctx, userID, id)
	if err != nil {
		return appErrors.Internal(err, "failed to update notification")
	}
	if !found {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to update notifications")
	}
	return count, nil
}
