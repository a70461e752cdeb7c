package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

const notificationColumns = `id, user_id, application_id, title, message, type, is_read, created_at`

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, application_id, title, message, type, is_read, created_at) VALUES (:id, :user_id, :application_id, :title, :message, :type, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByUser returns a page of a user's notifications, newest first, plus
// the unread count.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := " FROM notifications WHERE user_id = $1"
	if filter.UnreadOnly {
		base += " AND is_read = FALSE"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	query := fmt.Sprintf("SELECT %s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, base, pageSize, (page-1)*pageSize)

	items := make([]models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var unread int
	if err := r.db.GetContext(ctx, &unread, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return items, unread, nil
}

// MarkRead flags one of the user's notifications as read. It reports whether
// a notification owned by the user was found.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id::text = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected > 0, nil
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected, nil
}
