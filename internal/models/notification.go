package models

import "time"

// NotificationType is the severity shown to the applicant.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is an in-app message polled by applicants.
type Notification struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"userId"`
	ApplicationID *string          `db:"application_id" json:"applicationId,omitempty"`
	Title         string           `db:"title" json:"title"`
	Message       string           `db:"message" json:"message"`
	Type          NotificationType `db:"type" json:"type"`
	IsRead        bool             `db:"is_read" json:"isRead"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter narrows a user's notification feed.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}
