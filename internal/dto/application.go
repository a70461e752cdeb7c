package dto

import "github.com/noah-isme/admission-portal-api/internal/models"

// UpdateStatusRequest captures PUT /applications/:id/status payload.
type UpdateStatusRequest struct {
	Status  string  `json:"status" validate:"required"`
	Remarks *string `json:"remarks" validate:"omitempty,max=1000"`
}

// BulkStatusRequest captures bulk approve/reject payloads.
type BulkStatusRequest struct {
	ApplicationIDs []string `json:"applicationIds" validate:"required,min=1,max=500,dive,required"`
	Remarks        *string  `json:"remarks" validate:"omitempty,max=1000"`
}

// BulkStatusResponse reports how many of the requested applications changed.
type BulkStatusResponse struct {
	Requested int `json:"requested"`
	Updated   int `json:"updated"`
}

// ConfirmAdmissionResponse carries the identifiers issued on admission.
type ConfirmAdmissionResponse struct {
	StudentID     string `json:"studentId"`
	RollNumber    string `json:"rollNumber"`
	SeatAllocated bool   `json:"seatAllocated"`
}

// ApplicationListQuery captures admin listing query parameters.
type ApplicationListQuery struct {
	Status   string `form:"status"`
	Course   string `form:"course"`
	Category string `form:"category"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// ApplicationStatsResponse is the admin status breakdown.
type ApplicationStatsResponse struct {
	Total    int                  `json:"total"`
	ByStatus []models.StatusCount `json:"byStatus"`
}

// NotificationFeed is an applicant's notification page.
type NotificationFeed struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}
