package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "Pending"
	StatusVerified ApplicationStatus = "Verified"
	StatusApproved ApplicationStatus = "Approved"
	StatusRejected ApplicationStatus = "Rejected"
	StatusHold     ApplicationStatus = "Hold"
)

// Applicant categories recognised by scoring.
const (
	CategoryGeneral = "General"
	CategoryOBC     = "OBC"
	CategorySC      = "SC"
	CategoryST      = "ST"
	CategoryEWS     = "EWS"
)

var statusGraph = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:  {StatusVerified, StatusHold, StatusRejected},
	StatusVerified: {StatusApproved, StatusRejected, StatusHold},
	StatusHold:     {StatusVerified, StatusApproved, StatusRejected},
}

// Valid reports whether s is one of the known statuses.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusApproved, StatusRejected, StatusHold:
		return true
	}
	return false
}

// ExpectedNext reports whether next follows s on the documented review path.
// Transitions off the path are still permitted as administrator overrides.
func (s ApplicationStatus) ExpectedNext(next ApplicationStatus) bool {
	for _, candidate := range statusGraph[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseStatus normalises user input such as "approved" into a status.
func ParseStatus(raw string) (ApplicationStatus, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range []ApplicationStatus{StatusPending, StatusVerified, StatusApproved, StatusRejected, StatusHold} {
		if strings.EqualFold(trimmed, string(s)) {
			return s, true
		}
	}
	return "", false
}

// ApplicationDocuments holds optional document references. Paths are free text.
type ApplicationDocuments struct {
	Photo       string `db:"doc_photo" json:"photo,omitempty"`
	Signature   string `db:"doc_signature" json:"signature,omitempty"`
	Marksheet10 string `db:"doc_marksheet_10" json:"marksheet10,omitempty"`
	Marksheet12 string `db:"doc_marksheet_12" json:"marksheet12,omitempty"`
	IDProof     string `db:"doc_id_proof" json:"idProof,omitempty"`
}

// DocumentSlots is the number of document references an application can carry.
const DocumentSlots = 5

// Present counts non-blank document references.
func (d ApplicationDocuments) Present() int {
	count := 0
	for _, v := range []string{d.Photo, d.Signature, d.Marksheet10, d.Marksheet12, d.IDProof} {
		if strings.TrimSpace(v) != "" {
			count++
		}
	}
	return count
}

// Application is a submitted admission application.
type Application struct {
	ID                string            `db:"id" json:"id"`
	ApplicationNumber string            `db:"application_number" json:"applicationNumber"`
	UserID            string            `db:"user_id" json:"userId"`
	FirstName         string            `db:"first_name" json:"firstName"`
	MiddleName        *string           `db:"middle_name" json:"middleName,omitempty"`
	LastName          string            `db:"last_name" json:"lastName"`
	Email             string            `db:"email" json:"email"`
	Phone             string            `db:"phone" json:"phone"`
	CourseID          string            `db:"course_id" json:"courseId"`
	CourseName        string            `db:"course_name" json:"course"`
	Category          string            `db:"category" json:"category"`
	Percentage        string            `db:"percentage" json:"percentage"`
	PreviousEducation string            `db:"previous_education" json:"previousEducation"`
	Gender            string            `db:"gender" json:"gender"`
	Status            ApplicationStatus `db:"status" json:"status"`
	Remarks           *string           `db:"remarks" json:"remarks,omitempty"`
	SubmittedAt       time.Time         `db:"submitted_at" json:"submittedAt"`
	VerifiedAt        *time.Time        `db:"verified_at" json:"verifiedAt,omitempty"`
	ApprovedAt        *time.Time        `db:"approved_at" json:"approvedAt,omitempty"`
	IsAdmitted        bool              `db:"is_admitted" json:"isAdmitted"`
	AdmittedAt        *time.Time        `db:"admitted_at" json:"admittedAt,omitempty"`
	SeatLocked        bool              `db:"seat_locked" json:"seatLocked"`
	StudentID         *string           `db:"student_id" json:"studentId,omitempty"`
	RollNumber        *string           `db:"roll_number" json:"rollNumber,omitempty"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`

	ApplicationDocuments `json:"documents"`
}

// FullName joins the name parts, skipping an empty middle name.
func (a Application) FullName() string {
	parts := []string{a.FirstName}
	if a.MiddleName != nil && strings.TrimSpace(*a.MiddleName) != "" {
		parts = append(parts, strings.TrimSpace(*a.MiddleName))
	}
	parts = append(parts, a.LastName)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// PercentageValue parses the stored percentage; unparseable input yields 0.
func (a Application) PercentageValue() float64 {
	return ParsePercentage(a.Percentage)
}

// PercentageText is a percentage as the applicant typed it. JSON numbers and
// strings are both accepted and kept as text.
type PercentageText string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PercentageText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*p = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*p = PercentageText(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("percentage must be a number or a string")
	}
	*p = PercentageText(number.String())
	return nil
}

// Value parses the percentage; unparseable input yields 0.
func (p PercentageText) Value() float64 {
	return ParsePercentage(string(p))
}

// ParsePercentage reads a 0-100 figure from free text such as "85", "85.5" or "85 %".
func ParsePercentage(raw string) float64 {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if cleaned == "" {
		return 0
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// CanConfirmAdmission reports whether the admission sub-flow may run.
func (a Application) CanConfirmAdmission() bool {
	return a.Status == StatusApproved && !a.SeatLocked
}

// SubmitApplicationRequest is the applicant-facing submission payload.
type SubmitApplicationRequest struct {
	FirstName         string               `json:"firstName" validate:"required,max=80"`
	MiddleName        *string              `json:"middleName" validate:"omitempty,max=80"`
	LastName          string               `json:"lastName" validate:"required,max=80"`
	Email             string               `json:"email" validate:"required,email"`
	Phone             string               `json:"phone" validate:"omitempty,max=32"`
	Course            string               `json:"course" validate:"required"`
	Category          string               `json:"category" validate:"omitempty,oneof=General OBC SC ST EWS"`
	Percentage        PercentageText       `json:"percentage" validate:"required,max=16"`
	PreviousEducation string               `json:"previousEducation" validate:"required,max=200"`
	Gender            string               `json:"gender" validate:"omitempty,oneof=Male Female Other"`
	Documents         ApplicationDocuments `json:"documents"`
}

// ApplicationFilter captures admin listing criteria.
type ApplicationFilter struct {
	Status   *ApplicationStatus
	CourseID string
	Category string
	Search   string
	Page     int
	PageSize int
}

// MeritFilter selects the approved applications ranked in a merit list.
type MeritFilter struct {
	CourseID string
	Category string
	Limit    int
}

// StatusCount is one row of the admin status breakdown.
type StatusCount struct {
	Status ApplicationStatus `db:"status" json:"status"`
	Count  int               `db:"count" json:"count"`
}

// AdmissionAssignment carries the identifiers issued on confirmation.
type AdmissionAssignment struct {
	StudentID  string    `json:"studentId"`
	RollNumber string    `json:"rollNumber"`
	AdmittedAt time.Time `json:"admittedAt"`
}
