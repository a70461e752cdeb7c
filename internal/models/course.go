package models

import "time"

// Course is an admission programme with a finite seat pool.
type Course struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Code           string    `db:"code" json:"code"`
	Eligibility    string    `db:"eligibility" json:"eligibility"`
	TotalSeats     int       `db:"total_seats" json:"totalSeats"`
	AvailableSeats int       `db:"available_seats" json:"availableSeats"`
	Fees           float64   `db:"fees" json:"fees"`
	DurationYears  int       `db:"duration_years" json:"durationYears"`
	IsActive       bool      `db:"is_active" json:"isActive"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// HasSeats reports whether at least one seat can still be allocated.
func (c Course) HasSeats() bool {
	return c.TotalSeats > 0 && c.AvailableSeats > 0
}

// SeatRatio is the share of seats still open, in [0,1].
func (c Course) SeatRatio() float64 {
	if c.TotalSeats <= 0 || c.AvailableSeats <= 0 {
		return 0
	}
	if c.AvailableSeats >= c.TotalSeats {
		return 1
	}
	return float64(c.AvailableSeats) / float64(c.TotalSeats)
}

// CreateCourseRequest is the payload for adding a course to the catalogue.
type CreateCourseRequest struct {
	Name           string  `json:"name" validate:"required,min=2,max=160"`
	Code           string  `json:"code" validate:"required,alphanum,min=2,max=16"`
	Eligibility    string  `json:"eligibility" validate:"max=500"`
	TotalSeats     int     `json:"totalSeats" validate:"gte=0"`
	AvailableSeats *int    `json:"availableSeats" validate:"omitempty,gte=0"`
	Fees           float64 `json:"fees" validate:"gte=0"`
	DurationYears  int     `json:"durationYears" validate:"gte=0,lte=10"`
	IsActive       *bool   `json:"isActive"`
}

// UpdateCourseRequest patches an existing course. Nil fields are left untouched.
type UpdateCourseRequest struct {
	Name           *string  `json:"name" validate:"omitempty,min=2,max=160"`
	Eligibility    *string  `json:"eligibility" validate:"omitempty,max=500"`
	TotalSeats     *int     `json:"totalSeats" validate:"omitempty,gte=0"`
	AvailableSeats *int     `json:"availableSeats" validate:"omitempty,gte=0"`
	Fees           *float64 `json:"fees" validate:"omitempty,gte=0"`
	DurationYears  *int     `json:"durationYears" validate:"omitempty,gte=0,lte=10"`
	IsActive       *bool    `json:"isActive"`
}

// CourseFilter narrows catalogue listings.
type CourseFilter struct {
	ActiveOnly bool
	Search     string
}
