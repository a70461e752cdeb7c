package dto

import (
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/scoring"
)

// RecommendRequest captures POST /smart/recommend-courses payload.
// Percentage is a number or free text; unparseable values score as 0.
type RecommendRequest struct {
	Percentage        models.PercentageText `json:"percentage" validate:"required,max=16"`
	PreviousEducation string                `json:"previousEducation" validate:"required,max=200"`
	Category          string                `json:"category" validate:"omitempty,oneof=General OBC SC ST EWS"`
	Interests         string                `json:"interests" validate:"max=500"`
}

// RecommendResponse wraps the ranked courses.
type RecommendResponse struct {
	Recommendations []scoring.ScoredCourse `json:"recommendations"`
	Count           int                    `json:"count"`
}

// PredictRequest captures POST /smart/predict-admission payload.
// Course accepts a course id or course code.
type PredictRequest struct {
	Course     string                `json:"course" validate:"required"`
	Percentage models.PercentageText `json:"percentage" validate:"required,max=16"`
	Category   string                `json:"category" validate:"omitempty,oneof=General OBC SC ST EWS"`
}

// PredictResponse wraps a prediction.
type PredictResponse struct {
	Prediction scoring.Prediction `json:"prediction"`
}

// MeritListQuery captures merit list query parameters.
type MeritListQuery struct {
	Course   string `form:"course"`
	Category string `form:"category"`
	Limit    int    `form:"limit"`
	Format   string `form:"format"`
}

// MeritListResponse wraps a ranked merit list.
type MeritListResponse struct {
	MeritList []scoring.MeritEntry `json:"meritList"`
	Count     int                  `json:"count"`
}
