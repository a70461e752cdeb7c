package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

// Prediction labels and confidence tiers.
const (
	ChanceVeryHigh     = "Very High"
	ChanceHigh         = "High"
	ChanceModerate     = "Moderate"
	ChanceLow          = "Low"
	ChanceVeryLow      = "Very Low"
	ChanceInsufficient = "Insufficient data"

	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	DefaultMinHistory = 10
)

// PredictionInput describes the prospective applicant.
type PredictionInput struct {
	Percentage float64
	Category   string
}

// PredictionFactors is the breakdown behind a chance score.
type PredictionFactors struct {
	PercentageFactor  int     `json:"percentageFactor"`
	CategoryFactor    int     `json:"categoryFactor"`
	SeatFactor        float64 `json:"seatFactor"`
	ApprovedAverage   float64 `json:"approvedAveragePercentage"`
	CategorySharePct  float64 `json:"categorySharePercent"`
	ApprovedCount     int     `json:"approvedCount"`
	RejectedCount     int     `json:"rejectedCount"`
	RequestedCategory string  `json:"category"`
}

// Prediction estimates the admission chance for a course.
type Prediction struct {
	CourseID        string             `json:"courseId"`
	Course          string             `json:"course"`
	Chance          string             `json:"chance"`
	ChanceScore     *int               `json:"chanceScore"`
	Confidence      string             `json:"confidence"`
	Message         string             `json:"message"`
	HistoricalCount int                `json:"historicalCount"`
	Factors         *PredictionFactors `json:"factors,omitempty"`
}

// PredictOptions tunes PredictAdmissionChance.
type PredictOptions struct {
	MinHistory int
}

// PredictAdmissionChance estimates the chance of input being admitted to course
// from decided applications of that course. Pending applications are ignored.
func PredictAdmissionChance(input PredictionInput, history []models.Application, course models.Course, opts PredictOptions) Prediction {
	minHistory := opts.MinHistory
	if minHistory <= 0 {
		minHistory = DefaultMinHistory
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = models.CategoryGeneral
	}

	var approved []models.Application
	rejected := 0
	for _, app := range history {
		if course.ID != "" && app.CourseID != "" && app.CourseID != course.ID {
			continue
		}
		switch app.Status {
		case models.StatusApproved:
			approved = append(approved, app)
		case models.StatusRejected:
			rejected++
		}
	}
	decided := len(approved) + rejected

	prediction := Prediction{CourseID: course.ID, Course: course.Name, HistoricalCount: decided}
	if decided < minHistory {
		prediction.Chance = ChanceInsufficient
		prediction.Confidence = ConfidenceLow
		prediction.Message = fmt.Sprintf("Not enough admission history for %s yet: %d of %d decided applications needed.", course.Name, decided, minHistory)
		return prediction
	}

	var total float64
	sameCategory := 0
	for _, app := range approved {
		total += app.PercentageValue()
		if strings.EqualFold(strings.TrimSpace(app.Category), category) {
			sameCategory++
		}
	}
	factors := PredictionFactors{
		ApprovedCount:     len(approved),
		RejectedCount:     rejected,
		RequestedCategory: category,
		SeatFactor:        round2(course.SeatRatio() * SeatWeight),
	}
	percentage := clamp(input.Percentage, 0, 100)
	if len(approved) > 0 {
		factors.ApprovedAverage = round2(total / float64(len(approved)))
		factors.CategorySharePct = round2(float64(sameCategory) / float64(len(approved)) * 100)
		factors.PercentageFactor = percentageFactor(percentage, factors.ApprovedAverage)
	} else {
		factors.PercentageFactor = 10
	}
	factors.CategoryFactor = categoryFactor(factors.CategorySharePct)

	score := int(clamp(math.Round(float64(factors.PercentageFactor)+float64(factors.CategoryFactor)+course.SeatRatio()*SeatWeight), 0, 100))
	label, confidence := ChanceLabel(score)

	prediction.ChanceScore = &score
	prediction.Chance = label
	prediction.Confidence = confidence
	prediction.Factors = &factors
	prediction.Message = fmt.Sprintf("%s chance (%d/100) of admission to %s, based on %d past decisions.", label, score, course.Name, decided)
	return prediction
}

func percentageFactor(percentage, average float64) int {
	diff := percentage - average
	switch {
	case diff >= 10:
		return 60
	case diff >= 0:
		return 50
	case diff >= -5:
		return 35
	case diff >= -10:
		return 20
	default:
		return 10
	}
}

func categoryFactor(sharePct float64) int {
	switch {
	case sharePct > 20:
		return 20
	case sharePct > 10:
		return 15
	default:
		return 10
	}
}

// ChanceLabel maps a chance score to its label and confidence tier.
func ChanceLabel(score int) (string, string) {
	switch {
	case score >= 80:
		return ChanceVeryHigh, ConfidenceHigh
	case score >= 60:
		return ChanceHigh, ConfidenceHigh
	case score >= 40:
		return ChanceModerate, ConfidenceMedium
	case score >= 20:
		return ChanceLow, ConfidenceLow
	default:
		return ChanceVeryLow, ConfidenceLow
	}
}
