package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

// Merit list limits.
const (
	DefaultMeritLimit = 100
	MaxMeritLimit     = 1000

	percentageWeight  = 70
	documentWeight    = 10
	genderBonusFemale = 5
)

// MeritEntry is one ranked row of a merit list.
type MeritEntry struct {
	Rank              int       `json:"rank"`
	ApplicationID     string    `json:"applicationId"`
	ApplicationNumber string    `json:"applicationNumber"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	CourseID          string    `json:"courseId"`
	Course            string    `json:"course"`
	Category          string    `json:"category"`
	Gender            string    `json:"gender"`
	Percentage        float64   `json:"percentage"`
	SubmittedAt       time.Time `json:"submittedAt"`
	MeritScore        float64   `json:"meritScore"`
}

// MeritOptions carries the inputs the merit formula needs besides applications.
type MeritOptions struct {
	// Now is used for elapsed-day bonuses when Deadline is zero.
	Now time.Time
	// Deadline, when set, measures how many days before it an application arrived.
	Deadline time.Time
}

// GenerateMeritList ranks approved applications matching filter.
func GenerateMeritList(apps []models.Application, filter models.MeritFilter, opts MeritOptions) []MeritEntry {
	limit := NormalizeMeritLimit(filter.Limit)
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	entries := make([]MeritEntry, 0, len(apps))
	for _, app := range apps {
		if app.Status != models.StatusApproved {
			continue
		}
		if filter.CourseID != "" && app.CourseID != filter.CourseID {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(app.Category, filter.Category) {
			continue
		}
		entries = append(entries, MeritEntry{
			ApplicationID:     app.ID,
			ApplicationNumber: app.ApplicationNumber,
			Name:              app.FullName(),
			Email:             app.Email,
			CourseID:          app.CourseID,
			Course:            app.CourseName,
			Category:          app.Category,
			Gender:            app.Gender,
			Percentage:        app.PercentageValue(),
			SubmittedAt:       app.SubmittedAt,
			MeritScore:        MeritScore(app, opts),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.MeritScore != b.MeritScore {
			return a.MeritScore > b.MeritScore
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.ApplicationNumber < b.ApplicationNumber
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// NormalizeMeritLimit applies the default and ceiling to a requested limit.
func NormalizeMeritLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultMeritLimit
	case limit > MaxMeritLimit:
		return MaxMeritLimit
	default:
		return limit
	}
}

// MeritScore computes the additive merit score of app, rounded to 2 decimals.
func MeritScore(app models.Application, opts MeritOptions) float64 {
	score := app.PercentageValue() / 100 * percentageWeight
	score += CategoryBonus(app.Category)
	score += EarlySubmissionBonus(app.SubmittedAt, opts)
	if strings.EqualFold(strings.TrimSpace(app.Gender), "female") {
		score += genderBonusFemale
	}
	score += float64(app.ApplicationDocuments.Present()) / models.DocumentSlots * documentWeight
	return round2(clamp(score, 0, 100))
}

// CategoryBonus is 10 for SC/ST, 5 for OBC/EWS and 0 otherwise.
func CategoryBonus(category string) float64 {
	switch strings.ToUpper(strings.TrimSpace(category)) {
	case models.CategorySC, models.CategoryST:
		return 10
	case models.CategoryOBC, models.CategoryEWS:
		return 5
	default:
		return 0
	}
}

// EarlySubmissionBonus awards 5/3/1 points for 30/20/10 or more whole days.
func EarlySubmissionBonus(submittedAt time.Time, opts MeritOptions) float64 {
	if submittedAt.IsZero() {
		return 0
	}
	var elapsed time.Duration
	if !opts.Deadline.IsZero() {
		elapsed = opts.Deadline.Sub(submittedAt)
	} else {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		elapsed = now.Sub(submittedAt)
	}
	days := int(elapsed.Hours() / 24)
	switch {
	case days >= 30:
		return 5
	case days >= 20:
		return 3
	case days >= 10:
		return 1
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
