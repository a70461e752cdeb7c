// Package scoring ranks courses and applications. It performs no I/O: callers
// pass catalogue and application snapshots and receive derived values.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

// Component ceilings of the recommendation score.
const (
	EligibilityMax     = 40
	EligibilityDefault = 20
	SeatWeight         = 20
	InterestBonus      = 10

	DefaultRecommendationLimit = 5
)

// Profile describes a prospective applicant.
type Profile struct {
	Percentage        float64 `json:"percentage"`
	PreviousEducation string  `json:"previousEducation"`
	Category          string  `json:"category,omitempty"`
	Interests         string  `json:"interests,omitempty"`
}

// Breakdown exposes the individual score components.
type Breakdown struct {
	Eligibility float64 `json:"eligibility"`
	Academic    float64 `json:"academic"`
	Seats       float64 `json:"seats"`
	Interest    float64 `json:"interest"`
}

// Total sums the components.
func (b Breakdown) Total() float64 {
	return b.Eligibility + b.Academic + b.Seats + b.Interest
}

// ScoredCourse is a course ranked for a profile.
type ScoredCourse struct {
	CourseID       string    `json:"courseId"`
	Course         string    `json:"course"`
	Code           string    `json:"code"`
	Score          int       `json:"score"`
	MatchReason    string    `json:"matchReason"`
	AvailableSeats int       `json:"availableSeats"`
	TotalSeats     int       `json:"totalSeats"`
	Fees           float64   `json:"fees"`
	DurationYears  int       `json:"duration"`
	Breakdown      Breakdown `json:"breakdown"`
}

// RecommendOptions tunes RecommendCourses.
type RecommendOptions struct {
	Limit int
}

// RecommendCourses scores every open course for profile and returns the best
// matches, highest score first. An empty catalogue yields an empty slice.
func RecommendCourses(profile Profile, courses []models.Course, opts RecommendOptions) []ScoredCourse {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	profile.Percentage = clamp(profile.Percentage, 0, 100)

	education := EducationStreams(profile.PreviousEducation)
	interests := tokenize(profile.Interests)

	scored := make([]ScoredCourse, 0, len(courses))
	for _, course := range courses {
		if !course.IsActive || !course.HasSeats() {
			continue
		}
		breakdown := Breakdown{
			Eligibility: eligibilityPoints(course.Eligibility, profile.Percentage, education),
			Academic:    AcademicPoints(profile.Percentage),
			Seats:       course.SeatRatio() * SeatWeight,
			Interest:    interestPoints(course, interests),
		}
		score := int(clamp(math.Round(breakdown.Total()), 0, 100))
		scored = append(scored, ScoredCourse{
			CourseID:       course.ID,
			Course:         course.Name,
			Code:           course.Code,
			Score:          score,
			MatchReason:    matchReason(score, profile.Percentage, course.SeatRatio()),
			AvailableSeats: course.AvailableSeats,
			TotalSeats:     course.TotalSeats,
			Fees:           course.Fees,
			DurationYears:  course.DurationYears,
			Breakdown:      breakdown,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Course < scored[j].Course
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// eligibilityPoints applies the eligibility rules. An unmet percentage
// threshold scores 0 even when the stream matches.
func eligibilityPoints(eligibility string, percentage float64, education map[string]bool) float64 {
	if strings.TrimSpace(eligibility) == "" {
		return EligibilityDefault
	}
	threshold, hasThreshold := percentageThreshold(eligibility)
	if hasThreshold && percentage < threshold {
		return 0
	}
	if sharesGroup(EducationStreams(eligibility), education) {
		return EligibilityMax
	}
	if hasThreshold {
		return EligibilityMax
	}
	return EligibilityDefault
}

// AcademicPoints bands a percentage into 10..30 points.
func AcademicPoints(percentage float64) float64 {
	switch {
	case percentage >= 90:
		return 30
	case percentage >= 80:
		return 25
	case percentage >= 70:
		return 20
	case percentage >= 60:
		return 15
	default:
		return 10
	}
}

func interestPoints(course models.Course, interests []string) float64 {
	if len(interests) == 0 {
		return 0
	}
	domains := CourseDomains(course.Name + " " + course.Code)
	for domain := range domains {
		for _, term := range courseDomains[domain] {
			if containsTerm(interests, term) {
				return InterestBonus
			}
		}
	}
	return 0
}

func matchReason(score int, percentage, seatRatio float64) string {
	var tier string
	switch {
	case score >= 80:
		tier = "Excellent match"
	case score >= 60:
		tier = "Good match"
	case score >= 40:
		tier = "Fair match"
	default:
		tier = "Weak match"
	}

	var academic string
	switch {
	case percentage >= 90:
		academic = "outstanding academic record"
	case percentage >= 75:
		academic = "strong academic record"
	case percentage >= 60:
		academic = "good academic record"
	default:
		academic = "academic record below the typical intake"
	}

	var seats string
	switch {
	case seatRatio >= 0.5:
		seats = "plenty of seats available"
	case seatRatio >= 0.2:
		seats = "limited seats remaining"
	default:
		seats = "very few seats left"
	}
	return tier + ": " + academic + "; " + seats
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
