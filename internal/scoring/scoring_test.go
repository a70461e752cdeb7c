package scoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

func course(id, name, code, eligibility string, total, available int) models.Course {
	return models.Course{
		ID:             id,
		Name:           name,
		Code:           code,
		Eligibility:    eligibility,
		TotalSeats:     total,
		AvailableSeats: available,
		Fees:           120000,
		DurationYears:  4,
		IsActive:       true,
	}
}

func TestRecommendCoursesWorkedExample(t *testing.T) {
	catalog := []models.Course{course("c1", "Computer Science", "CS", "12th with Science (PCM)", 60, 60)}
	profile := Profile{Percentage: 95, PreviousEducation: "12th Science", Interests: "programming and robotics"}

	result := RecommendCourses(profile, catalog, RecommendOptions{})
	require.Len(t, result, 1)
	assert.Equal(t, 100, result[0].Score)
	assert.Equal(t, Breakdown{Eligibility: 40, Academic: 30, Seats: 20, Interest: 10}, result[0].Breakdown)
	assert.Equal(t, "Excellent match: outstanding academic record; plenty of seats available", result[0].MatchReason)
}

func TestRecommendCoursesBoundsAndOrdering(t *testing.T) {
	var catalog []models.Course
	for i := 0; i < 12; i++ {
		catalog = append(catalog, course(
			fmt.Sprintf("c%d", i),
			fmt.Sprintf("Programme %02d", i),
			fmt.Sprintf("P%02d", i),
			fmt.Sprintf("Minimum %d%% in 12th", 40+i*5),
			100,
			100-i*8,
		))
	}
	catalog = append(catalog,
		course("closed", "Closed Course", "CLS", "", 0, 0),
		course("full", "Full Course", "FUL", "", 30, 0),
	)
	inactive := course("inactive", "Inactive Course", "INA", "", 30, 30)
	inactive.IsActive = false
	catalog = append(catalog, inactive)

	result := RecommendCourses(Profile{Percentage: 72, PreviousEducation: "Commerce"}, catalog, RecommendOptions{})
	require.Len(t, result, DefaultRecommendationLimit)
	for i, rec := range result {
		assert.GreaterOrEqual(t, rec.Score, 0)
		assert.LessOrEqual(t, rec.Score, 100)
		assert.NotContains(t, []string{"closed", "full", "inactive"}, rec.CourseID)
		if i > 0 {
			assert.GreaterOrEqual(t, result[i-1].Score, rec.Score)
		}
	}
}

func TestRecommendCoursesEmptyCatalog(t *testing.T) {
	result := RecommendCourses(Profile{Percentage: 80}, nil, RecommendOptions{})
	require.NotNil(t, result)
	assert.Empty(t, result)
}

func TestEligibilityPoints(t *testing.T) {
	science := EducationStreams("12th Science")

	cases := []struct {
		name        string
		eligibility string
		percentage  float64
		education   map[string]bool
		want        float64
	}{
		{"empty text", "", 50, science, 20},
		{"stream match", "Science stream", 50, science, 40},
		{"threshold met", "Minimum 60% aggregate", 65, map[string]bool{}, 40},
		{"threshold missed beats stream match", "12th Science with 75%", 70, science, 0},
		{"unparseable", "Entrance interview required", 70, science, 20},
		{"different stream", "Commerce graduates", 70, science, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eligibilityPoints(tc.eligibility, tc.percentage, tc.education))
		})
	}
}

func TestAcademicPointsBands(t *testing.T) {
	assert.Equal(t, 30.0, AcademicPoints(90))
	assert.Equal(t, 25.0, AcademicPoints(89.9))
	assert.Equal(t, 20.0, AcademicPoints(70))
	assert.Equal(t, 15.0, AcademicPoints(60))
	assert.Equal(t, 10.0, AcademicPoints(0))
}

func TestInterestMatchesWholeWordsOnly(t *testing.T) {
	c := course("c1", "Artificial Intelligence", "AIML", "", 10, 10)
	assert.Equal(t, 0.0, interestPoints(c, tokenize("I maintain gardens")))
	assert.Equal(t, float64(InterestBonus), interestPoints(c, tokenize("AI and data science")))
	assert.Equal(t, 0.0, interestPoints(c, nil))

	coded := course("c2", "Bachelor of Technology", "CS101", "", 10, 10)
	assert.Equal(t, []string{"cs", "101"}, tokenize("CS101"))
	assert.True(t, CourseDomains(coded.Name+" "+coded.Code)["computer"])
	assert.Equal(t, float64(InterestBonus), interestPoints(coded, tokenize("software and coding")))
	assert.Equal(t, []string{"12", "th", "science"}, tokenize("12th Science"))
	assert.True(t, EducationStreams("12th Science")["12th"])
}

func approvedApp(id string, pct string, submitted time.Time) models.Application {
	return models.Application{
		ID:                id,
		ApplicationNumber: "APP2026" + id,
		FirstName:         "Applicant",
		LastName:          id,
		CourseID:          "cs",
		CourseName:        "Computer Science",
		Category:          models.CategoryGeneral,
		Percentage:        pct,
		Gender:            "Male",
		Status:            models.StatusApproved,
		SubmittedAt:       submitted,
	}
}

func TestGenerateMeritListOnlyApprovedAndRanked(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	apps := []models.Application{
		approvedApp("000001", "70", now.AddDate(0, 0, -2)),
		approvedApp("000002", "95", now.AddDate(0, 0, -2)),
		approvedApp("000003", "80", now.AddDate(0, 0, -2)),
	}
	pending := approvedApp("000004", "99", now)
	pending.Status = models.StatusPending
	rejected := approvedApp("000005", "99", now)
	rejected.Status = models.StatusRejected
	apps = append(apps, pending, rejected)

	list := GenerateMeritList(apps, models.MeritFilter{}, MeritOptions{Now: now})
	require.Len(t, list, 3)
	for i, entry := range list {
		assert.Equal(t, i+1, entry.Rank)
		assert.GreaterOrEqual(t, entry.MeritScore, 0.0)
		assert.LessOrEqual(t, entry.MeritScore, 100.0)
		assert.NotEqual(t, "000004", entry.ApplicationID)
		assert.NotEqual(t, "000005", entry.ApplicationID)
	}
	assert.Equal(t, "000002", list[0].ApplicationID)
	assert.Equal(t, 66.5, list[0].MeritScore)
}

func TestMeritScoreComponents(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	app := approvedApp("000001", "90", now.AddDate(0, 0, -31))
	app.Category = "sc"
	app.Gender = "Female"
	app.ApplicationDocuments = models.ApplicationDocuments{
		Photo: "photo.jpg", Signature: "sig.png", Marksheet10: "10.pdf", Marksheet12: "12.pdf", IDProof: "id.pdf",
	}
	// 63 + 10 + 5 + 5 + 10
	assert.Equal(t, 93.0, MeritScore(app, MeritOptions{Now: now}))

	app.ApplicationDocuments = models.ApplicationDocuments{Photo: "photo.jpg", IDProof: " "}
	assert.Equal(t, 85.0, MeritScore(app, MeritOptions{Now: now}))
}

func TestGenerateMeritListTieBreak(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	late := approvedApp("000002", "80", now.Add(-time.Hour))
	early := approvedApp("000003", "80", now.Add(-2*time.Hour))
	sameTimeA := approvedApp("000001", "80", now.Add(-time.Hour))

	list := GenerateMeritList([]models.Application{late, early, sameTimeA}, models.MeritFilter{}, MeritOptions{Now: now})
	require.Len(t, list, 3)
	assert.Equal(t, []string{"000003", "000001", "000002"}, []string{list[0].ApplicationID, list[1].ApplicationID, list[2].ApplicationID})
}

func TestGenerateMeritListFiltersAndLimit(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var apps []models.Application
	for i := 0; i < 10; i++ {
		app := approvedApp(fmt.Sprintf("%06d", i), fmt.Sprintf("%d", 60+i), now)
		if i%2 == 0 {
			app.CourseID = "me"
			app.Category = models.CategoryOBC
		}
		apps = append(apps, app)
	}

	list := GenerateMeritList(apps, models.MeritFilter{CourseID: "me", Category: "obc", Limit: 3}, MeritOptions{Now: now})
	require.Len(t, list, 3)
	for _, entry := range list {
		assert.Equal(t, "me", entry.CourseID)
	}
	assert.Equal(t, 3, list[2].Rank)
}

func TestEarlySubmissionBonusUsesDeadlineWhenSet(t *testing.T) {
	deadline := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	submitted := deadline.AddDate(0, 0, -21)
	farFuture := deadline.AddDate(1, 0, 0)

	assert.Equal(t, 3.0, EarlySubmissionBonus(submitted, MeritOptions{Now: farFuture, Deadline: deadline}))
	assert.Equal(t, 5.0, EarlySubmissionBonus(submitted, MeritOptions{Now: farFuture}))
	assert.Equal(t, 0.0, EarlySubmissionBonus(deadline.AddDate(0, 0, 3), MeritOptions{Deadline: deadline}))
}

func TestNormalizeMeritLimit(t *testing.T) {
	assert.Equal(t, DefaultMeritLimit, NormalizeMeritLimit(0))
	assert.Equal(t, MaxMeritLimit, NormalizeMeritLimit(5000))
	assert.Equal(t, 25, NormalizeMeritLimit(25))
}

func decidedHistory(approved, rejected int, pct string, category string) []models.Application {
	var history []models.Application
	for i := 0; i < approved; i++ {
		app := approvedApp(fmt.Sprintf("A%05d", i), pct, time.Now())
		app.Category = category
		history = append(history, app)
	}
	for i := 0; i < rejected; i++ {
		app := approvedApp(fmt.Sprintf("R%05d", i), "40", time.Now())
		app.Status = models.StatusRejected
		history = append(history, app)
	}
	return history
}

func TestPredictAdmissionChanceInsufficientData(t *testing.T) {
	c := course("cs", "Computer Science", "CS", "", 60, 30)
	history := decidedHistory(5, 4, "80", models.CategoryGeneral)
	pending := approvedApp("P1", "80", time.Now())
	pending.Status = models.StatusPending
	history = append(history, pending)

	prediction := PredictAdmissionChance(PredictionInput{Percentage: 99}, history, c, PredictOptions{})
	assert.Equal(t, ChanceInsufficient, prediction.Chance)
	assert.Equal(t, ConfidenceLow, prediction.Confidence)
	assert.Nil(t, prediction.ChanceScore)
	assert.Nil(t, prediction.Factors)
	assert.Equal(t, 9, prediction.HistoricalCount)
}

func TestPredictAdmissionChanceScores(t *testing.T) {
	c := course("cs", "Computer Science", "CS", "", 100, 50)
	history := decidedHistory(8, 4, "80", models.CategoryGeneral)

	prediction := PredictAdmissionChance(PredictionInput{Percentage: 92, Category: ""}, history, c, PredictOptions{})
	require.NotNil(t, prediction.ChanceScore)
	// 60 (>= avg+10) + 20 (100% share) + 10 (half the seats)
	assert.Equal(t, 90, *prediction.ChanceScore)
	assert.Equal(t, ChanceVeryHigh, prediction.Chance)
	assert.Equal(t, ConfidenceHigh, prediction.Confidence)
	assert.Equal(t, 80.0, prediction.Factors.ApprovedAverage)
	assert.Contains(t, prediction.Message, "Computer Science")

	low := PredictAdmissionChance(PredictionInput{Percentage: 60, Category: models.CategoryST}, history, c, PredictOptions{})
	// 10 (far below) + 10 (no ST approvals) + 10
	assert.Equal(t, 30, *low.ChanceScore)
	assert.Equal(t, ChanceLow, low.Chance)
	assert.Equal(t, ConfidenceLow, low.Confidence)
}

func TestChanceLabel(t *testing.T) {
	cases := map[int][2]string{
		80: {ChanceVeryHigh, ConfidenceHigh},
		60: {ChanceHigh, ConfidenceHigh},
		59: {ChanceModerate, ConfidenceMedium},
		20: {ChanceLow, ConfidenceLow},
		19: {ChanceVeryLow, ConfidenceLow},
	}
	for score, want := range cases {
		label, confidence := ChanceLabel(score)
		assert.Equal(t, want[0], label, "score %d", score)
		assert.Equal(t, want[1], confidence, "score %d", score)
	}
}

func TestParsePercentageThreshold(t *testing.T) {
	v, ok := percentageThreshold("At least 55.5 % in 12th")
	require.True(t, ok)
	assert.Equal(t, 55.5, v)

	_, ok = percentageThreshold("No threshold")
	assert.False(t, ok)
}
