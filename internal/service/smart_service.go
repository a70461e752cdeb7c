package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/scoring"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/export"
)

type courseCatalog interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByRef(ctx context.Context, ref string) (*models.Course, error)
}

type scoringApplicationReader interface {
	ListApproved(ctx context.Context, filter models.MeritFilter) ([]models.Application, error)
	DecidedForCourse(ctx context.Context, courseID string) ([]models.Application, error)
}

type datasetRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
	Extension() string
}

// Export formats accepted for merit lists.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// SmartServiceConfig tunes scoring behaviour.
type SmartServiceConfig struct {
	CacheTTL             time.Duration
	RecommendationLimit  int
	MeritListLimit       int
	PredictionMinHistory int
	CycleDeadline        time.Time
}

// MeritExport is a rendered merit list file.
type MeritExport struct {
	Filename    string
	ContentType string
	Payload     []byte
	Count       int
}

// SmartService loads scoring inputs, runs the scoring engine and records metrics.
type SmartService struct {
	courses   courseCatalog
	apps      scoringApplicationReader
	cache     *CacheService
	metrics   *MetricsService
	renderers map[string]datasetRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SmartServiceConfig
	now       func() time.Time
}

// NewSmartService constructs a SmartService.
func NewSmartService(courses courseCatalog, apps scoringApplicationReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SmartServiceConfig) *SmartService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecommendationLimit <= 0 {
		cfg.RecommendationLimit = scoring.DefaultRecommendationLimit
	}
	if cfg.MeritListLimit <= 0 {
		cfg.MeritListLimit = scoring.DefaultMeritLimit
	}
	if cfg.PredictionMinHistory <= 0 {
		cfg.PredictionMinHistory = scoring.DefaultMinHistory
	}
	return &SmartService{
		courses: courses,
		apps:    apps,
		cache:   cache,
		metrics: metrics,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RecommendCourses ranks the open catalogue for an applicant profile.
func (s *SmartService) RecommendCourses(ctx context.Context, req dto.RecommendRequest) ([]scoring.ScoredCourse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid recommendation payload")
	}
	start := s.now()
	catalog, err := s.activeCatalog(ctx)
	if err != nil {
		s.metrics.ObserveScoring("recommend", "error", time.Since(start))
		return nil, appErrors.Internal(err, "failed to load courses")
	}

	profile := scoring.Profile{
		Percentage:        req.Percentage.Value(),
		PreviousEducation: req.PreviousEducation,
		Category:          req.Category,
		Interests:         req.Interests,
	}
	results := scoring.RecommendCourses(profile, catalog, scoring.RecommendOptions{Limit: s.cfg.RecommendationLimit})
	s.metrics.ObserveScoring("recommend", outcomeOf(len(results)), time.Since(start))
	return results, nil
}

// MeritList ranks approved applications for the optional course and category
// filters and reports whether the inputs came from cache.
func (s *SmartService) MeritList(ctx context.Context, query dto.MeritListQuery) ([]scoring.MeritEntry, bool, error) {
	filter, err := s.meritFilter(ctx, query)
	if err != nil {
		return nil, false, err
	}
	start := s.now()
	apps, hit, err := remember(ctx, s.cache, meritCacheKey(filter), s.cfg.CacheTTL, func(ctx context.Context) ([]models.Application, error) {
		return s.apps.ListApproved(ctx, models.MeritFilter{CourseID: filter.CourseID, Category: filter.Category})
	})
	if err != nil {
		s.metrics.ObserveScoring("merit_list", "error", time.Since(start))
		return nil, false, appErrors.Internal(err, "failed to load approved applications")
	}
	entries := scoring.GenerateMeritList(apps, filter, scoring.MeritOptions{Now: s.now(), Deadline: s.cfg.CycleDeadline})
	s.metrics.ObserveScoring("merit_list", outcomeOf(len(entries)), time.Since(start))
	s.logger.Debug("merit list generated",
		zap.String("course_id", filter.CourseID),
		zap.String("category", filter.Category),
		zap.Int("count", len(entries)),
		zap.Bool("cache_hit", hit),
	)
	return entries, hit, nil
}

// ExportMeritList renders the merit list as CSV or PDF.
func (s *SmartService) ExportMeritList(ctx context.Context, query dto.MeritListQuery) (*MeritExport, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedExport, fmt.Sprintf("unsupported export format %q", query.Format))
	}
	entries, _, err := s.MeritList(ctx, query)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(meritDataset(entries), "Merit List")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render merit list")
	}
	return &MeritExport{
		Filename:    fmt.Sprintf("merit-list-%s.%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
		Count:       len(entries),
	}, nil
}

// PredictAdmission estimates the admission chance for a course id or code.
func (s *SmartService) PredictAdmission(ctx context.Context, req dto.PredictRequest) (*scoring.Prediction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid prediction payload")
	}
	start := s.now()
	course, err := s.courses.FindByRef(ctx, strings.TrimSpace(req.Course))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	history, err := s.apps.DecidedForCourse(ctx, course.ID)
	if err != nil {
		s.metrics.ObserveScoring("predict", "error", time.Since(start))
		return nil, appErrors.Internal(err, "failed to load admission history")
	}

	input := scoring.PredictionInput{Percentage: req.Percentage.Value(), Category: req.Category}
	prediction := scoring.PredictAdmissionChance(input, history, *course, scoring.PredictOptions{MinHistory: s.cfg.PredictionMinHistory})
	outcome := "ok"
	if prediction.ChanceScore == nil {
		outcome = "insufficient_data"
	}
	s.metrics.ObserveScoring("predict", outcome, time.Since(start))
	return &prediction, nil
}

func (s *SmartService) activeCatalog(ctx context.Context) ([]models.Course, error) {
	courses, _, err := remember(ctx, s.cache, cacheKeyActiveCourses, s.cfg.CacheTTL, func(ctx context.Context) ([]models.Course, error) {
		return s.courses.List(ctx, models.CourseFilter{ActiveOnly: true})
	})
	return courses, err
}

// meritFilter resolves a course code to its id so cache keys and SQL filters agree.
func (s *SmartService) meritFilter(ctx context.Context, query dto.MeritListQuery) (models.MeritFilter, error) {
	if query.Limit < 0 {
		return models.MeritFilter{}, appErrors.Clone(appErrors.ErrValidation, "limit must be positive")
	}
	limit := query.Limit
	if limit == 0 {
		limit = s.cfg.MeritListLimit
	}
	filter := models.MeritFilter{Category: strings.TrimSpace(query.Category), Limit: scoring.NormalizeMeritLimit(limit)}
	ref := strings.TrimSpace(query.Course)
	if ref == "" {
		return filter, nil
	}
	course, err := s.courses.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MeritFilter{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return models.MeritFilter{}, appErrors.Internal(err, "failed to load course")
	}
	filter.CourseID = course.ID
	return filter, nil
}

func meritDataset(entries []scoring.MeritEntry) export.Dataset {
	headers := []string{"Rank", "Application No", "Name", "Email", "Course", "Category", "Gender", "Percentage", "Merit Score"}
	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]string{
			"Rank":           strconv.Itoa(e.Rank),
			"Application No": e.ApplicationNumber,
			"Name":           e.Name,
			"Email":          e.Email,
			"Course":         e.Course,
			"Category":       e.Category,
			"Gender":         e.Gender,
			"Percentage":     strconv.FormatFloat(e.Percentage, 'f', 2, 64),
			"Merit Score":    strconv.FormatFloat(e.MeritScore, 'f', 2, 64),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func outcomeOf(n int) string {
	if n == 0 {
		return "empty"
	}
	return "ok"
}
