package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/pkg/database"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
)

const (
	courseResource       = "course"
	constraintCourseCode = "courses_code_key"
)

type courseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByRef(ctx context.Context, ref string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo      courseStore
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseStore, audit auditWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger}
}

// List returns catalogue entries. Non-admin callers only see active courses.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course by id or code.
func (s *CourseService) Get(ctx context.Context, ref string) (*models.Course, error) {
	course, err := s.repo.FindByRef(ctx, strings.TrimSpace(ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

// Create adds a course. Available seats default to the total.
func (s *CourseService) Create(ctx context.Context, actor Actor, req models.CreateCourseRequest) (*models.Course, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	available := req.TotalSeats
	if req.AvailableSeats != nil {
		available = *req.AvailableSeats
	}
	if available > req.TotalSeats {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availableSeats cannot exceed totalSeats")
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	course := &models.Course{
		Name:           req.Name,
		Code:           req.Code,
		Eligibility:    strings.TrimSpace(req.Eligibility),
		TotalSeats:     req.TotalSeats,
		AvailableSeats: available,
		Fees:           req.Fees,
		DurationYears:  req.DurationYears,
		IsActive:       active,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if database.IsUniqueViolation(err, constraintCourseCode) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a course with this code already exists")
		}
		return nil, appErrors.Internal(err, "failed to create course")
	}
	s.cache.InvalidateCatalog(ctx)
	s.writeAudit(ctx, actor, models.AuditActionCourseCreate, course)
	return course, nil
}

// Update patches a course. Seat counts must stay within 0 <= available <= total.
func (s *CourseService) Update(ctx context.Context, actor Actor, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		course.Name = strings.TrimSpace(*req.Name)
	}
	if req.Eligibility != nil {
		course.Eligibility = strings.TrimSpace(*req.Eligibility)
	}
	if req.TotalSeats != nil {
		course.TotalSeats = *req.TotalSeats
	}
	if req.AvailableSeats != nil {
		course.AvailableSeats = *req.AvailableSeats
	}
	if req.Fees != nil {
		course.Fees = *req.Fees
	}
	if req.DurationYears != nil {
		course.DurationYears = *req.DurationYears
	}
	if req.IsActive != nil {
		course.IsActive = *req.IsActive
	}
	if course.AvailableSeats > course.TotalSeats {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availableSeats cannot exceed totalSeats")
	}
	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to update course")
	}
	s.cache.InvalidateCatalog(ctx)
	s.writeAudit(ctx, actor, models.AuditActionCourseUpdate, course)
	return course, nil
}

func (s *CourseService) writeAudit(ctx context.Context, actor Actor, action string, course *models.Course) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   courseResource,
		ResourceID: &course.ID,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if payload, err := json.Marshal(course); err == nil {
		entry.NewValues = payload
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
