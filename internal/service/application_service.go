package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	"github.com/noah-isme/admission-portal-api/pkg/database"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
	"github.com/noah-isme/admission-portal-api/pkg/mailer"
	"github.com/noah-isme/admission-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

const (
	applicationResource = "application"
	maxIdentifierTries  = 5

	constraintApplicationNumber = "applications_number_key"
	constraintStudentID         = "applications_student_id_key"
	constraintRollNumber        = "applications_roll_number_key"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Application, error)
	ExistsActiveForCourse(ctx context.Context, userID, courseID string) (bool, error)
	UpdateStatus(ctx context.Context, app *models.Application) error
	BulkUpdateStatus(ctx context.Context, ids []string, status models.ApplicationStatus, remarks *string, at time.Time) ([]models.Application, error)
	ConfirmAdmission(ctx context.Context, id, courseID string, assignment models.AdmissionAssignment) (bool, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
}

type applicationCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByRef(ctx context.Context, ref string) (*models.Course, error)
}

type applicantNotifier interface {
	Notify(ctx context.Context, n *models.Notification)
	Email(msg mailer.Message)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies the user performing a workflow action.
type Actor struct {
	UserID    string
	Role      models.UserRole
	IP        string
	UserAgent string
}

// IsAdmin reports whether the actor holds the administrator role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ApplicationService runs submission, review and admission workflows.
type ApplicationService struct {
	apps      applicationStore
	courses   applicationCourseReader
	notifier  applicantNotifier
	audit     auditWriter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	digits    func(n int) (string, error)
}

// NewApplicationService constructs an ApplicationService.
func NewApplicationService(
	apps applicationStore,
	courses applicationCourseReader,
	notifier applicantNotifier,
	audit auditWriter,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		apps:      apps,
		courses:   courses,
		notifier:  notifier,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
		digits:    randomDigits,
	}
}

// Submit records a new application with status Pending.
func (s *ApplicationService) Submit(ctx context.Context, actor Actor, req models.SubmitApplicationRequest) (*models.Application, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid application payload")
	}
	course, err := s.courses.FindByRef(ctx, strings.TrimSpace(req.Course))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	if !course.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not accepting applications")
	}
	exists, err := s.apps.ExistsActiveForCourse(ctx, actor.UserID, course.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing applications")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an application for this course is already in progress")
	}

	category := req.Category
	if category == "" {
		category = models.CategoryGeneral
	}
	app := &models.Application{
		UserID:               actor.UserID,
		FirstName:            strings.TrimSpace(req.FirstName),
		MiddleName:           req.MiddleName,
		LastName:             strings.TrimSpace(req.LastName),
		Email:                req.Email,
		Phone:                strings.TrimSpace(req.Phone),
		CourseID:             course.ID,
		CourseName:           course.Name,
		Category:             category,
		Percentage:           strings.TrimSpace(string(req.Percentage)),
		PreviousEducation:    strings.TrimSpace(req.PreviousEducation),
		Gender:               req.Gender,
		Status:               models.StatusPending,
		SubmittedAt:          s.now().UTC(),
		ApplicationDocuments: req.Documents,
	}

	for attempt := 1; ; attempt++ {
		suffix, err := s.digits(6)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to generate application number")
		}
		app.ApplicationNumber = fmt.Sprintf("APP%d%s", app.SubmittedAt.Year(), suffix)
		err = s.apps.Create(ctx, app)
		if err == nil {
			break
		}
		if database.IsUniqueViolation(err, constraintApplicationNumber) && attempt < maxIdentifierTries {
			app.ID = ""
			continue
		}
		return nil, appErrors.Internal(err, "failed to submit application")
	}

	s.writeAudit(ctx, actor, models.AuditActionApplicationSubmit, app.ID, map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"courseId":          app.CourseID,
	})
	s.notifier.Notify(ctx, &models.Notification{
		UserID:        app.UserID,
		ApplicationID: &app.ID,
		Title:         "Application Submitted",
		Message:       fmt.Sprintf("Your application %s for %s has been received and is pending review.", app.ApplicationNumber, app.CourseName),
		Type:          models.NotificationInfo,
	})
	return app, nil
}

// Get returns an application visible to actor: administrators see all, applicants their own.
func (s *ApplicationService) Get(ctx context.Context, actor Actor, id string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && app.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	return app, nil
}

// ListMine returns the actor's own applications.
func (s *ApplicationService) ListMine(ctx context.Context, actor Actor) ([]models.Application, error) {
	apps, err := s.apps.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list applications")
	}
	return apps, nil
}

// List returns a filtered page of applications for administrators.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationListQuery) ([]models.Application, *response.Pagination, error) {
	filter := models.ApplicationFilter{
		Category: strings.TrimSpace(query.Category),
		Search:   query.Search,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
		filter.Status = &status
	}
	if ref := strings.TrimSpace(query.Course); ref != "" {
		course, err := s.courses.FindByRef(ctx, ref)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []models.Application{}, &response.Pagination{Page: max(filter.Page, 1), PageSize: pageSizeOrDefault(filter.PageSize)}, nil
			}
			return nil, nil, appErrors.Internal(err, "failed to load course")
		}
		filter.CourseID = course.ID
	}

	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list applications")
	}
	return apps, &response.Pagination{Page: max(filter.Page, 1), PageSize: pageSizeOrDefault(filter.PageSize), TotalCount: total}, nil
}

// Stats returns application counts per status.
func (s *ApplicationService) Stats(ctx context.Context) (*dto.ApplicationStatsResponse, error) {
	counts, err := s.apps.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count applications")
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return &dto.ApplicationStatsResponse{Total: total, ByStatus: counts}, nil
}

// UpdateStatus moves an application to status. Any known status is accepted;
// moves off the review path are logged as administrator overrides.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor Actor, id string, req dto.UpdateStatusRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid status payload")
	}
	status, ok := models.ParseStatus(req.Status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := app.Status
	expected := previous.ExpectedNext(status)
	if !expected {
		logger.ForContext(ctx, s.logger).Warn("status override outside review path",
			zap.String("application_id", app.ID),
			zap.String("from", string(previous)),
			zap.String("to", string(status)),
			zap.String("actor_id", actor.UserID),
		)
	}

	now := s.now().UTC()
	app.Status = status
	if req.Remarks != nil {
		app.Remarks = req.Remarks
	}
	stampReview(app, status, now)
	if err := s.apps.UpdateStatus(ctx, app); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to update application status")
	}
	s.metrics.RecordTransition(string(previous), string(status), expected)

	s.writeAudit(ctx, actor, models.AuditActionStatusUpdate, app.ID, map[string]interface{}{
		"from":    previous,
		"to":      status,
		"remarks": app.Remarks,
	})
	s.cache.InvalidateMerit(ctx)
	s.announceStatus(ctx, app)
	return app, nil
}

// ConfirmAdmission locks a seat for an approved application and issues the
// student id and roll number.
func (s *ApplicationService) ConfirmAdmission(ctx context.Context, actor Actor, id string) (*dto.ConfirmAdmissionResponse, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.CanConfirmAdmission() {
		s.metrics.RecordAdmission("precondition_failed")
		return nil, appErrors.Clone(appErrors.ErrAdmissionPrecondition, "")
	}
	code := app.CourseName
	if course, err := s.courses.FindByID(ctx, app.CourseID); err == nil {
		code = course.Code
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load course")
	}
	prefix := coursePrefix(code)

	var assignment models.AdmissionAssignment
	var seatTaken bool
	for attempt := 1; ; attempt++ {
		assignment, err = s.newAssignment(prefix)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to generate admission identifiers")
		}
		seatTaken, err = s.apps.ConfirmAdmission(ctx, app.ID, app.CourseID, assignment)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrGuardNotMet) {
			s.metrics.RecordAdmission("precondition_failed")
			return nil, appErrors.Clone(appErrors.ErrAdmissionPrecondition, "")
		}
		collision := database.IsUniqueViolation(err, constraintStudentID) || database.IsUniqueViolation(err, constraintRollNumber)
		if collision && attempt < maxIdentifierTries {
			logger.ForContext(ctx, s.logger).Info("admission identifier collision, retrying", zap.String("application_id", app.ID), zap.Int("attempt", attempt))
			continue
		}
		s.metrics.RecordAdmission("error")
		return nil, appErrors.Internal(err, "failed to confirm admission")
	}

	if !seatTaken {
		logger.ForContext(ctx, s.logger).Warn("admission confirmed without an available seat",
			zap.String("application_id", app.ID),
			zap.String("course_id", app.CourseID),
		)
	}
	s.metrics.RecordAdmission("confirmed")
	s.cache.InvalidateCatalog(ctx)
	s.cache.InvalidateMerit(ctx)
	s.writeAudit(ctx, actor, models.AuditActionConfirmAdmission, app.ID, map[string]interface{}{
		"studentId":  assignment.StudentID,
		"rollNumber": assignment.RollNumber,
		"seat":       seatTaken,
	})

	s.notifier.Notify(ctx, &models.Notification{
		UserID:        app.UserID,
		ApplicationID: &app.ID,
		Title:         "Admission Confirmed",
		Message:       fmt.Sprintf("Welcome! Your admission to %s is confirmed. Student ID: %s, Roll Number: %s.", app.CourseName, assignment.StudentID, assignment.RollNumber),
		Type:          models.NotificationSuccess,
	})
	s.notifier.Email(mailer.Message{
		To:       app.Email,
		ToName:   app.FullName(),
		Subject:  fmt.Sprintf("Admission confirmed: %s", app.CourseName),
		TextBody: fmt.Sprintf("Dear %s,\n\nYour admission to %s is confirmed.\nStudent ID: %s\nRoll Number: %s\n", app.FullName(), app.CourseName, assignment.StudentID, assignment.RollNumber),
	})

	return &dto.ConfirmAdmissionResponse{StudentID: assignment.StudentID, RollNumber: assignment.RollNumber, SeatAllocated: seatTaken}, nil
}

// BulkApprove approves every listed application.
func (s *ApplicationService) BulkApprove(ctx context.Context, actor Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResponse, error) {
	return s.bulkUpdate(ctx, actor, req, models.StatusApproved)
}

// BulkReject rejects every listed application.
func (s *ApplicationService) BulkReject(ctx context.Context, actor Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResponse, error) {
	return s.bulkUpdate(ctx, actor, req, models.StatusRejected)
}

// bulkUpdate writes the status in one statement, then notifies per updated
// row. Notification failures do not undo the status write.
func (s *ApplicationService) bulkUpdate(ctx context.Context, actor Actor, req dto.BulkStatusRequest, status models.ApplicationStatus) (*dto.BulkStatusResponse, error) {
	ids := dedupeIDs(req.ApplicationIDs)
	req.ApplicationIDs = ids
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "applicationIds must list at least one application")
	}

	updated, err := s.apps.BulkUpdateStatus(ctx, ids, status, req.Remarks, s.now().UTC())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update applications")
	}

	for i := range updated {
		app := &updated[i]
		s.metrics.RecordTransition("bulk", string(status), true)
		s.announceStatus(ctx, app)
	}
	s.cache.InvalidateMerit(ctx)
	s.writeAudit(ctx, actor, models.AuditActionBulkStatusUpdate, "", map[string]interface{}{
		"status":    status,
		"requested": len(ids),
		"updated":   len(updated),
	})
	logger.ForContext(ctx, s.logger).Info("bulk status update",
		zap.String("status", string(status)),
		zap.Int("requested", len(ids)),
		zap.Int("updated", len(updated)),
	)
	return &dto.BulkStatusResponse{Requested: len(ids), Updated: len(updated)}, nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application id is required")
	}
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Internal(err, "failed to load application")
	}
	return app, nil
}

// announceStatus sends the in-app notification and email for app's current status.
func (s *ApplicationService) announceStatus(ctx context.Context, app *models.Application) {
	title, message, severity := statusNotice(app)
	s.notifier.Notify(ctx, &models.Notification{
		UserID:        app.UserID,
		ApplicationID: &app.ID,
		Title:         title,
		Message:       message,
		Type:          severity,
	})
	body := fmt.Sprintf("Dear %s,\n\n%s\n", app.FullName(), message)
	if app.Remarks != nil && strings.TrimSpace(*app.Remarks) != "" {
		body += fmt.Sprintf("\nRemarks: %s\n", strings.TrimSpace(*app.Remarks))
	}
	s.notifier.Email(mailer.Message{
		To:       app.Email,
		ToName:   app.FullName(),
		Subject:  fmt.Sprintf("%s: %s", title, app.ApplicationNumber),
		TextBody: body,
	})
}

func (s *ApplicationService) newAssignment(prefix string) (models.AdmissionAssignment, error) {
	now := s.now().UTC()
	studentSuffix, err := s.digits(4)
	if err != nil {
		return models.AdmissionAssignment{}, err
	}
	rollSuffix, err := s.digits(4)
	if err != nil {
		return models.AdmissionAssignment{}, err
	}
	return models.AdmissionAssignment{
		StudentID:  fmt.Sprintf("STU%s%s%s", now.Format("06"), prefix, studentSuffix),
		RollNumber: fmt.Sprintf("%d%s%s", now.Year(), prefix, rollSuffix),
		AdmittedAt: now,
	}, nil
}

func (s *ApplicationService) writeAudit(ctx context.Context, actor Actor, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  applicationResource,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		if values == nil {
			values = map[string]interface{}{}
		}
		values["requestId"] = reqID
	}
	if payload, err := json.Marshal(values); err == nil {
		entry.NewValues = payload
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		logger.ForContext(ctx, s.logger).Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func stampReview(app *models.Application, status models.ApplicationStatus, at time.Time) {
	switch status {
	case models.StatusVerified:
		app.VerifiedAt = &at
	case models.StatusApproved:
		app.ApprovedAt = &at
	}
}

func statusNotice(app *models.Application) (string, string, models.NotificationType) {
	switch app.Status {
	case models.StatusVerified:
		return "Application Verified",
			fmt.Sprintf("Your application %s for %s has been verified and is under review.", app.ApplicationNumber, app.CourseName),
			models.NotificationInfo
	case models.StatusApproved:
		return "Application Approved",
			fmt.Sprintf("Congratulations! Your application %s for %s has been approved.", app.ApplicationNumber, app.CourseName),
			models.NotificationSuccess
	case models.StatusRejected:
		return "Application Rejected",
			fmt.Sprintf("We regret to inform you that your application %s for %s was not approved.", app.ApplicationNumber, app.CourseName),
			models.NotificationError
	case models.StatusHold:
		return "Application On Hold",
			fmt.Sprintf("Your application %s for %s has been put on hold. Please check the remarks or contact the admissions office.", app.ApplicationNumber, app.CourseName),
			models.NotificationWarning
	default:
		return "Application Pending",
			fmt.Sprintf("Your application %s for %s is pending review.", app.ApplicationNumber, app.CourseName),
			models.NotificationInfo
	}
}

// coursePrefix returns the first three letters of code, upper-cased and
// padded with X.
func coursePrefix(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	prefix := b.String()
	return prefix + strings.Repeat("X", 3-len(prefix))
}

func randomDigits(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func pageSizeOrDefault(size int) int {
	if size <= 0 || size > 100 {
		return 20
	}
	return size
}
