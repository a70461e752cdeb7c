package service

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/mailer"
	"github.com/noah-isme/admission-portal-api/pkg/middleware/requestid"
)

var fixedNow = time.Date(2026, time.June, 15, 9, 30, 0, 0, time.UTC)

type courseStoreStub struct {
	courses map[string]*models.Course
	listErr error
	lists   int
	created []*models.Course
	updated []*models.Course
	saveErr error
}

func newCourseStoreStub(courses ...models.Course) *courseStoreStub {
	stub := &courseStoreStub{courses: map[string]*models.Course{}}
	for i := range courses {
		c := courses[i]
		stub.courses[c.ID] = &c
	}
	return stub
}

func (s *courseStoreStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Course, 0, len(s.courses))
	for _, c := range s.courses {
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *courseStoreStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseStoreStub) FindByRef(ctx context.Context, ref string) (*models.Course, error) {
	for _, c := range s.courses {
		if c.ID == ref || strings.EqualFold(c.Code, ref) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *courseStoreStub) Create(ctx context.Context, course *models.Course) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	course.ID = "course-new"
	s.created = append(s.created, course)
	s.courses[course.ID] = course
	return nil
}

func (s *courseStoreStub) Update(ctx context.Context, course *models.Course) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.updated = append(s.updated, course)
	copied := *course
	s.courses[course.ID] = &copied
	return nil
}

// applicationStoreStub mimics the guarded SQL of the repository in memory.
type applicationStoreStub struct {
	apps        map[string]*models.Application
	courses     *courseStoreStub
	createErrs  []error
	confirmErrs []error
	confirms    int
	exists      bool
}

func newApplicationStoreStub(courses *courseStoreStub, apps ...models.Application) *applicationStoreStub {
	stub := &applicationStoreStub{apps: map[string]*models.Application{}, courses: courses}
	for i := range apps {
		a := apps[i]
		stub.apps[a.ID] = &a
	}
	return stub
}

func (s *applicationStoreStub) Create(ctx context.Context, app *models.Application) error {
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		return err
	}
	if app.ID == "" {
		app.ID = "app-new"
	}
	copied := *app
	s.apps[app.ID] = &copied
	return nil
}

func (s *applicationStoreStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if a, ok := s.apps[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *applicationStoreStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	out := make([]models.Application, 0)
	for _, a := range s.apps {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.CourseID != "" && a.CourseID != filter.CourseID {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *applicationStoreStub) ListByUser(ctx context.Context, userID string) ([]models.Application, error) {
	out := make([]models.Application, 0)
	for _, a := range s.apps {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *applicationStoreStub) ExistsActiveForCourse(ctx context.Context, userID, courseID string) (bool, error) {
	if s.exists {
		return true, nil
	}
	for _, a := range s.apps {
		if a.UserID == userID && a.CourseID == courseID && a.Status != models.StatusRejected {
			return true, nil
		}
	}
	return false, nil
}

func (s *applicationStoreStub) UpdateStatus(ctx context.Context, app *models.Application) error {
	if _, ok := s.apps[app.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *app
	s.apps[app.ID] = &copied
	return nil
}

func (s *applicationStoreStub) BulkUpdateStatus(ctx context.Context, ids []string, status models.ApplicationStatus, remarks *string, at time.Time) ([]models.Application, error) {
	updated := make([]models.Application, 0)
	for _, id := range ids {
		a, ok := s.apps[id]
		if !ok {
			continue
		}
		a.Status = status
		if remarks != nil {
			a.Remarks = remarks
		}
		stampReview(a, status, at)
		updated = append(updated, *a)
	}
	return updated, nil
}

func (s *applicationStoreStub) ConfirmAdmission(ctx context.Context, id, courseID string, assignment models.AdmissionAssignment) (bool, error) {
	s.confirms++
	if len(s.confirmErrs) > 0 {
		err := s.confirmErrs[0]
		s.confirmErrs = s.confirmErrs[1:]
		return false, err
	}
	a, ok := s.apps[id]
	if !ok || a.Status != models.StatusApproved || a.SeatLocked {
		return false, repository.ErrGuardNotMet
	}
	a.SeatLocked = true
	a.IsAdmitted = true
	a.AdmittedAt = &assignment.AdmittedAt
	a.StudentID = &assignment.StudentID
	a.RollNumber = &assignment.RollNumber

	course, ok := s.courses.courses[courseID]
	if !ok || course.AvailableSeats <= 0 {
		return false, nil
	}
	course.AvailableSeats--
	return true, nil
}

func (s *applicationStoreStub) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	counts := map[models.ApplicationStatus]int{}
	for _, a := range s.apps {
		counts[a.Status]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, models.StatusCount{Status: status, Count: n})
	}
	return out, nil
}

type notifierStub struct {
	notifications []*models.Notification
	emails        []mailer.Message
}

func (n *notifierStub) Notify(ctx context.Context, notification *models.Notification) {
	n.notifications = append(n.notifications, notification)
}

func (n *notifierStub) Email(msg mailer.Message) {
	n.emails = append(n.emails, msg)
}

type auditStub struct {
	entries []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func testCourse() models.Course {
	return models.Course{ID: "course-1", Name: "B.Tech Computer Science", Code: "cse101", Eligibility: "12th Science with 60%", TotalSeats: 60, AvailableSeats: 10, Fees: 150000, DurationYears: 4, IsActive: true}
}

func testApplication(id string, status models.ApplicationStatus) models.Application {
	return models.Application{
		ID:                id,
		ApplicationNumber: "APP2026000" + id[len(id)-3:],
		UserID:            "user-" + id,
		FirstName:         "Asha",
		LastName:          "Rao",
		Email:             "asha@example.com",
		CourseID:          "course-1",
		CourseName:        "B.Tech Computer Science",
		Category:          models.CategoryGeneral,
		Percentage:        "88",
		Status:            status,
		SubmittedAt:       fixedNow.AddDate(0, -1, 0),
	}
}

type applicationFixture struct {
	svc      *ApplicationService
	store    *applicationStoreStub
	courses  *courseStoreStub
	notifier *notifierStub
	audit    *auditStub
}

func newApplicationFixture(apps ...models.Application) applicationFixture {
	courses := newCourseStoreStub(testCourse())
	store := newApplicationStoreStub(courses, apps...)
	notifier := &notifierStub{}
	audit := &auditStub{}
	svc := NewApplicationService(store, courses, notifier, audit, nil, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return applicationFixture{svc: svc, store: store, courses: courses, notifier: notifier, audit: audit}
}

var adminActor = Actor{UserID: "admin-1", Role: models.RoleAdmin}

func TestUpdateStatusApprovedStampsAndNotifiesOnce(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusVerified))

	app, err := fx.svc.UpdateStatus(context.Background(), adminActor, "app-001", dto.UpdateStatusRequest{Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
	require.NotNil(t, app.ApprovedAt)
	assert.Equal(t, fixedNow, *app.ApprovedAt)
	assert.Nil(t, app.VerifiedAt)

	require.Len(t, fx.notifier.notifications, 1)
	assert.Equal(t, models.NotificationSuccess, fx.notifier.notifications[0].Type)
	assert.Equal(t, "Application Approved", fx.notifier.notifications[0].Title)
	require.Len(t, fx.notifier.emails, 1)
	assert.Equal(t, "asha@example.com", fx.notifier.emails[0].To)
	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, models.AuditActionStatusUpdate, fx.audit.entries[0].Action)
}

func TestUpdateStatusAuditCarriesRequestID(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusPending))
	ctx := requestid.WithValue(context.Background(), "req-42")

	_, err := fx.svc.UpdateStatus(ctx, adminActor, "app-001", dto.UpdateStatusRequest{Status: "Verified"})
	require.NoError(t, err)

	require.Len(t, fx.audit.entries, 1)
	entry := fx.audit.entries[0]
	assert.Equal(t, models.AuditActionStatusUpdate, entry.Action)
	assert.Contains(t, string(entry.NewValues), `"requestId":"req-42"`)
}

func TestUpdateStatusSameStatusTwiceNotifiesTwice(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusPending))
	req := dto.UpdateStatusRequest{Status: "Hold"}

	_, err := fx.svc.UpdateStatus(context.Background(), adminActor, "app-001", req)
	require.NoError(t, err)
	_, err = fx.svc.UpdateStatus(context.Background(), adminActor, "app-001", req)
	require.NoError(t, err)

	require.Len(t, fx.notifier.notifications, 2)
	for _, n := range fx.notifier.notifications {
		assert.Equal(t, models.NotificationWarning, n.Type)
	}
}

func TestUpdateStatusSeverityByStatus(t *testing.T) {
	cases := map[string]models.NotificationType{
		"Verified": models.NotificationInfo,
		"Approved": models.NotificationSuccess,
		"Rejected": models.NotificationError,
		"Hold":     models.NotificationWarning,
		"Pending":  models.NotificationInfo,
	}
	for status, expected := range cases {
		t.Run(status, func(t *testing.T) {
			fx := newApplicationFixture(testApplication("app-001", models.StatusPending))
			_, err := fx.svc.UpdateStatus(context.Background(), adminActor, "app-001", dto.UpdateStatusRequest{Status: status})
			require.NoError(t, err)
			require.Len(t, fx.notifier.notifications, 1)
			assert.Equal(t, expected, fx.notifier.notifications[0].Type)
		})
	}
}

func TestUpdateStatusAcceptsOverride(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusRejected))
	remarks := "reconsidered on appeal"

	app, err := fx.svc.UpdateStatus(context.Background(), adminActor, "app-001", dto.UpdateStatusRequest{Status: "Approved", Remarks: &remarks})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
	require.NotNil(t, app.Remarks)
	assert.Equal(t, remarks, *app.Remarks)
	assert.Contains(t, fx.notifier.emails[0].TextBody, remarks)
}

func TestUpdateStatusValidation(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusPending))

	_, err := fx.svc.UpdateStatus(context.Background(), adminActor, "app-001", dto.UpdateStatusRequest{Status: "Waitlisted"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.svc.UpdateStatus(context.Background(), adminActor, "missing", dto.UpdateStatusRequest{Status: "Verified"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, fx.notifier.notifications)
}

func TestConfirmAdmissionTwiceDecrementsSeatOnce(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusApproved))

	res, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	require.NoError(t, err)
	assert.True(t, res.SeatAllocated)
	assert.Regexp(t, regexp.MustCompile(`^STU\d{2}[A-Z]{3}\d{4}$`), res.StudentID)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}[A-Z]{3}\d{4}$`), res.RollNumber)
	assert.Equal(t, "STU26CSE", res.StudentID[:8])
	assert.Equal(t, "2026CSE", res.RollNumber[:7])

	_, err = fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	assert.ErrorIs(t, err, appErrors.ErrAdmissionPrecondition)
	assert.Equal(t, 9, fx.courses.courses["course-1"].AvailableSeats)

	stored := fx.store.apps["app-001"]
	assert.True(t, stored.SeatLocked)
	assert.True(t, stored.IsAdmitted)
	require.NotNil(t, stored.StudentID)
	assert.Equal(t, res.StudentID, *stored.StudentID)

	require.Len(t, fx.notifier.notifications, 1)
	assert.Equal(t, "Admission Confirmed", fx.notifier.notifications[0].Title)
	assert.Len(t, fx.notifier.emails, 1)
}

func TestConfirmAdmissionRequiresApproved(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusVerified))

	_, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "ADMISSION_PRECONDITION_FAILED", appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Zero(t, fx.store.confirms)
}

func TestConfirmAdmissionGuardRace(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusApproved))
	fx.store.confirmErrs = []error{repository.ErrGuardNotMet}

	_, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	assert.ErrorIs(t, err, appErrors.ErrAdmissionPrecondition)
	assert.Empty(t, fx.notifier.notifications)
}

func TestConfirmAdmissionRetriesIdentifierCollision(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusApproved))
	fx.store.confirmErrs = []error{
		&pq.Error{Code: "23505", Constraint: "applications_student_id_key"},
		&pq.Error{Code: "23505", Constraint: "applications_roll_number_key"},
	}
	calls := 0
	fx.svc.digits = func(n int) (string, error) {
		calls++
		return "0042", nil
	}

	res, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	require.NoError(t, err)
	assert.Equal(t, "STU26CSE0042", res.StudentID)
	assert.Equal(t, 3, fx.store.confirms)
	assert.Equal(t, 6, calls)
}

func TestConfirmAdmissionGivesUpAfterRepeatedCollisions(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusApproved))
	for i := 0; i < maxIdentifierTries; i++ {
		fx.store.confirmErrs = append(fx.store.confirmErrs, &pq.Error{Code: "23505", Constraint: "applications_student_id_key"})
	}

	_, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, maxIdentifierTries, fx.store.confirms)
}

func TestConfirmAdmissionWithoutSeatsStillAdmits(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusApproved))
	fx.courses.courses["course-1"].AvailableSeats = 0

	res, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, "app-001")
	require.NoError(t, err)
	assert.False(t, res.SeatAllocated)
	assert.Equal(t, 0, fx.courses.courses["course-1"].AvailableSeats)
}

func TestBulkApprove(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusVerified), testApplication("app-002", models.StatusPending))

	res, err := fx.svc.BulkApprove(context.Background(), adminActor, dto.BulkStatusRequest{ApplicationIDs: []string{"app-001", "app-001", "app-002", "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 2, res.Updated)
	assert.Len(t, fx.notifier.notifications, 2)
	assert.Len(t, fx.notifier.emails, 2)
	assert.NotNil(t, fx.store.apps["app-002"].ApprovedAt)
}

func TestBulkRejectRequiresIDs(t *testing.T) {
	fx := newApplicationFixture()

	_, err := fx.svc.BulkReject(context.Background(), adminActor, dto.BulkStatusRequest{ApplicationIDs: []string{" "}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSubmitApplication(t *testing.T) {
	fx := newApplicationFixture()
	fx.svc.digits = func(n int) (string, error) { return "000123", nil }
	applicant := Actor{UserID: "user-9", Role: models.RoleApplicant}
	req := models.SubmitApplicationRequest{
		FirstName:         "Meera",
		LastName:          "Iyer",
		Email:             "Meera@Example.com",
		Course:            "cse101",
		Percentage:        "91.5",
		PreviousEducation: "12th Science",
		Gender:            "Female",
		Documents:         models.ApplicationDocuments{Photo: "photo.png"},
	}

	app, err := fx.svc.Submit(context.Background(), applicant, req)
	require.NoError(t, err)
	assert.Equal(t, "APP2026000123", app.ApplicationNumber)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, "course-1", app.CourseID)
	assert.Equal(t, models.CategoryGeneral, app.Category)
	assert.Equal(t, "meera@example.com", app.Email)
	assert.Len(t, fx.notifier.notifications, 1)

	_, err = fx.svc.Submit(context.Background(), applicant, req)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestSubmitApplicationRetriesNumberCollision(t *testing.T) {
	fx := newApplicationFixture()
	fx.store.createErrs = []error{&pq.Error{Code: "23505", Constraint: "applications_number_key"}}
	applicant := Actor{UserID: "user-9", Role: models.RoleApplicant}

	app, err := fx.svc.Submit(context.Background(), applicant, models.SubmitApplicationRequest{
		FirstName: "Meera", LastName: "Iyer", Email: "meera@example.com", Course: "course-1", Percentage: "70", PreviousEducation: "12th Commerce",
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^APP2026\d{6}$`), app.ApplicationNumber)
}

func TestSubmitApplicationUnknownCourse(t *testing.T) {
	fx := newApplicationFixture()

	_, err := fx.svc.Submit(context.Background(), Actor{UserID: "u"}, models.SubmitApplicationRequest{
		FirstName: "A", LastName: "B", Email: "a@b.com", Course: "nope", Percentage: "70", PreviousEducation: "12th",
	})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGetApplicationHidesOtherApplicants(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusPending))

	_, err := fx.svc.Get(context.Background(), Actor{UserID: "intruder", Role: models.RoleApplicant}, "app-001")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	app, err := fx.svc.Get(context.Background(), Actor{UserID: "user-app-001", Role: models.RoleApplicant}, "app-001")
	require.NoError(t, err)
	assert.Equal(t, "app-001", app.ID)

	_, err = fx.svc.Get(context.Background(), adminActor, "app-001")
	assert.NoError(t, err)
}

func TestApplicationStats(t *testing.T) {
	fx := newApplicationFixture(testApplication("app-001", models.StatusPending), testApplication("app-002", models.StatusPending), testApplication("app-003", models.StatusApproved))

	stats, err := fx.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Len(t, stats.ByStatus, 2)
}

func TestListApplicationsRejectsUnknownStatus(t *testing.T) {
	fx := newApplicationFixture()

	_, _, err := fx.svc.List(context.Background(), dto.ApplicationListQuery{Status: "archived"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCoursePrefix(t *testing.T) {
	assert.Equal(t, "CSE", coursePrefix("cse101"))
	assert.Equal(t, "MEX", coursePrefix("me"))
	assert.Equal(t, "XXX", coursePrefix("123"))
	assert.Equal(t, "BTE", coursePrefix("B.Tech"))
}

func TestRandomDigitsPadsToWidth(t *testing.T) {
	for i := 0; i < 20; i++ {
		v, err := randomDigits(4)
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^\d{4}$`), v)
	}
}

func TestApplicationLifecycleEndToEnd(t *testing.T) {
	fx := newApplicationFixture()
	fx.courses.courses["course-cs"] = &models.Course{ID: "course-cs", Name: "Computer Science", Code: "CS", TotalSeats: 40, AvailableSeats: 2, IsActive: true}
	applicant := Actor{UserID: "user-7", Role: models.RoleApplicant}

	app, err := fx.svc.Submit(context.Background(), applicant, models.SubmitApplicationRequest{
		FirstName:         "Ravi",
		LastName:          "Kumar",
		Email:             "ravi@example.com",
		Course:            "CS",
		Category:          models.CategoryGeneral,
		Percentage:        "85",
		PreviousEducation: "12th Science (PCM)",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, "course-cs", app.CourseID)
	submitted := len(fx.notifier.notifications)

	approved, err := fx.svc.UpdateStatus(context.Background(), adminActor, app.ID, dto.UpdateStatusRequest{Status: "Approved"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.Len(t, fx.notifier.notifications, submitted+1)
	assert.Equal(t, models.NotificationSuccess, fx.notifier.notifications[submitted].Type)

	res, err := fx.svc.ConfirmAdmission(context.Background(), adminActor, app.ID)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^STU\d{2}[A-Z]{3}\d{4}$`), res.StudentID)
	assert.Equal(t, "STU26CS", res.StudentID[:7])
	assert.True(t, res.SeatAllocated)
	assert.Equal(t, 1, fx.courses.courses["course-cs"].AvailableSeats)

	stored := fx.store.apps[app.ID]
	assert.True(t, stored.IsAdmitted)
	require.NotNil(t, stored.ApprovedAt)
}
