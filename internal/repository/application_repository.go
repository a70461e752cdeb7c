package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/admission-portal-api/internal/models"
)

// ErrGuardNotMet is returned when a guarded update matched no row because
// the row no longer satisfies the update's precondition.
var ErrGuardNotMet = errors.New("guarded update matched no rows")

const applicationColumns = `id, application_number, user_id, first_name, middle_name, last_name, email, phone, course_id, course_name, category, percentage, previous_education, gender, status, remarks, doc_photo, doc_signature, doc_marksheet_10, doc_marksheet_12, doc_id_proof, submitted_at, verified_at, approved_at, is_admitted, admitted_at, seat_locked, student_id, roll_number, updated_at`

// ApplicationRepository persists admission applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs an ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.StatusPending
	}
	const query = `INSERT INTO applications (id, application_number, user_id, first_name, middle_name, last_name, email, phone, course_id, course_name, category, percentage, previous_education, gender, status, remarks, doc_photo, doc_signature, doc_marksheet_10, doc_marksheet_12, doc_id_proof, submitted_at, is_admitted, seat_locked, updated_at)
VALUES (:id, :application_number, :user_id, :first_name, :middle_name, :last_name, :email, :phone, :course_id, :course_name, :category, :percentage, :previous_education, :gender, :status, :remarks, :doc_photo, :doc_signature, :doc_marksheet_10, :doc_marksheet_12, :doc_id_proof, :submitted_at, FALSE, FALSE, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID returns an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id::text = $1 LIMIT 1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return &app, nil
}

// List returns a filtered page of applications and the total match count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id::text = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("LOWER(category) = LOWER($%d)", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name || ' ' || last_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(application_number) LIKE $%d)", n, n, n))
	}

	baseQuery := "FROM applications WHERE 1=1"
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY submitted_at DESC LIMIT %d OFFSET %d", applicationColumns, baseQuery, pageSize, offset)
	apps := make([]models.Application, 0)
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// ListByUser returns an applicant's own applications, newest first.
func (r *ApplicationRepository) ListByUser(ctx context.Context, userID string) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE user_id = $1 ORDER BY submitted_at DESC`
	apps := make([]models.Application, 0)
	if err := r.db.SelectContext(ctx, &apps, query, userID); err != nil {
		return nil, fmt.Errorf("list user applications: %w", err)
	}
	return apps, nil
}

// ListApproved returns approved applications matching the merit filter.
// Ranking and limits are applied by the caller.
func (r *ApplicationRepository) ListApproved(ctx context.Context, filter models.MeritFilter) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE status = $1`
	args := []interface{}{models.StatusApproved}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		query += fmt.Sprintf(" AND course_id::text = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND LOWER(category) = LOWER($%d)", len(args))
	}
	query += " ORDER BY submitted_at ASC"

	apps := make([]models.Application, 0)
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, fmt.Errorf("list approved applications: %w", err)
	}
	return apps, nil
}

// DecidedForCourse returns the approved and rejected applications of a course.
func (r *ApplicationRepository) DecidedForCourse(ctx context.Context, courseID string) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE course_id::text = $1 AND status = ANY($2)`
	apps := make([]models.Application, 0)
	statuses := pq.Array([]string{string(models.StatusApproved), string(models.StatusRejected)})
	if err := r.db.SelectContext(ctx, &apps, query, courseID, statuses); err != nil {
		return nil, fmt.Errorf("list decided applications: %w", err)
	}
	return apps, nil
}

// ExistsActiveForCourse reports whether the user already holds a
// non-rejected application for the course.
func (r *ApplicationRepository) ExistsActiveForCourse(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM applications WHERE user_id = $1 AND course_id::text = $2 AND status <> $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID, models.StatusRejected); err != nil {
		return false, fmt.Errorf("check existing application: %w", err)
	}
	return exists, nil
}

// UpdateStatus persists the review fields of app.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET status = :status, remarks = :remarks, verified_at = :verified_at, approved_at = :approved_at, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BulkUpdateStatus sets status on every listed application in one statement
// and returns the rows that were updated.
func (r *ApplicationRepository) BulkUpdateStatus(ctx context.Context, ids []string, status models.ApplicationStatus, remarks *string, at time.Time) ([]models.Application, error) {
	if len(ids) == 0 {
		return []models.Application{}, nil
	}
	query := `UPDATE applications SET
	status = $2,
	remarks = COALESCE($3, remarks),
	verified_at = CASE WHEN $2 = '` + string(models.StatusVerified) + `' THEN $4 ELSE verified_at END,
	approved_at = CASE WHEN $2 = '` + string(models.StatusApproved) + `' THEN $4 ELSE approved_at END,
	updated_at = $4
WHERE id::text = ANY($1)
RETURNING ` + applicationColumns
	updated := make([]models.Application, 0, len(ids))
	if err := r.db.SelectContext(ctx, &updated, query, pq.Array(ids), status, remarks, at); err != nil {
		return nil, fmt.Errorf("bulk update application status: %w", err)
	}
	return updated, nil
}

// ConfirmAdmission locks the seat of an approved application and decrements
// the course's available seats in one transaction. It returns ErrGuardNotMet
// when the application is not approved or already seat-locked. The returned
// flag is false when the course had no seat left to decrement.
func (r *ApplicationRepository) ConfirmAdmission(ctx context.Context, id, courseID string, assignment models.AdmissionAssignment) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin admission tx: %w", err)
	}

	const lockQuery = `UPDATE applications SET is_admitted = TRUE, seat_locked = TRUE, admitted_at = $2, student_id = $3, roll_number = $4, updated_at = $2 WHERE id::text = $1 AND status = $5 AND seat_locked = FALSE`
	res, err := tx.ExecContext(ctx, lockQuery, id, assignment.AdmittedAt, assignment.StudentID, assignment.RollNumber, models.StatusApproved)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("lock admission seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("lock admission seat: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, ErrGuardNotMet
	}

	const seatQuery = `UPDATE courses SET available_seats = available_seats - 1, updated_at = $2 WHERE id::text = $1 AND available_seats > 0`
	res, err = tx.ExecContext(ctx, seatQuery, courseID, assignment.AdmittedAt)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("decrement course seats: %w", err)
	}
	decremented, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("decrement course seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit admission tx: %w", err)
	}
	return decremented > 0, nil
}

// CountByStatus returns the number of applications per status.
func (r *ApplicationRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM applications GROUP BY status ORDER BY status`
	counts := make([]models.StatusCount, 0)
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	return counts, nil
}
