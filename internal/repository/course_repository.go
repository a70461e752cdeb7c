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

	"github.com/noah-isme/admission-portal-api/internal/models"
)

const courseColumns = `id, name, code, eligibility, total_seats, available_seats, fees, duration_years, is_active, created_at, updated_at`

// CourseRepository manages the course catalogue.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns catalogue entries ordered by name.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE 1=1`
	var args []interface{}
	if filter.ActiveOnly {
		query += " AND is_active = TRUE"
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY name ASC"

	courses := make([]models.Course, 0)
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id::text = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindByRef resolves a course by id or by case-insensitive code.
func (r *CourseRepository) FindByRef(ctx context.Context, ref string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id::text = $1 OR UPPER(code) = UPPER($1) LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, strings.TrimSpace(ref)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course by ref: %w", err)
	}
	return &course, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, code, eligibility, total_seats, available_seats, fees, duration_years, is_active, created_at, updated_at) VALUES (:id, :name, :code, :eligibility, :total_seats, :available_seats, :fees, :duration_years, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists mutable course fields. The code is immutable.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, eligibility = :eligibility, total_seats = :total_seats, available_seats = :available_seats, fees = :fees, duration_years = :duration_years, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
