package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/database"
)

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.class_id, e.call_number, e.status, e.created_at, e.updated_at,
       s.first_name || ' ' || s.last_name AS student_name
FROM enrollments e
JOIN students s ON s.id = e.student_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments ordered by call number.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	var conditions []string
	var args []interface{}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	query := enrollmentDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.call_number ASC"

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveByClassSubject returns the active roster of the class owning the offering.
func (r *EnrollmentRepository) ListActiveByClassSubject(ctx context.Context, classSubjectID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + `
JOIN class_subjects cs ON cs.class_id = e.class_id
WHERE cs.id = $1 AND e.status = $2
ORDER BY e.call_number ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, classSubjectID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list offering roster: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, enrollmentDetailSelect+" WHERE e.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByStudentAndClass returns the enrollment linking a student to a class.
func (r *EnrollmentRepository) FindByStudentAndClass(ctx context.Context, studentID, classID string) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, enrollmentDetailSelect+" WHERE e.student_id = $1 AND e.class_id = $2", studentID, classID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// NextCallNumber returns max(call_number)+1 for the class.
func (r *EnrollmentRepository) NextCallNumber(ctx context.Context, classID string) (int, error) {
	return nextCallNumber(ctx, r.db, classID)
}

func nextCallNumber(ctx context.Context, q sqlx.QueryerContext, classID string) (int, error) {
	var highest int
	if err := sqlx.GetContext(ctx, q, &highest, `SELECT COALESCE(MAX(call_number), 0) FROM enrollments WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("next call number: %w", err)
	}
	return highest + 1, nil
}

const enrollmentUpsert = `INSERT INTO enrollments (id, student_id, class_id, call_number, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (student_id, class_id)
        DO UPDATE SET call_number = EXCLUDED.call_number, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
        RETURNING id, created_at`

// upsertEnrollment writes the row and refreshes ID and CreatedAt from the stored record.
func upsertEnrollment(ctx context.Context, q sqlx.QueryerContext, e *models.Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = models.EnrollmentStatusActive
	}
	now := time.Now().UTC()
	e.UpdatedAt = now
	row := q.QueryRowxContext(ctx, enrollmentUpsert, e.ID, e.StudentID, e.ClassID, e.CallNumber, e.Status, now)
	return row.Scan(&e.ID, &e.CreatedAt)
}

// Enroll registers students in the class in one transaction. Call numbers
// continue after the highest one in use; students already known to the class
// are reactivated and renumbered.
func (r *EnrollmentRepository) Enroll(ctx context.Context, classID string, studentIDs []string) ([]models.Enrollment, error) {
	enrollments := make([]models.Enrollment, 0, len(studentIDs))
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		next, err := nextCallNumber(ctx, tx, classID)
		if err != nil {
			return err
		}
		for _, studentID := range studentIDs {
			enrollment := models.Enrollment{
				StudentID:  studentID,
				ClassID:    classID,
				CallNumber: next,
				Status:     models.EnrollmentStatusActive,
			}
			if err := upsertEnrollment(ctx, tx, &enrollment); err != nil {
				return fmt.Errorf("enroll student %s: %w", studentID, err)
			}
			enrollments = append(enrollments, enrollment)
			next++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

// Upsert stores a single enrollment with an explicit call number and status.
func (r *EnrollmentRepository) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	if err := upsertEnrollment(ctx, r.db, enrollment); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

// UpdateStatus changes the enrollment status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return expectAffected(res)
}
