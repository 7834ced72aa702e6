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

const lessonColumns = "id, class_subject_id, date, title, content, bncc_codes, created_at, updated_at"

// LessonRepository persists lessons and their attendance sheets.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs a LessonRepository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ListByClassSubject returns lessons of an offering, newest first.
func (r *LessonRepository) ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Lesson, error) {
	query := "SELECT " + lessonColumns + " FROM lessons WHERE class_subject_id = $1 ORDER BY date DESC, created_at DESC"
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, classSubjectID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// FindByID returns a lesson by ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, "SELECT "+lessonColumns+" FROM lessons WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

const lessonInsert = `INSERT INTO lessons (id, class_subject_id, date, title, content, bncc_codes, created_at, updated_at)
        VALUES (:id, :class_subject_id, :date, :title, :content, :bncc_codes, :created_at, :updated_at)`

// Create inserts a new lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	stampLesson(lesson, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, lessonInsert, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update persists lesson changes.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET date = :date, title = :title, content = :content, bncc_codes = :bncc_codes,
        updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, lesson)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a lesson and its attendance records.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE lesson_id = $1`, id); err != nil {
			return fmt.Errorf("delete lesson attendance: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete lesson: %w", err)
		}
		return expectAffected(res)
	})
}

// CopyTo duplicates the given lessons into another offering. Curriculum codes
// are left behind.
func (r *LessonRepository) CopyTo(ctx context.Context, lessonIDs []string, targetClassSubjectID string) ([]models.Lesson, error) {
	if len(lessonIDs) == 0 {
		return []models.Lesson{}, nil
	}
	query, args, err := sqlx.In("SELECT "+lessonColumns+" FROM lessons WHERE id IN (?) ORDER BY date ASC", lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("build copy query: %w", err)
	}
	query = r.db.Rebind(query)

	var copies []models.Lesson
	err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var sources []models.Lesson
		if err := tx.SelectContext(ctx, &sources, query, args...); err != nil {
			return fmt.Errorf("load source lessons: %w", err)
		}
		now := time.Now().UTC()
		copies = make([]models.Lesson, 0, len(sources))
		for _, src := range sources {
			dup := models.Lesson{
				ClassSubjectID: targetClassSubjectID,
				Date:           src.Date,
				Title:          src.Title,
				Content:        src.Content,
			}
			stampLesson(&dup, now)
			if _, err := tx.NamedExecContext(ctx, lessonInsert, &dup); err != nil {
				return fmt.Errorf("copy lesson: %w", err)
			}
			copies = append(copies, dup)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copies, nil
}

// CodesByClassSubject returns the raw curriculum code lists of an offering's lessons.
func (r *LessonRepository) CodesByClassSubject(ctx context.Context, classSubjectID string) ([]string, error) {
	var codes []string
	const query = `SELECT bncc_codes FROM lessons WHERE class_subject_id = $1 AND bncc_codes <> ''`
	if err := r.db.SelectContext(ctx, &codes, query, classSubjectID); err != nil {
		return nil, fmt.Errorf("list lesson codes: %w", err)
	}
	return codes, nil
}

// ListAttendance returns the attendance sheet of a lesson.
func (r *LessonRepository) ListAttendance(ctx context.Context, lessonID string) ([]models.Attendance, error) {
	var records []models.Attendance
	const query = `SELECT id, lesson_id, student_id, status FROM attendance WHERE lesson_id = $1`
	if err := r.db.SelectContext(ctx, &records, query, lessonID); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// UpsertAttendance writes attendance rows for a lesson in one transaction.
func (r *LessonRepository) UpsertAttendance(ctx context.Context, records []models.Attendance) error {
	const query = `INSERT INTO attendance (id, lesson_id, student_id, status)
        VALUES (:id, :lesson_id, :student_id, :status)
        ON CONFLICT (lesson_id, student_id) DO UPDATE SET status = EXCLUDED.status`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range records {
			if records[i].ID == "" {
				records[i].ID = uuid.NewString()
			}
			if _, err := tx.NamedExecContext(ctx, query, &records[i]); err != nil {
				return fmt.Errorf("upsert attendance: %w", err)
			}
		}
		return nil
	})
}

// AttendanceCounts tallies statuses per student across an offering's lessons.
// When studentID is set only that student's rows are counted.
func (r *LessonRepository) AttendanceCounts(ctx context.Context, classSubjectID, studentID string) ([]models.AttendanceCount, error) {
	conditions := []string{"l.class_subject_id = $1"}
	args := []interface{}{classSubjectID}
	if studentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, studentID)
	}
	query := fmt.Sprintf(`SELECT a.student_id, a.status, COUNT(*) AS total
        FROM attendance a
        JOIN lessons l ON l.id = a.lesson_id
        WHERE %s
        GROUP BY a.student_id, a.status`, strings.Join(conditions, " AND "))
	var counts []models.AttendanceCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	return counts, nil
}

func stampLesson(lesson *models.Lesson, now time.Time) {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
}
