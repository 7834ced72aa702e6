package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const timeSlotColumns = "id, day_of_week, period_index, start_time, end_time, created_at"

// ScheduleRepository persists time slots and the weekly schedule.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListSlots returns time slots ordered by day and period. A non-nil day
// restricts the listing to that weekday.
func (r *ScheduleRepository) ListSlots(ctx context.Context, day *int) ([]models.TimeSlot, error) {
	var where predicates
	if day != nil {
		where.add("day_of_week = ?", *day)
	}
	query := "SELECT " + timeSlotColumns + " FROM time_slots" + where.clause() + " ORDER BY day_of_week ASC, period_index ASC"
	slots := []models.TimeSlot{}
	if err := r.db.SelectContext(ctx, &slots, query, where.args...); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// FindSlot returns a time slot by ID.
func (r *ScheduleRepository) FindSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, "SELECT "+timeSlotColumns+" FROM time_slots WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// CreateSlot inserts a time slot.
func (r *ScheduleRepository) CreateSlot(ctx context.Context, slot *models.TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO time_slots (id, day_of_week, period_index, start_time, end_time, created_at)
        VALUES (:id, :day_of_week, :period_index, :start_time, :end_time, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}
	return nil
}

// DeleteSlot removes a slot; its schedule entry goes with it.
func (r *ScheduleRepository) DeleteSlot(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	return expectAffected(res)
}

// Assign places an offering in a slot, replacing what was there.
func (r *ScheduleRepository) Assign(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `INSERT INTO weekly_schedule (id, time_slot_id, class_subject_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (time_slot_id) DO UPDATE SET class_subject_id = EXCLUDED.class_subject_id, created_at = EXCLUDED.created_at
        RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, entry.ID, entry.TimeSlotID, entry.ClassSubjectID, time.Now().UTC())
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("assign time slot: %w", err)
	}
	return nil
}

// Unassign frees a slot.
func (r *ScheduleRepository) Unassign(ctx context.Context, slotID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM weekly_schedule WHERE time_slot_id = $1`, slotID)
	if err != nil {
		return fmt.Errorf("unassign time slot: %w", err)
	}
	return expectAffected(res)
}

type scheduleGridRow struct {
	models.TimeSlot
	ClassSubjectID sql.NullString `db:"class_subject_id"`
	ClassID        sql.NullString `db:"class_id"`
	ClassName      sql.NullString `db:"class_name"`
	CourseName     sql.NullString `db:"course_name"`
}

// Grid returns every slot with its assignment grouped by weekday. When
// classID is set, assignments of other classes are left out and their
// slots read as free.
func (r *ScheduleRepository) Grid(ctx context.Context, classID string) ([]models.ScheduleDay, error) {
	join := "LEFT JOIN weekly_schedule ws ON ws.time_slot_id = ts.id"
	args := []interface{}{}
	if classID != "" {
		join = `LEFT JOIN (weekly_schedule ws JOIN class_subjects f ON f.id = ws.class_subject_id AND f.class_id = $1)
            ON ws.time_slot_id = ts.id`
		args = append(args, classID)
	}
	query := fmt.Sprintf(`SELECT ts.id, ts.day_of_week, ts.period_index, ts.start_time, ts.end_time, ts.created_at,
            ws.class_subject_id, cs.class_id, c.name AS class_name, co.name AS course_name
        FROM time_slots ts
        %s
        LEFT JOIN class_subjects cs ON cs.id = ws.class_subject_id
        LEFT JOIN classes c ON c.id = cs.class_id
        LEFT JOIN courses co ON co.id = cs.course_id
        ORDER BY ts.day_of_week ASC, ts.period_index ASC`, join)

	var rows []scheduleGridRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load schedule grid: %w", err)
	}

	days := []models.ScheduleDay{}
	for _, row := range rows {
		cell := models.ScheduleCell{
			SlotID:      row.ID,
			PeriodIndex: row.PeriodIndex,
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
		}
		if row.ClassSubjectID.Valid {
			cell.Assignment = &models.ScheduledOffering{
				ClassSubjectID: row.ClassSubjectID.String,
				ClassID:        row.ClassID.String,
				ClassName:      row.ClassName.String,
				CourseName:     row.CourseName.String,
			}
		}
		if n := len(days); n == 0 || days[n-1].DayOfWeek != row.DayOfWeek {
			days = append(days, models.ScheduleDay{DayOfWeek: row.DayOfWeek})
		}
		last := &days[len(days)-1]
		last.Slots = append(last.Slots, cell)
	}
	return days, nil
}
