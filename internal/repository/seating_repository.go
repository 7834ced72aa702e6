package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/database"
)

const seatingChartColumns = "id, class_id, name, row_count, column_count, layout, created_at, updated_at"

// SeatingRepository persists seating charts and their seat assignments.
type SeatingRepository struct {
	db *sqlx.DB
}

// NewSeatingRepository constructs a new seating repository.
func NewSeatingRepository(db *sqlx.DB) *SeatingRepository {
	return &SeatingRepository{db: db}
}

// ListByClass returns the charts of a class, newest first.
func (r *SeatingRepository) ListByClass(ctx context.Context, classID string) ([]models.SeatingChart, error) {
	charts := []models.SeatingChart{}
	query := "SELECT " + seatingChartColumns + " FROM seating_charts WHERE class_id = $1 ORDER BY created_at DESC"
	if err := r.db.SelectContext(ctx, &charts, query, classID); err != nil {
		return nil, fmt.Errorf("list seating charts: %w", err)
	}
	return charts, nil
}

// FindByID returns a chart by ID.
func (r *SeatingRepository) FindByID(ctx context.Context, id string) (*models.SeatingChart, error) {
	var chart models.SeatingChart
	if err := r.db.GetContext(ctx, &chart, "SELECT "+seatingChartColumns+" FROM seating_charts WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &chart, nil
}

// Create inserts a chart.
func (r *SeatingRepository) Create(ctx context.Context, chart *models.SeatingChart) error {
	if chart.ID == "" {
		chart.ID = uuid.NewString()
	}
	if chart.Layout == nil {
		chart.Layout = models.SeatLayout{}
	}
	now := time.Now().UTC()
	chart.CreatedAt = now
	chart.UpdatedAt = now
	const query = `INSERT INTO seating_charts (id, class_id, name, row_count, column_count, layout, created_at, updated_at)
        VALUES (:id, :class_id, :name, :row_count, :column_count, :layout, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, chart); err != nil {
		return fmt.Errorf("create seating chart: %w", err)
	}
	return nil
}

// UpdateLayout replaces the layout markers of a chart.
func (r *SeatingRepository) UpdateLayout(ctx context.Context, id string, layout models.SeatLayout) error {
	res, err := r.db.ExecContext(ctx, `UPDATE seating_charts SET layout = $2, updated_at = $3 WHERE id = $1`, id, layout, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update seating layout: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a chart with its assignments.
func (r *SeatingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seating_charts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete seating chart: %w", err)
	}
	return expectAffected(res)
}

// ListAssignments returns the seats of a chart in row-major order with the
// students' names and their call numbers in the chart's class.
func (r *SeatingRepository) ListAssignments(ctx context.Context, chartID string) ([]models.SeatAssignmentDetail, error) {
	const query = `SELECT sa.id, sa.chart_id, sa.student_id, sa.row_index, sa.col_index,
            s.first_name || ' ' || s.last_name AS student_name, e.call_number
        FROM seat_assignments sa
        JOIN seating_charts sc ON sc.id = sa.chart_id
        JOIN students s ON s.id = sa.student_id
        LEFT JOIN enrollments e ON e.student_id = sa.student_id AND e.class_id = sc.class_id
        WHERE sa.chart_id = $1
        ORDER BY sa.row_index ASC, sa.col_index ASC`
	seats := []models.SeatAssignmentDetail{}
	if err := r.db.SelectContext(ctx, &seats, query, chartID); err != nil {
		return nil, fmt.Errorf("list seat assignments: %w", err)
	}
	return seats, nil
}

// ReplaceAssignments swaps every seat of the chart for seats in one transaction.
func (r *SeatingRepository) ReplaceAssignments(ctx context.Context, chartID string, seats []models.SeatAssignment) error {
	const insert = `INSERT INTO seat_assignments (id, chart_id, student_id, row_index, col_index)
        VALUES (:id, :chart_id, :student_id, :row_index, :col_index)`
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM seat_assignments WHERE chart_id = $1`, chartID); err != nil {
			return fmt.Errorf("clear seat assignments: %w", err)
		}
		for i := range seats {
			seats[i].ChartID = chartID
			if seats[i].ID == "" {
				seats[i].ID = uuid.NewString()
			}
			if _, err := tx.NamedExecContext(ctx, insert, &seats[i]); err != nil {
				return fmt.Errorf("insert seat assignment: %w", err)
			}
		}
		return nil
	})
}
