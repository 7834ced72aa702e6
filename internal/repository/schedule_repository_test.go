package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

var gridColumns = []string{"id", "day_of_week", "period_index", "start_time", "end_time", "created_at", "class_subject_id", "class_id", "class_name", "course_name"}

func TestScheduleRepositoryGridGroupsByDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM time_slots ts\\s+LEFT JOIN weekly_schedule ws ON ws.time_slot_id = ts.id").
		WillReturnRows(sqlmock.NewRows(gridColumns).
			AddRow("slot-1", 0, 1, "07:30", "08:20", now, "cs-1", "class-1", "1A", "Maths").
			AddRow("slot-2", 0, 2, "08:20", "09:10", now, nil, nil, nil, nil).
			AddRow("slot-3", 2, 1, "07:30", "08:20", now, "cs-2", "class-2", "1B", "History"))

	days, err := repo.Grid(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, 0, days[0].DayOfWeek)
	require.Len(t, days[0].Slots, 2)
	require.Equal(t, "Maths", days[0].Slots[0].Assignment.CourseName)
	require.Nil(t, days[0].Slots[1].Assignment)
	require.Equal(t, 2, days[1].DayOfWeek)
	require.Equal(t, "class-2", days[1].Slots[0].Assignment.ClassID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryGridFiltersByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN class_subjects f ON f.id = ws.class_subject_id AND f.class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows(gridColumns))

	days, err := repo.Grid(context.Background(), "class-1")
	require.NoError(t, err)
	require.NotNil(t, days)
	require.Empty(t, days)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryAssignUpserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO weekly_schedule .* ON CONFLICT \\(time_slot_id\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "slot-1", "cs-2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("entry-old", created))

	entry := &models.ScheduleEntry{TimeSlotID: "slot-1", ClassSubjectID: "cs-2"}
	require.NoError(t, repo.Assign(context.Background(), entry))
	require.Equal(t, "entry-old", entry.ID)
	require.Equal(t, created, entry.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryListSlotsByDay(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + timeSlotColumns + " FROM time_slots WHERE day_of_week = $1 ORDER BY day_of_week ASC, period_index ASC")).
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_of_week", "period_index", "start_time", "end_time", "created_at"}).
			AddRow("slot-1", 0, 1, "07:30", "08:20", time.Now()))

	day := 0
	slots, err := repo.ListSlots(context.Background(), &day)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryUnassignMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("DELETE FROM weekly_schedule WHERE time_slot_id = \\$1").
		WithArgs("slot-9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Unassign(context.Background(), "slot-9"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
