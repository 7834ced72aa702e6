package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func TestEnrollmentRepositoryEnrollContinuesCallNumbers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(call_number), 0) FROM enrollments WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7))
	mock.ExpectQuery("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "stu-1", "class-1", 8, models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("enr-old", created))
	mock.ExpectQuery("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "stu-2", "class-1", 9, models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("enr-new", time.Now()))
	mock.ExpectCommit()

	enrollments, err := repo.Enroll(context.Background(), "class-1", []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.Equal(t, "enr-old", enrollments[0].ID)
	require.Equal(t, created, enrollments[0].CreatedAt)
	require.Equal(t, 8, enrollments[0].CallNumber)
	require.Equal(t, 9, enrollments[1].CallNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO enrollments").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "class-1", []string{"stu-1"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveByClassSubject(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "call_number", "status", "created_at", "updated_at", "student_name"}).
		AddRow("enr-1", "stu-1", "class-1", 1, "Active", now, now, "Ana Souza").
		AddRow("enr-2", "stu-2", "class-1", 2, "Active", now, now, "Bruno Lima")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cs.id = $1 AND e.status = $2")).
		WithArgs("cs-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)

	roster, err := repo.ListActiveByClassSubject(context.Background(), "cs-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "Ana Souza", roster[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-x", models.EnrollmentStatusInactive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "enr-x", models.EnrollmentStatusInactive)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
