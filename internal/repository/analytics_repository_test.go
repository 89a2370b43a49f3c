package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-risk-api/internal/models"
)

func TestAnalyticsRepositoryStudentAttendance(t *testing.T) {
	db, mock, cleanup := newRiskRecordRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN daily_attendance da ON da.enrollment_id = e.id")).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name", "present_count", "absent_count", "total_count"}).
			AddRow("student-1", "Ana Lima", 18, 2, 20).
			AddRow("student-2", "Bruno Reis", 0, 0, 0))

	counts, err := repo.StudentAttendance(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 18, counts[0].Present)
	assert.Equal(t, 0, counts[1].Total)
}

func TestAnalyticsRepositoryClassSnapshotsFiltersIDs(t *testing.T) {
	db, mock, cleanup := newRiskRecordRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	columns := []string{"class_id", "class_name", "present_count", "attendance_rows", "grade_average", "enrolled", "evasions", "at_risk"}
	mock.ExpectQuery(regexp.QuoteMeta("AND c.id = ANY($1) ORDER BY c.name")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("class-1", "1º A", 90, 100, 6.5, 30, 2, 4))

	snapshots, err := repo.ClassSnapshots(context.Background(), []string{"class-1", "class-2"})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 4, snapshots[0].AtRisk)
	assert.Equal(t, 6.5, snapshots[0].GradeAverage)
}

func TestAnalyticsRepositoryClassSnapshotsAllClasses(t *testing.T) {
	db, mock, cleanup := newRiskRecordRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 ORDER BY c.name")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}))

	snapshots, err := repo.ClassSnapshots(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestAnalyticsRepositoryEvasionsByMonth(t *testing.T) {
	db, mock, cleanup := newRiskRecordRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND left_at >= $2 AND class_id = $3 GROUP BY 1 ORDER BY 1")).
		WithArgs(models.EnrollmentStatusEvaded, since, "class-1").
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).
			AddRow(since, 2).
			AddRow(since.AddDate(0, 2, 0), 1))

	months, err := repo.EvasionsByMonth(context.Background(), "class-1", since)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, 2, months[0].Count)
}
