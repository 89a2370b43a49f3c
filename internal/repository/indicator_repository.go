package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-risk-api/internal/models"
)

// Daily attendance status codes.
const (
	attendancePresent = "H"
	attendanceAbsent  = "A"
)

// IndicatorRepository aggregates the raw signals behind a risk assessment.
// Every query is scoped to the student's enrollment in the given class.
type IndicatorRepository struct {
	db *sqlx.DB
}

// NewIndicatorRepository constructs the repository.
func NewIndicatorRepository(db *sqlx.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

// AttendancePercentage returns present / total daily rows as a percentage, or 100 when
// nothing was recorded yet.
func (r *IndicatorRepository) AttendancePercentage(ctx context.Context, studentID, classID string) (float64, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE da.status = $3) AS present_count,
	COUNT(*) AS total_count
FROM daily_attendance da
JOIN enrollments e ON e.id = da.enrollment_id
WHERE e.student_id = $1 AND e.class_id = $2`
	var row struct {
		Present int `db:"present_count"`
		Total   int `db:"total_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, studentID, classID, attendancePresent); err != nil {
		return 0, fmt.Errorf("attendance percentage: %w", err)
	}
	if row.Total == 0 {
		return 100, nil
	}
	return float64(row.Present) / float64(row.Total) * 100, nil
}

// GradeAverage returns the mean grade on the 0-10 scale. A student without grades is
// treated as having the maximum average.
func (r *IndicatorRepository) GradeAverage(ctx context.Context, studentID, classID string) (float64, error) {
	const query = `SELECT AVG(g.grade_value)
FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
WHERE e.student_id = $1 AND e.class_id = $2`
	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, query, studentID, classID); err != nil {
		return 0, fmt.Errorf("grade average: %w", err)
	}
	if !avg.Valid {
		return 10, nil
	}
	return avg.Float64, nil
}

// AbsencesLast30Days counts absent days in the trailing 30-day window.
func (r *IndicatorRepository) AbsencesLast30Days(ctx context.Context, studentID, classID string) (int, error) {
	const query = `SELECT COUNT(*)
FROM daily_attendance da
JOIN enrollments e ON e.id = da.enrollment_id
WHERE e.student_id = $1 AND e.class_id = $2 AND da.status = $3 AND da.date >= CURRENT_DATE - INTERVAL '30 days'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, classID, attendanceAbsent); err != nil {
		return 0, fmt.Errorf("absences last 30 days: %w", err)
	}
	return count, nil
}

// MissedActivities counts activities past their due date without a submission.
func (r *IndicatorRepository) MissedActivities(ctx context.Context, studentID, classID string) (int, error) {
	const query = `SELECT COUNT(*)
FROM class_activities a
LEFT JOIN activity_submissions s ON s.activity_id = a.id AND s.student_id = $1
WHERE a.class_id = $2 AND a.due_date < NOW() AND s.id IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, classID); err != nil {
		return 0, fmt.Errorf("missed activities: %w", err)
	}
	return count, nil
}

// ClassEvasionRate returns evaded / total enrollments of the class as a percentage.
// It returns nil when the class has no enrollments.
func (r *IndicatorRepository) ClassEvasionRate(ctx context.Context, classID string) (*float64, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = $2) AS evaded,
	COUNT(*) AS total
FROM enrollments
WHERE class_id = $1`
	var row struct {
		Evaded int `db:"evaded"`
		Total  int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, classID, models.EnrollmentStatusEvaded); err != nil {
		return nil, fmt.Errorf("class evasion rate: %w", err)
	}
	if row.Total == 0 {
		return nil, nil
	}
	rate := float64(row.Evaded) / float64(row.Total) * 100
	return &rate, nil
}

// PendingDeclarations counts document requests awaiting issuance for the student.
func (r *IndicatorRepository) PendingDeclarations(ctx context.Context, studentID string) (*int, error) {
	const query = `SELECT COUNT(*) FROM declaration_requests WHERE student_id = $1 AND status = 'PENDING'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return nil, fmt.Errorf("pending declarations: %w", err)
	}
	return &count, nil
}

// ActiveEnrollment returns the class of the student's active enrollment.
func (r *IndicatorRepository) ActiveEnrollment(ctx context.Context, studentID string) (string, error) {
	const query = `SELECT class_id FROM enrollments WHERE student_id = $1 AND status = $2 ORDER BY joined_at DESC LIMIT 1`
	var classID string
	if err := r.db.GetContext(ctx, &classID, query, studentID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("active enrollment: %w", err)
	}
	return classID, nil
}

// ListClassStudents returns the active students of a class ordered by name.
func (r *IndicatorRepository) ListClassStudents(ctx context.Context, classID string) ([]models.ClassStudent, error) {
	const query = `SELECT e.student_id, s.full_name AS student_name, e.class_id, e.joined_at
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.status = $2
ORDER BY s.full_name`
	students := make([]models.ClassStudent, 0)
	if err := r.db.SelectContext(ctx, &students, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}
