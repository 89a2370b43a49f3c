package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-risk-api/internal/models"
)

// AnalyticsRepository exposes read-optimised queries for analytics endpoints.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// StudentAttendance returns the attendance tally of every active student in the class.
func (r *AnalyticsRepository) StudentAttendance(ctx context.Context, classID string) ([]models.StudentAttendanceCount, error) {
	const query = `SELECT e.student_id, s.full_name AS student_name,
        COUNT(da.id) FILTER (WHERE da.status = 'H') AS present_count,
        COUNT(da.id) FILTER (WHERE da.status = 'A') AS absent_count,
        COUNT(da.id) AS total_count
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        LEFT JOIN daily_attendance da ON da.enrollment_id = e.id
        WHERE e.class_id = $1 AND e.status = $2
        GROUP BY e.student_id, s.full_name
        ORDER BY s.full_name`

	counts := make([]models.StudentAttendanceCount, 0)
	if err := r.db.SelectContext(ctx, &counts, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("query student attendance: %w", err)
	}
	return counts, nil
}

// ClassSnapshots aggregates attendance, grades, evasions and open high-risk records per class.
// An empty id list covers every class.
func (r *AnalyticsRepository) ClassSnapshots(ctx context.Context, classIDs []string) ([]models.ClassSnapshot, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT c.id AS class_id, c.name AS class_name,
        COALESCE(att.present_count, 0) AS present_count,
        COALESCE(att.attendance_rows, 0) AS attendance_rows,
        COALESCE(gr.grade_average, 0) AS grade_average,
        COALESCE(en.enrolled, 0) AS enrolled,
        COALESCE(en.evasions, 0) AS evasions,
        COALESCE(rk.at_risk, 0) AS at_risk
        FROM classes c
        LEFT JOIN (
            SELECT e.class_id, COUNT(*) FILTER (WHERE da.status = 'H') AS present_count, COUNT(*) AS attendance_rows
            FROM daily_attendance da JOIN enrollments e ON e.id = da.enrollment_id
            GROUP BY e.class_id
        ) att ON att.class_id = c.id
        LEFT JOIN (
            SELECT e.class_id, AVG(g.grade_value) AS grade_average
            FROM grades g JOIN enrollments e ON e.id = g.enrollment_id
            GROUP BY e.class_id
        ) gr ON gr.class_id = c.id
        LEFT JOIN (
            SELECT class_id, COUNT(*) AS enrolled, COUNT(*) FILTER (WHERE status = 'EVADED') AS evasions
            FROM enrollments GROUP BY class_id
        ) en ON en.class_id = c.id
        LEFT JOIN (
            SELECT class_id, COUNT(*) AS at_risk
            FROM risk_records WHERE status <> 'resolved' AND level IN ('high', 'critical')
            GROUP BY class_id
        ) rk ON rk.class_id = c.id
        WHERE 1=1`)
	var args []interface{}
	if len(classIDs) > 0 {
		args = append(args, pq.Array(classIDs))
		builder.WriteString(fmt.Sprintf(" AND c.id = ANY($%d)", len(args)))
	}
	builder.WriteString(" ORDER BY c.name")

	snapshots := make([]models.ClassSnapshot, 0)
	if err := r.db.SelectContext(ctx, &snapshots, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query class snapshots: %w", err)
	}
	return snapshots, nil
}

// EvasionsByMonth counts evaded enrollments per calendar month since the given instant.
// Months without evasions are absent from the result.
func (r *AnalyticsRepository) EvasionsByMonth(ctx context.Context, classID string, since time.Time) ([]models.EvasionMonth, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT DATE_TRUNC('month', left_at) AS month, COUNT(*) AS count
        FROM enrollments
        WHERE status = $1 AND left_at >= $2`)
	args := []interface{}{models.EnrollmentStatusEvaded, since}
	if classID != "" {
		args = append(args, classID)
		builder.WriteString(fmt.Sprintf(" AND class_id = $%d", len(args)))
	}
	builder.WriteString(" GROUP BY 1 ORDER BY 1")

	months := make([]models.EvasionMonth, 0)
	if err := r.db.SelectContext(ctx, &months, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query evasions by month: %w", err)
	}
	return months, nil
}
