package models

import "time"

// StudentAttendanceCount is the raw attendance tally for one student.
type StudentAttendanceCount struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	Present     int    `db:"present_count" json:"present"`
	Absent      int    `db:"absent_count" json:"absent"`
	Total       int    `db:"total_count" json:"total"`
}

// StudentAttendanceRate is the attendance percentage for one student.
type StudentAttendanceRate struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Present     int     `json:"present"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
}

// ClassSnapshot holds the raw per-class aggregates used for comparisons.
type ClassSnapshot struct {
	ClassID        string  `db:"class_id" json:"class_id"`
	ClassName      string  `db:"class_name" json:"class_name"`
	PresentCount   int     `db:"present_count" json:"present_count"`
	AttendanceRows int     `db:"attendance_rows" json:"attendance_rows"`
	GradeAverage   float64 `db:"grade_average" json:"grade_average"`
	Enrolled       int     `db:"enrolled" json:"enrolled"`
	Evasions       int     `db:"evasions" json:"evasions"`
	AtRisk         int     `db:"at_risk" json:"at_risk"`
}

// ClassComparison is the computed comparison row for one class.
type ClassComparison struct {
	ClassID        string  `json:"class_id"`
	ClassName      string  `json:"class_name"`
	AttendanceRate float64 `json:"attendance_rate"`
	GradeAverage   float64 `json:"grade_average"`
	EvasionRate    float64 `json:"evasion_rate"`
	AtRiskCount    int     `json:"at_risk_count"`
	Enrolled       int     `json:"enrolled"`
}

// EvasionMonth is the number of evasions recorded in a calendar month.
type EvasionMonth struct {
	Month time.Time `db:"month" json:"month"`
	Count int       `db:"count" json:"count"`
}

// EvasionTrendDirection classifies the evolution of evasions.
type EvasionTrendDirection string

const (
	TrendIncreasing EvasionTrendDirection = "increasing"
	TrendDecreasing EvasionTrendDirection = "decreasing"
	TrendStable     EvasionTrendDirection = "stable"
)

// EvasionTrend describes the monthly evasion series and its detected direction.
type EvasionTrend struct {
	ClassID         string                `json:"class_id,omitempty"`
	Months          []EvasionMonth        `json:"months"`
	RecentAverage   float64               `json:"recent_average"`
	PreviousAverage float64               `json:"previous_average"`
	ChangePercent   float64               `json:"change_percent"`
	Direction       EvasionTrendDirection `json:"direction"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
