package models

import "time"

// RiskLevel is the severity band derived from a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Valid returns true when the level is a supported value.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return true
	default:
		return false
	}
}

// RiskIndicators is a snapshot of the signals used to score a student.
// PendingDeclarations is carried along but does not contribute to the score.
type RiskIndicators struct {
	AttendancePercentage float64  `json:"attendance_percentage"`
	GradeAverage         float64  `json:"grade_average"`
	AbsencesLast30Days   int      `json:"absences_last_30_days"`
	MissedActivities     int      `json:"missed_activities"`
	ClassEvasionRate     *float64 `json:"class_evasion_rate,omitempty"`
	PendingDeclarations  *int     `json:"pending_declarations,omitempty"`
}

// RiskResult is the outcome of scoring a RiskIndicators snapshot.
type RiskResult struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// RiskRecordStatus tracks the follow-up state of a risk record.
type RiskRecordStatus string

const (
	RiskStatusOpen       RiskRecordStatus = "open"
	RiskStatusMonitoring RiskRecordStatus = "monitoring"
	RiskStatusResolved   RiskRecordStatus = "resolved"
)

// Valid returns true when the status is a supported value.
func (s RiskRecordStatus) Valid() bool {
	switch s {
	case RiskStatusOpen, RiskStatusMonitoring, RiskStatusResolved:
		return true
	default:
		return false
	}
}

// RiskRecord is the persisted assessment of one student. Interventions hang off it.
type RiskRecord struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName *string          `db:"student_name" json:"student_name,omitempty"`
	ClassID     string           `db:"class_id" json:"class_id"`
	Score       int              `db:"score" json:"score"`
	Level       RiskLevel        `db:"level" json:"level"`
	Factors     []string         `db:"-" json:"factors"`
	Status      RiskRecordStatus `db:"status" json:"status"`
	AssessedBy  *string          `db:"assessed_by" json:"assessed_by,omitempty"`
	AssessedAt  time.Time        `db:"assessed_at" json:"assessed_at"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// RiskRecordFilter scopes risk record listings.
type RiskRecordFilter struct {
	ClassID   string
	StudentID string
	Levels    []RiskLevel
	Status    *RiskRecordStatus
	Page      int
	PageSize  int
}

// RiskAssessment bundles a freshly computed result with the indicators behind it.
type RiskAssessment struct {
	Record     *RiskRecord    `json:"record"`
	Indicators RiskIndicators `json:"indicators"`
	Result     RiskResult     `json:"result"`
}
