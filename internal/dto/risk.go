package dto

import "github.com/noah-isme/student-risk-api/internal/models"

// ScoreRequest scores an ad-hoc indicator snapshot without persisting anything.
type ScoreRequest struct {
	AttendancePercentage float64  `json:"attendancePercentage"`
	GradeAverage         float64  `json:"gradeAverage"`
	AbsencesLast30Days   int      `json:"absencesLast30Days"`
	MissedActivities     int      `json:"missedActivities"`
	ClassEvasionRate     *float64 `json:"classEvasionRate,omitempty"`
	PendingDeclarations  *int     `json:"pendingDeclarations,omitempty"`
}

// Indicators converts the request into calculator input.
func (r ScoreRequest) Indicators() models.RiskIndicators {
	return models.RiskIndicators{
		AttendancePercentage: r.AttendancePercentage,
		GradeAverage:         r.GradeAverage,
		AbsencesLast30Days:   r.AbsencesLast30Days,
		MissedActivities:     r.MissedActivities,
		ClassEvasionRate:     r.ClassEvasionRate,
		PendingDeclarations:  r.PendingDeclarations,
	}
}

// AssessRequest optionally pins the class to assess against; the active enrollment is used otherwise.
type AssessRequest struct {
	ClassID string `json:"classId"`
}

// UpdateRiskStatusRequest moves a risk record between follow-up states.
type UpdateRiskStatusRequest struct {
	Status models.RiskRecordStatus `json:"status" validate:"required,risk_status"`
}

// ReassessJobResponse is returned after enqueueing a class reassessment.
type ReassessJobResponse struct {
	JobID   string `json:"jobId"`
	ClassID string `json:"classId"`
}
