package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. An evaded enrollment is a student who stopped attending
// without a transfer.
const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusEvaded      EnrollmentStatus = "EVADED"
)

// ClassStudent is an active member of a class, as needed for batch reassessment.
type ClassStudent struct {
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	ClassID     string    `db:"class_id" json:"class_id"`
	JoinedAt    time.Time `db:"joined_at" json:"joined_at"`
}
