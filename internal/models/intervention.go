package models

import "time"

// InterventionType enumerates the actions staff can log against a risk record.
type InterventionType string

const (
	InterventionPhoneCall            InterventionType = "phone_call"
	InterventionMeeting              InterventionType = "meeting"
	InterventionFamilyContact        InterventionType = "family_contact"
	InterventionAcademicSupport      InterventionType = "academic_support"
	InterventionPsychologicalSupport InterventionType = "psychological_support"
	InterventionFinancialSupport     InterventionType = "financial_support"
	InterventionHomeVisit            InterventionType = "home_visit"
	InterventionOther                InterventionType = "other"
)

// Valid returns true when the type is a supported value.
func (t InterventionType) Valid() bool {
	switch t {
	case InterventionPhoneCall, InterventionMeeting, InterventionFamilyContact,
		InterventionAcademicSupport, InterventionPsychologicalSupport,
		InterventionFinancialSupport, InterventionHomeVisit, InterventionOther:
		return true
	default:
		return false
	}
}

// InterventionOutcome is the staff-assessed result of an intervention.
type InterventionOutcome string

const (
	OutcomePositive InterventionOutcome = "positive"
	OutcomeNeutral  InterventionOutcome = "neutral"
	OutcomeNegative InterventionOutcome = "negative"
	OutcomePending  InterventionOutcome = "pending"
)

// Valid returns true when the outcome is a supported value.
func (o InterventionOutcome) Valid() bool {
	switch o {
	case OutcomePositive, OutcomeNeutral, OutcomeNegative, OutcomePending:
		return true
	default:
		return false
	}
}

// PerformerPlaceholder is shown when the performing user could not be joined.
const PerformerPlaceholder = "Usuário"

// RiskIntervention is an append-only log entry of an action taken for an at-risk student.
type RiskIntervention struct {
	ID               string               `db:"id" json:"id"`
	RiskRecordID     string               `db:"risk_record_id" json:"risk_record_id"`
	StudentID        string               `db:"student_id" json:"student_id"`
	PerformedBy      string               `db:"performed_by" json:"performed_by"`
	PerformerName    *string              `db:"performer_name" json:"performer_name,omitempty"`
	InterventionType InterventionType     `db:"intervention_type" json:"intervention_type"`
	Description      string               `db:"description" json:"description"`
	Outcome          *InterventionOutcome `db:"outcome" json:"outcome,omitempty"`
	PerformedAt      time.Time            `db:"performed_at" json:"performed_at"`
	FollowUpDate     *time.Time           `db:"follow_up_date" json:"follow_up_date,omitempty"`
	FollowUpNotes    *string              `db:"follow_up_notes" json:"follow_up_notes,omitempty"`
}

// PerformerDisplayName returns the joined performer name or the placeholder.
func (i RiskIntervention) PerformerDisplayName() string {
	if i.PerformerName == nil || *i.PerformerName == "" {
		return PerformerPlaceholder
	}
	return *i.PerformerName
}

// InterventionChanges lists the mutable fields of an intervention; nil means untouched.
type InterventionChanges struct {
	Outcome       *InterventionOutcome
	FollowUpDate  *time.Time
	FollowUpNotes *string
}

// Empty reports whether no field was supplied.
func (c InterventionChanges) Empty() bool {
	return c.Outcome == nil && c.FollowUpDate == nil && c.FollowUpNotes == nil
}
