package dto

import (
	"time"

	"github.com/noah-isme/student-risk-api/internal/models"
)

// CreateInterventionRequest defines the payload for logging an intervention against a risk record.
type CreateInterventionRequest struct {
	RiskRecordID     string                      `json:"-" validate:"required"`
	StudentID        string                      `json:"studentId" validate:"required"`
	InterventionType models.InterventionType     `json:"interventionType" validate:"required,intervention_type"`
	Description      string                      `json:"description" validate:"required,min=10"`
	Outcome          *models.InterventionOutcome `json:"outcome,omitempty" validate:"omitempty,intervention_outcome"`
	FollowUpDate     *time.Time                  `json:"followUpDate,omitempty"`
	FollowUpNotes    *string                     `json:"followUpNotes,omitempty"`
}

// UpdateInterventionRequest carries a partial update; omitted fields stay untouched.
type UpdateInterventionRequest struct {
	Outcome       *models.InterventionOutcome `json:"outcome,omitempty" validate:"omitempty,intervention_outcome"`
	FollowUpDate  *time.Time                  `json:"followUpDate,omitempty"`
	FollowUpNotes *string                     `json:"followUpNotes,omitempty" validate:"omitempty,max=2000"`
}

// Changes converts the request into repository changes.
func (r UpdateInterventionRequest) Changes() models.InterventionChanges {
	return models.InterventionChanges{
		Outcome:       r.Outcome,
		FollowUpDate:  r.FollowUpDate,
		FollowUpNotes: r.FollowUpNotes,
	}
}

// InterventionItem is the timeline view of an intervention.
type InterventionItem struct {
	ID               string                      `json:"id"`
	RiskRecordID     string                      `json:"riskRecordId"`
	StudentID        string                      `json:"studentId"`
	PerformedBy      string                      `json:"performedBy"`
	PerformerName    string                      `json:"performerName"`
	InterventionType models.InterventionType     `json:"interventionType"`
	Description      string                      `json:"description"`
	Outcome          *models.InterventionOutcome `json:"outcome,omitempty"`
	PerformedAt      time.Time                   `json:"performedAt"`
	FollowUpDate     *time.Time                  `json:"followUpDate,omitempty"`
	FollowUpNotes    *string                     `json:"followUpNotes,omitempty"`
}

// NewInterventionItem maps a stored intervention to its timeline view.
func NewInterventionItem(m models.RiskIntervention) InterventionItem {
	return InterventionItem{
		ID:               m.ID,
		RiskRecordID:     m.RiskRecordID,
		StudentID:        m.StudentID,
		PerformedBy:      m.PerformedBy,
		PerformerName:    m.PerformerDisplayName(),
		InterventionType: m.InterventionType,
		Description:      m.Description,
		Outcome:          m.Outcome,
		PerformedAt:      m.PerformedAt,
		FollowUpDate:     m.FollowUpDate,
		FollowUpNotes:    m.FollowUpNotes,
	}
}

// NewInterventionItems maps a list, never returning nil.
func NewInterventionItems(items []models.RiskIntervention) []InterventionItem {
	out := make([]InterventionItem, 0, len(items))
	for _, item := range items {
		out = append(out, NewInterventionItem(item))
	}
	return out
}

// InterventionMutationResponse returns the affected intervention with the refreshed timeline.
type InterventionMutationResponse struct {
	Intervention  *InterventionItem  `json:"intervention,omitempty"`
	Interventions []InterventionItem `json:"interventions"`
}
