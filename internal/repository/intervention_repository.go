package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-risk-api/internal/models"
)

const interventionColumns = `ri.id, ri.risk_record_id, ri.student_id, ri.performed_by, u.full_name AS performer_name,
	ri.intervention_type, ri.description, ri.outcome, ri.performed_at, ri.follow_up_date, ri.follow_up_notes`

// InterventionRepository persists risk interventions.
type InterventionRepository struct {
	db *sqlx.DB
}

// NewInterventionRepository constructs the repository.
func NewInterventionRepository(db *sqlx.DB) *InterventionRepository {
	return &InterventionRepository{db: db}
}

// ListByRiskRecord returns the interventions of one risk record, most recent first.
// The performer name is joined from users and stays NULL when the user is gone.
func (r *InterventionRepository) ListByRiskRecord(ctx context.Context, riskRecordID string) ([]models.RiskIntervention, error) {
	query := fmt.Sprintf(`SELECT %s
FROM risk_interventions ri
LEFT JOIN users u ON u.id = ri.performed_by
WHERE ri.risk_record_id = $1
ORDER BY ri.performed_at DESC`, interventionColumns)
	items := make([]models.RiskIntervention, 0)
	if err := r.db.SelectContext(ctx, &items, query, riskRecordID); err != nil {
		return nil, fmt.Errorf("list risk interventions: %w", err)
	}
	return items, nil
}

// FindByID returns one intervention.
func (r *InterventionRepository) FindByID(ctx context.Context, id string) (*models.RiskIntervention, error) {
	query := fmt.Sprintf(`SELECT %s
FROM risk_interventions ri
LEFT JOIN users u ON u.id = ri.performed_by
WHERE ri.id = $1`, interventionColumns)
	var item models.RiskIntervention
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find risk intervention: %w", err)
	}
	return &item, nil
}

// Create inserts an intervention. performed_at is assigned by the database.
func (r *InterventionRepository) Create(ctx context.Context, item *models.RiskIntervention) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	const query = `INSERT INTO risk_interventions
	(id, risk_record_id, student_id, performed_by, intervention_type, description, outcome, follow_up_date, follow_up_notes, performed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
RETURNING performed_at`
	row := r.db.QueryRowxContext(ctx, query,
		item.ID,
		item.RiskRecordID,
		item.StudentID,
		item.PerformedBy,
		item.InterventionType,
		item.Description,
		item.Outcome,
		item.FollowUpDate,
		item.FollowUpNotes,
	)
	if err := row.Scan(&item.PerformedAt); err != nil {
		return fmt.Errorf("create risk intervention: %w", err)
	}
	return nil
}

// Update applies the supplied subset of mutable fields. It returns sql.ErrNoRows
// when the intervention does not exist.
func (r *InterventionRepository) Update(ctx context.Context, id string, changes models.InterventionChanges) error {
	if changes.Empty() {
		return fmt.Errorf("update risk intervention: no fields supplied")
	}
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if changes.Outcome != nil {
		args = append(args, *changes.Outcome)
		sets = append(sets, fmt.Sprintf("outcome = $%d", len(args)))
	}
	if changes.FollowUpDate != nil {
		args = append(args, *changes.FollowUpDate)
		sets = append(sets, fmt.Sprintf("follow_up_date = $%d", len(args)))
	}
	if changes.FollowUpNotes != nil {
		args = append(args, *changes.FollowUpNotes)
		sets = append(sets, fmt.Sprintf("follow_up_notes = $%d", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE risk_interventions SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update risk intervention: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update risk intervention rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
