package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-risk-api/internal/models"
)

const riskRecordSelect = `SELECT rr.id, rr.student_id, s.full_name AS student_name, rr.class_id, rr.score, rr.level, rr.factors,
	rr.status, rr.assessed_by, rr.assessed_at, rr.created_at, rr.updated_at
FROM risk_records rr
LEFT JOIN students s ON s.id = rr.student_id`

type riskRecordRow struct {
	ID          string                  `db:"id"`
	StudentID   string                  `db:"student_id"`
	StudentName *string                 `db:"student_name"`
	ClassID     string                  `db:"class_id"`
	Score       int                     `db:"score"`
	Level       models.RiskLevel        `db:"level"`
	Factors     pq.StringArray          `db:"factors"`
	Status      models.RiskRecordStatus `db:"status"`
	AssessedBy  *string                 `db:"assessed_by"`
	AssessedAt  time.Time               `db:"assessed_at"`
	CreatedAt   time.Time               `db:"created_at"`
	UpdatedAt   time.Time               `db:"updated_at"`
}

func (row riskRecordRow) toModel() models.RiskRecord {
	factors := []string(row.Factors)
	if factors == nil {
		factors = []string{}
	}
	return models.RiskRecord{
		ID:          row.ID,
		StudentID:   row.StudentID,
		StudentName: row.StudentName,
		ClassID:     row.ClassID,
		Score:       row.Score,
		Level:       row.Level,
		Factors:     factors,
		Status:      row.Status,
		AssessedBy:  row.AssessedBy,
		AssessedAt:  row.AssessedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// RiskRecordRepository persists student risk assessments.
type RiskRecordRepository struct {
	db *sqlx.DB
}

// NewRiskRecordRepository constructs the repository.
func NewRiskRecordRepository(db *sqlx.DB) *RiskRecordRepository {
	return &RiskRecordRepository{db: db}
}

// FindByID returns a risk record with the student name joined in.
func (r *RiskRecordRepository) FindByID(ctx context.Context, id string) (*models.RiskRecord, error) {
	query := riskRecordSelect + "\nWHERE rr.id = $1"
	var row riskRecordRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find risk record: %w", err)
	}
	record := row.toModel()
	return &record, nil
}

// List returns risk records matching the filter ordered by score, highest first.
func (r *RiskRecordRepository) List(ctx context.Context, filter models.RiskRecordFilter) ([]models.RiskRecord, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("rr.class_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("rr.student_id = $%d", len(args)))
	}
	if len(filter.Levels) > 0 {
		levels := make([]string, len(filter.Levels))
		for i, level := range filter.Levels {
			levels[i] = string(level)
		}
		args = append(args, pq.Array(levels))
		conditions = append(conditions, fmt.Sprintf("rr.level = ANY($%d)", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("rr.status = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s\nWHERE %s\nORDER BY rr.score DESC, rr.assessed_at DESC LIMIT %d OFFSET %d", riskRecordSelect, where, size, offset)
	var rows []riskRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list risk records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM risk_records rr WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count risk records: %w", err)
	}

	records := make([]models.RiskRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	return records, total, nil
}

// studentLockQuery blocks until no other transaction holds the student's lock. The lock is
// released on commit or rollback.
const studentLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

// RiskRecordUpsertParams carries a fresh assessment for a student.
type RiskRecordUpsertParams struct {
	StudentID  string
	ClassID    string
	Result     models.RiskResult
	AssessedBy *string
}

// Upsert keeps at most one unresolved record per student: an existing open or monitoring
// record is rescored in place, otherwise a new open record is inserted. Concurrent
// upserts for the same student are serialized by a transaction-scoped advisory lock.
func (r *RiskRecordRepository) Upsert(ctx context.Context, params RiskRecordUpsertParams) (id string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin risk record transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	factors := pq.StringArray(params.Result.Factors)
	if factors == nil {
		factors = pq.StringArray{}
	}

	if _, err = tx.ExecContext(ctx, studentLockQuery, params.StudentID); err != nil {
		return "", fmt.Errorf("lock student risk records: %w", err)
	}

	const selectQuery = `SELECT id FROM risk_records WHERE student_id = $1 AND status <> $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &id, selectQuery, params.StudentID, models.RiskStatusResolved); err != nil {
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("lock risk record: %w", err)
		}
		id = uuid.NewString()
		const insertQuery = `INSERT INTO risk_records (id, student_id, class_id, score, level, factors, status, assessed_by, assessed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $9)`
		if _, err = tx.ExecContext(ctx, insertQuery, id, params.StudentID, params.ClassID, params.Result.Score, params.Result.Level,
			factors, models.RiskStatusOpen, params.AssessedBy, now); err != nil {
			return "", fmt.Errorf("insert risk record: %w", err)
		}
	} else {
		const updateQuery = `UPDATE risk_records SET class_id = $1, score = $2, level = $3, factors = $4, assessed_by = $5, assessed_at = $6, updated_at = $6 WHERE id = $7`
		if _, err = tx.ExecContext(ctx, updateQuery, params.ClassID, params.Result.Score, params.Result.Level,
			factors, params.AssessedBy, now, id); err != nil {
			return "", fmt.Errorf("update risk record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit risk record: %w", err)
	}
	return id, nil
}

// UpdateStatus moves a record through open, monitoring and resolved.
func (r *RiskRecordRepository) UpdateStatus(ctx context.Context, id string, status models.RiskRecordStatus) error {
	const query = `UPDATE risk_records SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update risk record status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update risk record status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
