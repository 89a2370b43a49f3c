package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/dto"
	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/pkg/fetchguard"
)

const interventionResource = "risk_intervention"

// Notification texts shown to staff after a mutation.
const (
	MessageInterventionCreated = "Intervenção registrada com sucesso"
	MessageInterventionUpdated = "Intervenção atualizada com sucesso"
	MessageCreateFailed        = "Erro ao registrar intervenção"
	MessageUpdateFailed        = "Erro ao atualizar intervenção"
	MessageUnauthenticated     = "Usuário não autenticado"
	MessageInvalidIntervention = "Dados da intervenção inválidos"
	MessageInterventionMissing = "Registro não encontrado"
)

// FailureKind tags why a mutation failed. The zero value means success.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureUnauthenticated FailureKind = "unauthenticated"
	FailureValidation      FailureKind = "validation"
	FailureNotFound        FailureKind = "not_found"
	FailureConstraint      FailureKind = "constraint"
	FailurePersistence     FailureKind = "persistence"
)

// MutationResult is the outcome of an intervention create or update. Message is safe to
// show to the caller; Err keeps the underlying cause for logs and must not be rendered.
type MutationResult struct {
	Kind          FailureKind
	Message       string
	Intervention  *models.RiskIntervention
	Interventions []models.RiskIntervention
	Err           error
}

// OK reports success.
func (r MutationResult) OK() bool {
	return r.Kind == FailureNone
}

// Retryable reports whether repeating the same call may succeed.
func (r MutationResult) Retryable() bool {
	return r.Kind == FailurePersistence
}

type interventionStore interface {
	ListByRiskRecord(ctx context.Context, riskRecordID string) ([]models.RiskIntervention, error)
	FindByID(ctx context.Context, id string) (*models.RiskIntervention, error)
	Create(ctx context.Context, item *models.RiskIntervention) error
	Update(ctx context.Context, id string, changes models.InterventionChanges) error
}

type riskRecordReader interface {
	FindByID(ctx context.Context, id string) (*models.RiskRecord, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// InterventionService manages the append-only intervention log of risk records.
type InterventionService struct {
	repo      interventionStore
	records   riskRecordReader
	cache     *CacheService
	cacheTTL  time.Duration
	guard     *fetchguard.Tracker
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInterventionService builds the service. cache, audit and metrics are optional.
func NewInterventionService(
	repo interventionStore,
	records riskRecordReader,
	cache *CacheService,
	cacheTTL time.Duration,
	audit auditLogger,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *InterventionService {
	if validate == nil {
		validate = validator.New()
	}
	registerRiskValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionService{
		repo:      repo,
		records:   records,
		cache:     cache,
		cacheTTL:  cacheTTL,
		guard:     fetchguard.New(),
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

func interventionListKey(riskRecordID string) string {
	return fmt.Sprintf("risk:interventions:%s", riskRecordID)
}

// List returns the interventions of a risk record, newest first. An empty id yields an
// empty list without touching storage.
func (s *InterventionService) List(ctx context.Context, riskRecordID string) ([]models.RiskIntervention, bool, error) {
	if riskRecordID == "" {
		return []models.RiskIntervention{}, false, nil
	}

	var cached []models.RiskIntervention
	if hit, err := s.cache.Get(ctx, interventionListKey(riskRecordID), &cached); err == nil && hit {
		if cached == nil {
			cached = []models.RiskIntervention{}
		}
		return cached, true, nil
	}

	items, err := s.fetch(ctx, riskRecordID)
	if err != nil {
		s.logger.Error("failed to list risk interventions", zap.String("risk_record_id", riskRecordID), zap.Error(err))
		return nil, false, err
	}
	return items, false, nil
}

// Create logs a new intervention performed by the principal. The outcome defaults to
// pending. On success the list of the same risk record is re-fetched into the result.
func (s *InterventionService) Create(ctx context.Context, principal *models.JWTClaims, req dto.CreateInterventionRequest) MutationResult {
	const op = "create"
	if principal == nil || principal.UserID == "" {
		return s.fail(op, FailureUnauthenticated, MessageUnauthenticated, errors.New("no authenticated principal"))
	}
	if err := s.validator.Struct(req); err != nil {
		return s.fail(op, FailureValidation, MessageInvalidIntervention, err)
	}

	record, err := s.records.FindByID(ctx, req.RiskRecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.fail(op, FailureNotFound, MessageInterventionMissing, fmt.Errorf("risk record %s: %w", req.RiskRecordID, err))
		}
		return s.fail(op, FailurePersistence, MessageCreateFailed, err)
	}
	if record.StudentID != req.StudentID {
		return s.fail(op, FailureValidation, MessageInvalidIntervention,
			fmt.Errorf("student %s does not belong to risk record %s", req.StudentID, req.RiskRecordID))
	}

	outcome := models.OutcomePending
	if req.Outcome != nil {
		outcome = *req.Outcome
	}
	item := &models.RiskIntervention{
		RiskRecordID:     req.RiskRecordID,
		StudentID:        req.StudentID,
		PerformedBy:      principal.UserID,
		InterventionType: req.InterventionType,
		Description:      req.Description,
		Outcome:          &outcome,
		FollowUpDate:     req.FollowUpDate,
		FollowUpNotes:    req.FollowUpNotes,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return s.fail(op, classifyPersistence(err), MessageCreateFailed, err)
	}

	s.metrics.RecordInterventionCreated(item.InterventionType)
	s.emitAudit(ctx, principal, models.AuditActionInterventionCreate, item.ID, nil, item)

	return MutationResult{
		Message:       MessageInterventionCreated,
		Intervention:  item,
		Interventions: s.refresh(ctx, item.RiskRecordID),
	}
}

// Update applies a partial change to an intervention and re-fetches its risk record's list.
func (s *InterventionService) Update(ctx context.Context, principal *models.JWTClaims, id string, req dto.UpdateInterventionRequest) MutationResult {
	const op = "update"
	if principal == nil || principal.UserID == "" {
		return s.fail(op, FailureUnauthenticated, MessageUnauthenticated, errors.New("no authenticated principal"))
	}
	if id == "" {
		return s.fail(op, FailureValidation, MessageInvalidIntervention, errors.New("intervention id is required"))
	}
	if err := s.validator.Struct(req); err != nil {
		return s.fail(op, FailureValidation, MessageInvalidIntervention, err)
	}
	changes := req.Changes()
	if changes.Empty() {
		return s.fail(op, FailureValidation, MessageInvalidIntervention, errors.New("no fields supplied"))
	}

	before, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.fail(op, FailureNotFound, MessageInterventionMissing, fmt.Errorf("intervention %s: %w", id, err))
		}
		return s.fail(op, FailurePersistence, MessageUpdateFailed, err)
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.fail(op, FailureNotFound, MessageInterventionMissing, fmt.Errorf("intervention %s: %w", id, err))
		}
		return s.fail(op, classifyPersistence(err), MessageUpdateFailed, err)
	}

	after := *before
	if changes.Outcome != nil {
		after.Outcome = changes.Outcome
	}
	if changes.FollowUpDate != nil {
		after.FollowUpDate = changes.FollowUpDate
	}
	if changes.FollowUpNotes != nil {
		after.FollowUpNotes = changes.FollowUpNotes
	}
	s.emitAudit(ctx, principal, models.AuditActionInterventionUpdate, id, before, &after)

	result := MutationResult{
		Message:       MessageInterventionUpdated,
		Intervention:  &after,
		Interventions: s.refresh(ctx, before.RiskRecordID),
	}
	for i := range result.Interventions {
		if result.Interventions[i].ID == id {
			refreshed := result.Interventions[i]
			result.Intervention = &refreshed
			break
		}
	}
	return result
}

// fetch loads the list from storage and writes it to the cache unless a newer fetch
// for the same risk record started meanwhile.
func (s *InterventionService) fetch(ctx context.Context, riskRecordID string) ([]models.RiskIntervention, error) {
	token := s.guard.Begin(riskRecordID)
	items, err := s.repo.ListByRiskRecord(ctx, riskRecordID)
	if err != nil {
		s.guard.Release(token)
		return nil, err
	}
	if items == nil {
		items = []models.RiskIntervention{}
	}
	if !s.cache.Enabled() {
		s.guard.Release(token)
		return items, nil
	}
	committed := s.guard.Commit(token, func() {
		_ = s.cache.Set(ctx, interventionListKey(riskRecordID), items, s.cacheTTL)
	})
	if !committed {
		s.logger.Debug("discarded superseded intervention list", zap.String("risk_record_id", riskRecordID), zap.Uint64("generation", token.Generation))
	}
	return items, nil
}

// refresh re-fetches after a successful mutation. The mutation already happened, so a
// failed re-fetch only drops the cached list.
func (s *InterventionService) refresh(ctx context.Context, riskRecordID string) []models.RiskIntervention {
	items, err := s.fetch(ctx, riskRecordID)
	if err != nil {
		s.logger.Warn("failed to refresh risk interventions", zap.String("risk_record_id", riskRecordID), zap.Error(err))
		s.guard.Cancel(riskRecordID)
		_ = s.cache.Invalidate(ctx, interventionListKey(riskRecordID))
		return nil
	}
	return items
}

func (s *InterventionService) fail(op string, kind FailureKind, message string, err error) MutationResult {
	s.logger.Error("risk intervention mutation failed",
		zap.String("operation", op),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	s.metrics.RecordMutationFailure(op, string(kind))
	return MutationResult{Kind: kind, Message: message, Err: err}
}

// classifyPersistence separates integrity violations, which will fail again, from
// transient storage errors.
func classifyPersistence(err error) FailureKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return FailureConstraint
	}
	return FailurePersistence
}

func (s *InterventionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, id string, before, after *models.RiskIntervention) {
	if s.audit == nil {
		return
	}
	var oldValues, newValues []byte
	if before != nil {
		oldValues, _ = json.Marshal(before)
	}
	if after != nil {
		newValues, _ = json.Marshal(after)
	}
	userID := actor.UserID
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   interventionResource,
		ResourceID: &id,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "intervention-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record intervention audit", zap.Error(err))
	}
}
