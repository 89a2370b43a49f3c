package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/student-risk-api/internal/dto"
	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/internal/repository"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
	"github.com/noah-isme/student-risk-api/pkg/jobs"
)

const (
	riskRecordResource  = "risk_record"
	reassessJobType     = "risk_reassess_class"
	riskListCachePrefix = "risk:records:"
)

type indicatorSource interface {
	AttendancePercentage(ctx context.Context, studentID, classID string) (float64, error)
	GradeAverage(ctx context.Context, studentID, classID string) (float64, error)
	AbsencesLast30Days(ctx context.Context, studentID, classID string) (int, error)
	MissedActivities(ctx context.Context, studentID, classID string) (int, error)
	ClassEvasionRate(ctx context.Context, classID string) (*float64, error)
	PendingDeclarations(ctx context.Context, studentID string) (*int, error)
	ActiveEnrollment(ctx context.Context, studentID string) (string, error)
	ListClassStudents(ctx context.Context, classID string) ([]models.ClassStudent, error)
}

type riskRecordStore interface {
	FindByID(ctx context.Context, id string) (*models.RiskRecord, error)
	List(ctx context.Context, filter models.RiskRecordFilter) ([]models.RiskRecord, int, error)
	Upsert(ctx context.Context, params repository.RiskRecordUpsertParams) (string, error)
	UpdateStatus(ctx context.Context, id string, status models.RiskRecordStatus) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RiskService scores students from stored indicators and maintains their risk records.
type RiskService struct {
	records    riskRecordStore
	indicators indicatorSource
	queue      jobEnqueuer
	cache      *CacheService
	cacheTTL   time.Duration
	audit      auditLogger
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewRiskService constructs the service. queue, cache, audit and metrics are optional.
func NewRiskService(
	records riskRecordStore,
	indicators indicatorSource,
	queue jobEnqueuer,
	cache *CacheService,
	cacheTTL time.Duration,
	audit auditLogger,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *RiskService {
	if validate == nil {
		validate = validator.New()
	}
	registerRiskValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskService{
		records:    records,
		indicators: indicators,
		queue:      queue,
		cache:      cache,
		cacheTTL:   cacheTTL,
		audit:      audit,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Score runs the calculator on an ad-hoc snapshot.
func (s *RiskService) Score(in models.RiskIndicators) models.RiskResult {
	return CalculateRiskScore(in)
}

// LoadIndicators gathers every indicator of a student in parallel.
func (s *RiskService) LoadIndicators(ctx context.Context, studentID, classID string) (models.RiskIndicators, error) {
	var in models.RiskIndicators
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.AttendancePercentage, err = s.indicators.AttendancePercentage(gctx, studentID, classID)
		return err
	})
	g.Go(func() (err error) {
		in.GradeAverage, err = s.indicators.GradeAverage(gctx, studentID, classID)
		return err
	})
	g.Go(func() (err error) {
		in.AbsencesLast30Days, err = s.indicators.AbsencesLast30Days(gctx, studentID, classID)
		return err
	})
	g.Go(func() (err error) {
		in.MissedActivities, err = s.indicators.MissedActivities(gctx, studentID, classID)
		return err
	})
	g.Go(func() (err error) {
		in.ClassEvasionRate, err = s.indicators.ClassEvasionRate(gctx, classID)
		return err
	})
	g.Go(func() (err error) {
		in.PendingDeclarations, err = s.indicators.PendingDeclarations(gctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.RiskIndicators{}, err
	}
	return in, nil
}

// Assess scores a student and stores the result on the student's unresolved risk record.
// When classID is empty the class of the active enrollment is used. principal may be nil
// for system-initiated runs.
func (s *RiskService) Assess(ctx context.Context, principal *models.JWTClaims, studentID, classID string) (*models.RiskAssessment, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if classID == "" {
		resolved, err := s.indicators.ActiveEnrollment(ctx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "active enrollment not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
		}
		classID = resolved
	}

	in, err := s.LoadIndicators(ctx, studentID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk indicators")
	}
	result := CalculateRiskScore(in)

	var assessedBy *string
	if principal != nil {
		assessedBy = &principal.UserID
	}
	id, err := s.records.Upsert(ctx, repository.RiskRecordUpsertParams{
		StudentID:  studentID,
		ClassID:    classID,
		Result:     result,
		AssessedBy: assessedBy,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save risk record")
	}
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk record")
	}

	s.metrics.RecordRiskAssessment(result.Level)
	s.invalidateListings(ctx)
	s.emitAudit(ctx, principal, models.AuditActionRiskAssess, id, map[string]interface{}{
		"studentId": studentID,
		"classId":   classID,
		"score":     result.Score,
		"level":     result.Level,
	})

	return &models.RiskAssessment{Record: record, Indicators: in, Result: result}, nil
}

// Get returns one risk record.
func (s *RiskService) Get(ctx context.Context, id string) (*models.RiskRecord, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk record")
	}
	return record, nil
}

type riskListPage struct {
	Records []models.RiskRecord `json:"records"`
	Total   int                 `json:"total"`
}

// List returns a page of risk records with pagination metadata and whether it came from cache.
func (s *RiskService) List(ctx context.Context, filter models.RiskRecordFilter) ([]models.RiskRecord, *models.Pagination, bool, error) {
	for _, level := range filter.Levels {
		if !level.Valid() {
			return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid risk level %q", level))
		}
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid risk status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	key := riskListCacheKey(filter)
	var page riskListPage
	if hit, err := s.cache.Get(ctx, key, &page); err == nil && hit {
		return page.Records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: page.Total}, true, nil
	}

	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list risk records")
	}
	if records == nil {
		records = []models.RiskRecord{}
	}
	_ = s.cache.Set(ctx, key, riskListPage{Records: records, Total: total}, s.cacheTTL)
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, false, nil
}

// UpdateStatus moves a risk record to a new follow-up status.
func (s *RiskService) UpdateStatus(ctx context.Context, principal *models.JWTClaims, id string, req dto.UpdateRiskStatusRequest) (*models.RiskRecord, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid risk status payload")
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.records.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update risk status")
	}
	s.invalidateListings(ctx)
	s.emitAudit(ctx, principal, models.AuditActionRiskStatusUpdate, id, map[string]interface{}{
		"from": before.Status,
		"to":   req.Status,
	})
	return s.Get(ctx, id)
}

// ReassessClass schedules a background reassessment of every active student in a class.
func (s *RiskService) ReassessClass(ctx context.Context, principal *models.JWTClaims, classID string) (*dto.ReassessJobResponse, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "reassessment queue unavailable")
	}
	job := jobs.Job{ID: uuid.NewString(), Type: reassessJobType, Key: classID, Payload: classID}
	if err := s.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "reassessment already pending for class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to enqueue reassessment")
	}
	s.logger.Info("class reassessment enqueued", zap.String("job_id", job.ID), zap.String("class_id", classID), zap.String("requested_by", principal.UserID))
	return &dto.ReassessJobResponse{JobID: job.ID, ClassID: classID}, nil
}

// AssessClass reassesses every active student of a class synchronously. Failures for
// single students are logged and counted; the first one is returned after the run.
func (s *RiskService) AssessClass(ctx context.Context, classID string) (int, error) {
	students, err := s.indicators.ListClassStudents(ctx, classID)
	if err != nil {
		return 0, fmt.Errorf("list class students: %w", err)
	}
	assessed := 0
	var firstErr error
	for _, student := range students {
		if ctx.Err() != nil {
			return assessed, ctx.Err()
		}
		if _, err := s.Assess(ctx, nil, student.StudentID, classID); err != nil {
			s.logger.Warn("student reassessment failed", zap.String("student_id", student.StudentID), zap.String("class_id", classID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		assessed++
	}
	return assessed, firstErr
}

// HandleReassessJob is the queue handler for class reassessment jobs.
func (s *RiskService) HandleReassessJob(ctx context.Context, job jobs.Job) error {
	classID, ok := job.Payload.(string)
	if !ok || classID == "" {
		s.logger.Error("invalid reassessment job payload", zap.String("job_id", job.ID))
		return nil
	}
	assessed, err := s.AssessClass(ctx, classID)
	s.logger.Info("class reassessment finished",
		zap.String("job_id", job.ID),
		zap.String("class_id", classID),
		zap.Int("assessed", assessed),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)
	return err
}

func riskListCacheKey(filter models.RiskRecordFilter) string {
	status := ""
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	return fmt.Sprintf("%sclass=%s:student=%s:levels=%v:status=%s:page=%d:size=%d",
		riskListCachePrefix, filter.ClassID, filter.StudentID, filter.Levels, status, filter.Page, filter.PageSize)
}

func (s *RiskService) invalidateListings(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, riskListCachePrefix+"*", makeAnalyticsCacheKey("compare")+"*")
}

func (s *RiskService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, id string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(payload)
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	log := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   riskRecordResource,
		ResourceID: &id,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "risk-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record risk audit", zap.Error(err))
	}
}
