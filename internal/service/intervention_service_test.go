package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/dto"
	"github.com/noah-isme/student-risk-api/internal/models"
)

type interventionRepoStub struct {
	items      map[string][]models.RiskIntervention
	byID       map[string]*models.RiskIntervention
	created    []*models.RiskIntervention
	updated    map[string]models.InterventionChanges
	listCalls  []string
	createErr  error
	updateErr  error
	listErr    error
	onList     func(riskRecordID string)
	findErr    error
	createTime time.Time
}

func newInterventionRepoStub() *interventionRepoStub {
	return &interventionRepoStub{
		items:      map[string][]models.RiskIntervention{},
		byID:       map[string]*models.RiskIntervention{},
		updated:    map[string]models.InterventionChanges{},
		createTime: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func (s *interventionRepoStub) ListByRiskRecord(_ context.Context, riskRecordID string) ([]models.RiskIntervention, error) {
	s.listCalls = append(s.listCalls, riskRecordID)
	if s.onList != nil {
		s.onList(riskRecordID)
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.items[riskRecordID], nil
}

func (s *interventionRepoStub) FindByID(_ context.Context, id string) (*models.RiskIntervention, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	item, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *interventionRepoStub) Create(_ context.Context, item *models.RiskIntervention) error {
	if s.createErr != nil {
		return s.createErr
	}
	item.ID = "int-new"
	item.PerformedAt = s.createTime
	s.created = append(s.created, item)
	s.items[item.RiskRecordID] = append([]models.RiskIntervention{*item}, s.items[item.RiskRecordID]...)
	return nil
}

func (s *interventionRepoStub) Update(_ context.Context, id string, changes models.InterventionChanges) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	s.updated[id] = changes
	return nil
}

type riskRecordReaderStub struct {
	records map[string]*models.RiskRecord
	err     error
}

func (s *riskRecordReaderStub) FindByID(_ context.Context, id string) (*models.RiskRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

type auditRecorderStub struct {
	logs []*models.AuditLog
	err  error
}

func (s *auditRecorderStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

func newInterventionServiceUnderTest(repo *interventionRepoStub, cacheRepo CacheRepository) (*InterventionService, *auditRecorderStub) {
	records := &riskRecordReaderStub{records: map[string]*models.RiskRecord{
		"risk-1": {ID: "risk-1", StudentID: "student-1", ClassID: "class-1"},
	}}
	audit := &auditRecorderStub{}
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), cacheRepo != nil)
	svc := NewInterventionService(repo, records, cache, time.Minute, audit, nil, nil, zap.NewNop())
	return svc, audit
}

func tutorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleTutor}
}

func validCreateRequest() dto.CreateInterventionRequest {
	return dto.CreateInterventionRequest{
		RiskRecordID:     "risk-1",
		StudentID:        "student-1",
		InterventionType: models.InterventionFamilyContact,
		Description:      "Contato com a mãe sobre as faltas",
	}
}

func TestInterventionServiceListEmptyIDSkipsRepository(t *testing.T) {
	repo := newInterventionRepoStub()
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	items, cacheHit, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Empty(t, repo.listCalls)
}

func TestInterventionServiceListScopedToRiskRecord(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.items["risk-1"] = []models.RiskIntervention{{ID: "int-1", RiskRecordID: "risk-1"}}
	repo.items["risk-2"] = []models.RiskIntervention{{ID: "int-2", RiskRecordID: "risk-2"}}
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	items, _, err := svc.List(context.Background(), "risk-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	for _, item := range items {
		assert.Equal(t, "risk-1", item.RiskRecordID)
	}
	assert.Equal(t, []string{"risk-1"}, repo.listCalls)
}

func TestInterventionServiceListUsesCache(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.items["risk-1"] = []models.RiskIntervention{{ID: "int-1", RiskRecordID: "risk-1"}}
	svc, _ := newInterventionServiceUnderTest(repo, &stubCacheRepo{})

	_, hit, err := svc.List(context.Background(), "risk-1")
	require.NoError(t, err)
	assert.False(t, hit)

	items, hit, err := svc.List(context.Background(), "risk-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, items, 1)
	assert.Len(t, repo.listCalls, 1)
}

func TestInterventionServiceListError(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.listErr = errors.New("connection refused")
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	_, _, err := svc.List(context.Background(), "risk-1")
	assert.Error(t, err)
}

func TestInterventionServiceCreateRequiresPrincipal(t *testing.T) {
	repo := newInterventionRepoStub()
	svc, audit := newInterventionServiceUnderTest(repo, nil)

	result := svc.Create(context.Background(), nil, validCreateRequest())
	assert.False(t, result.OK())
	assert.Equal(t, FailureUnauthenticated, result.Kind)
	assert.False(t, result.Retryable())
	assert.Equal(t, MessageUnauthenticated, result.Message)
	assert.Empty(t, repo.created)
	assert.Empty(t, repo.listCalls)
	assert.Empty(t, audit.logs)
}

func TestInterventionServiceCreateDefaultsOutcome(t *testing.T) {
	repo := newInterventionRepoStub()
	svc, audit := newInterventionServiceUnderTest(repo, nil)

	result := svc.Create(context.Background(), tutorClaims(), validCreateRequest())
	require.True(t, result.OK(), result.Err)
	assert.Equal(t, MessageInterventionCreated, result.Message)
	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, "user-1", created.PerformedBy)
	require.NotNil(t, created.Outcome)
	assert.Equal(t, models.OutcomePending, *created.Outcome)

	assert.Equal(t, []string{"risk-1"}, repo.listCalls)
	require.Len(t, result.Interventions, 1)
	assert.Equal(t, "int-new", result.Interventions[0].ID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionInterventionCreate, audit.logs[0].Action)
}

func TestInterventionServiceCreateKeepsSuppliedOutcome(t *testing.T) {
	repo := newInterventionRepoStub()
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	req := validCreateRequest()
	outcome := models.OutcomePositive
	req.Outcome = &outcome

	result := svc.Create(context.Background(), tutorClaims(), req)
	require.True(t, result.OK())
	assert.Equal(t, models.OutcomePositive, *repo.created[0].Outcome)
}

func TestInterventionServiceCreateValidation(t *testing.T) {
	cases := map[string]func(*dto.CreateInterventionRequest){
		"short description": func(r *dto.CreateInterventionRequest) { r.Description = "curto" },
		"unknown type":      func(r *dto.CreateInterventionRequest) { r.InterventionType = "sms" },
		"unknown outcome": func(r *dto.CreateInterventionRequest) {
			outcome := models.InterventionOutcome("great")
			r.Outcome = &outcome
		},
		"student mismatch": func(r *dto.CreateInterventionRequest) { r.StudentID = "student-2" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newInterventionRepoStub()
			svc, _ := newInterventionServiceUnderTest(repo, nil)
			req := validCreateRequest()
			mutate(&req)

			result := svc.Create(context.Background(), tutorClaims(), req)
			assert.Equal(t, FailureValidation, result.Kind)
			assert.Empty(t, repo.created)
		})
	}
}

func TestInterventionServiceCreateUnknownRiskRecord(t *testing.T) {
	repo := newInterventionRepoStub()
	svc, _ := newInterventionServiceUnderTest(repo, nil)
	req := validCreateRequest()
	req.RiskRecordID = "risk-404"

	result := svc.Create(context.Background(), tutorClaims(), req)
	assert.Equal(t, FailureNotFound, result.Kind)
	assert.Empty(t, repo.created)
}

func TestInterventionServiceCreateConstraintViolation(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.createErr = &pq.Error{Code: "23503", Message: "violates foreign key constraint"}
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	result := svc.Create(context.Background(), tutorClaims(), validCreateRequest())
	assert.Equal(t, FailureConstraint, result.Kind)
	assert.False(t, result.Retryable())
	assert.Equal(t, MessageCreateFailed, result.Message)
	assert.NotContains(t, result.Message, "foreign key")
	assert.Empty(t, repo.listCalls)
}

func TestInterventionServiceCreatePersistenceFailure(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.createErr = errors.New("connection reset by peer")
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	result := svc.Create(context.Background(), tutorClaims(), validCreateRequest())
	assert.Equal(t, FailurePersistence, result.Kind)
	assert.True(t, result.Retryable())
	assert.Equal(t, MessageCreateFailed, result.Message)
	assert.ErrorIs(t, result.Err, repo.createErr)
}

func TestInterventionServiceUpdatePartial(t *testing.T) {
	repo := newInterventionRepoStub()
	pending := models.OutcomePending
	existing := models.RiskIntervention{ID: "int-1", RiskRecordID: "risk-1", StudentID: "student-1", Outcome: &pending, Description: "Reunião com responsáveis"}
	repo.byID["int-1"] = &existing
	repo.items["risk-1"] = []models.RiskIntervention{existing}
	svc, audit := newInterventionServiceUnderTest(repo, nil)

	notes := "Família compareceu"
	result := svc.Update(context.Background(), tutorClaims(), "int-1", dto.UpdateInterventionRequest{FollowUpNotes: &notes})
	require.True(t, result.OK(), result.Err)
	assert.Equal(t, MessageInterventionUpdated, result.Message)

	changes := repo.updated["int-1"]
	assert.Nil(t, changes.Outcome)
	assert.Nil(t, changes.FollowUpDate)
	require.NotNil(t, changes.FollowUpNotes)
	assert.Equal(t, notes, *changes.FollowUpNotes)
	assert.Equal(t, []string{"risk-1"}, repo.listCalls)
	require.Len(t, audit.logs, 1)
	assert.NotEmpty(t, audit.logs[0].OldValues)
}

func TestInterventionServiceUpdateFailures(t *testing.T) {
	repo := newInterventionRepoStub()
	svc, _ := newInterventionServiceUnderTest(repo, nil)
	outcome := models.OutcomeNegative

	result := svc.Update(context.Background(), nil, "int-1", dto.UpdateInterventionRequest{Outcome: &outcome})
	assert.Equal(t, FailureUnauthenticated, result.Kind)

	result = svc.Update(context.Background(), tutorClaims(), "int-1", dto.UpdateInterventionRequest{})
	assert.Equal(t, FailureValidation, result.Kind)

	result = svc.Update(context.Background(), tutorClaims(), "int-404", dto.UpdateInterventionRequest{Outcome: &outcome})
	assert.Equal(t, FailureNotFound, result.Kind)
	assert.Equal(t, MessageInterventionMissing, result.Message)

	repo.byID["int-1"] = &models.RiskIntervention{ID: "int-1", RiskRecordID: "risk-1"}
	repo.updateErr = errors.New("deadlock detected")
	result = svc.Update(context.Background(), tutorClaims(), "int-1", dto.UpdateInterventionRequest{Outcome: &outcome})
	assert.Equal(t, FailurePersistence, result.Kind)
	assert.Equal(t, MessageUpdateFailed, result.Message)
	assert.Empty(t, repo.listCalls)
}

func TestInterventionServiceDiscardsSupersededFetch(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.items["risk-1"] = []models.RiskIntervention{{ID: "int-old", RiskRecordID: "risk-1"}}
	cacheRepo := &stubCacheRepo{}
	svc, _ := newInterventionServiceUnderTest(repo, cacheRepo)

	repo.onList = func(riskRecordID string) {
		// a newer fetch for the same record starts before this one returns
		svc.guard.Begin(riskRecordID)
	}

	items, _, err := svc.List(context.Background(), "risk-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	_, cached := cacheRepo.store[interventionListKey("risk-1")]
	assert.False(t, cached)

	repo.onList = nil
	_, _, err = svc.List(context.Background(), "risk-1")
	require.NoError(t, err)
	_, cached = cacheRepo.store[interventionListKey("risk-1")]
	assert.True(t, cached)
	assert.Zero(t, svc.guard.Len())
}

func TestInterventionServiceFetchDoesNotRetainScopes(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.items["risk-1"] = []models.RiskIntervention{{ID: "int-1", RiskRecordID: "risk-1"}}
	svc, _ := newInterventionServiceUnderTest(repo, &stubCacheRepo{})

	for _, id := range []string{"risk-1", "risk-2", "risk-3"} {
		_, _, err := svc.List(context.Background(), id)
		require.NoError(t, err)
	}
	assert.Zero(t, svc.guard.Len())

	repo.listErr = errors.New("timeout")
	_, _, err := svc.List(context.Background(), "risk-4")
	require.Error(t, err)
	assert.Zero(t, svc.guard.Len())

	uncached, _ := newInterventionServiceUnderTest(newInterventionRepoStub(), nil)
	_, _, err = uncached.List(context.Background(), "risk-1")
	require.NoError(t, err)
	assert.Zero(t, uncached.guard.Len())
}

func TestInterventionServiceRefreshFailureKeepsSuccess(t *testing.T) {
	repo := newInterventionRepoStub()
	repo.listErr = errors.New("timeout")
	svc, _ := newInterventionServiceUnderTest(repo, nil)

	result := svc.Create(context.Background(), tutorClaims(), validCreateRequest())
	assert.True(t, result.OK())
	assert.Nil(t, result.Interventions)
}
