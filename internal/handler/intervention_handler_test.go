package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/student-risk-api/internal/dto"
	"github.com/noah-isme/student-risk-api/internal/middleware"
	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/internal/service"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newTestContext(method, target, body string, principal *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if principal != nil {
		c.Set(middleware.ContextUserKey, principal)
	}
	return c, rec
}

type fakeInterventionSrv struct {
	items       []models.RiskIntervention
	hit         bool
	listErr     error
	result      service.MutationResult
	lastCreate  dto.CreateInterventionRequest
	lastUpdate  dto.UpdateInterventionRequest
	lastID      string
	lastActor   *models.JWTClaims
	createCalls int
}

func (f *fakeInterventionSrv) List(_ context.Context, riskRecordID string) ([]models.RiskIntervention, bool, error) {
	f.lastID = riskRecordID
	return f.items, f.hit, f.listErr
}

func (f *fakeInterventionSrv) Create(_ context.Context, principal *models.JWTClaims, req dto.CreateInterventionRequest) service.MutationResult {
	f.createCalls++
	f.lastActor = principal
	f.lastCreate = req
	return f.result
}

func (f *fakeInterventionSrv) Update(_ context.Context, principal *models.JWTClaims, id string, req dto.UpdateInterventionRequest) service.MutationResult {
	f.lastActor = principal
	f.lastID = id
	f.lastUpdate = req
	return f.result
}

func TestInterventionHandlerList(t *testing.T) {
	srv := &fakeInterventionSrv{
		hit: true,
		items: []models.RiskIntervention{
			{ID: "int-1", RiskRecordID: "risk-1", InterventionType: models.InterventionMeeting, PerformedAt: time.Now()},
		},
	}
	handler := NewInterventionHandler(srv, nil)

	c, rec := newTestContext(http.MethodGet, "/risk-records/risk-1/interventions", "", nil)
	c.Params = gin.Params{{Key: "id", Value: "risk-1"}}
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "risk-1", srv.lastID)
	envelope := decodeEnvelope(t, rec)
	var items []dto.InterventionItem
	require.NoError(t, json.Unmarshal(envelope.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, models.PerformerPlaceholder, items[0].PerformerName)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
}

func TestInterventionHandlerListFailure(t *testing.T) {
	handler := NewInterventionHandler(&fakeInterventionSrv{listErr: errors.New("db down")}, nil)

	c, rec := newTestContext(http.MethodGet, "/risk-records/risk-1/interventions", "", nil)
	c.Params = gin.Params{{Key: "id", Value: "risk-1"}}
	handler.List(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInterventionHandlerCreateSuccess(t *testing.T) {
	created := models.RiskIntervention{ID: "int-9", RiskRecordID: "risk-1", InterventionType: models.InterventionPhoneCall}
	srv := &fakeInterventionSrv{result: service.MutationResult{
		Message:       service.MessageInterventionCreated,
		Intervention:  &created,
		Interventions: []models.RiskIntervention{created},
	}}
	handler := NewInterventionHandler(srv, nil)
	principal := &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}

	body := `{"studentId":"student-1","interventionType":"phone_call","description":"Ligação para a família"}`
	c, rec := newTestContext(http.MethodPost, "/risk-records/risk-1/interventions", body, principal)
	c.Params = gin.Params{{Key: "id", Value: "risk-1"}}
	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "risk-1", srv.lastCreate.RiskRecordID)
	assert.Equal(t, models.InterventionPhoneCall, srv.lastCreate.InterventionType)
	assert.Same(t, principal, srv.lastActor)

	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, service.MessageInterventionCreated, envelope.Meta["message"])
	var payload dto.InterventionMutationResponse
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.NotNil(t, payload.Intervention)
	assert.Equal(t, "int-9", payload.Intervention.ID)
	assert.Len(t, payload.Interventions, 1)
}

func TestInterventionHandlerCreateFailureMapping(t *testing.T) {
	cases := []struct {
		kind      service.FailureKind
		message   string
		status    int
		retryable bool
	}{
		{service.FailureUnauthenticated, service.MessageUnauthenticated, http.StatusUnauthorized, false},
		{service.FailureValidation, service.MessageInvalidIntervention, http.StatusBadRequest, false},
		{service.FailureNotFound, service.MessageInterventionMissing, http.StatusNotFound, false},
		{service.FailureConstraint, service.MessageCreateFailed, http.StatusConflict, false},
		{service.FailurePersistence, service.MessageCreateFailed, http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			srv := &fakeInterventionSrv{result: service.MutationResult{Kind: tc.kind, Message: tc.message, Err: errors.New("pq: secret detail")}}
			handler := NewInterventionHandler(srv, nil)

			body := `{"studentId":"student-1","interventionType":"meeting","description":"Reunião pedagógica"}`
			c, rec := newTestContext(http.MethodPost, "/risk-records/risk-1/interventions", body, nil)
			c.Params = gin.Params{{Key: "id", Value: "risk-1"}}
			handler.Create(c)

			require.Equal(t, tc.status, rec.Code)
			envelope := decodeEnvelope(t, rec)
			assert.Equal(t, tc.message, envelope.Meta["message"])
			assert.Equal(t, tc.retryable, envelope.Meta["retryable"])
			assert.Equal(t, tc.message, envelope.Error["message"])
			assert.NotContains(t, rec.Body.String(), "secret detail")
		})
	}
}

func TestInterventionHandlerCreateRejectsMalformedJSON(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	srv := &fakeInterventionSrv{}
	handler := NewInterventionHandler(srv, zap.New(core))

	c, rec := newTestContext(http.MethodPost, "/risk-records/risk-1/interventions", `{"studentId":`, &models.JWTClaims{UserID: "u1"})
	c.Params = gin.Params{{Key: "id", Value: "risk-1"}}
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, srv.createCalls)
	assert.Equal(t, service.MessageInvalidIntervention, decodeEnvelope(t, rec).Error["message"])

	entries := logs.FilterMessage("invalid intervention payload").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "risk-1", entries[0].ContextMap()["risk_record_id"])
	assert.Contains(t, entries[0].ContextMap(), "error")
}

func TestInterventionHandlerUpdateLogsMalformedJSON(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	srv := &fakeInterventionSrv{}
	handler := NewInterventionHandler(srv, zap.New(core))

	c, rec := newTestContext(http.MethodPatch, "/interventions/int-1", `{"outcome":42}`, &models.JWTClaims{UserID: "u1"})
	c.Params = gin.Params{{Key: "id", Value: "int-1"}}
	handler.Update(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, srv.lastID)
	assert.NotContains(t, rec.Body.String(), "cannot unmarshal")

	entries := logs.FilterMessage("invalid intervention update payload").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "int-1", entries[0].ContextMap()["intervention_id"])
}

func TestInterventionHandlerUpdate(t *testing.T) {
	outcome := models.OutcomePositive
	updated := models.RiskIntervention{ID: "int-1", RiskRecordID: "risk-1", Outcome: &outcome}
	srv := &fakeInterventionSrv{result: service.MutationResult{
		Message:       service.MessageInterventionUpdated,
		Intervention:  &updated,
		Interventions: []models.RiskIntervention{updated},
	}}
	handler := NewInterventionHandler(srv, nil)

	c, rec := newTestContext(http.MethodPatch, "/interventions/int-1", `{"outcome":"positive"}`, &models.JWTClaims{UserID: "u1"})
	c.Params = gin.Params{{Key: "id", Value: "int-1"}}
	handler.Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "int-1", srv.lastID)
	require.NotNil(t, srv.lastUpdate.Outcome)
	assert.Equal(t, models.OutcomePositive, *srv.lastUpdate.Outcome)
	assert.Equal(t, service.MessageInterventionUpdated, decodeEnvelope(t, rec).Meta["message"])
}
