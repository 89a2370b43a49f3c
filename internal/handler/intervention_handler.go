package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/dto"
	"github.com/noah-isme/student-risk-api/internal/middleware"
	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/internal/service"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
	"github.com/noah-isme/student-risk-api/pkg/logger"
	"github.com/noah-isme/student-risk-api/pkg/response"
)

type interventionService interface {
	List(ctx context.Context, riskRecordID string) ([]models.RiskIntervention, bool, error)
	Create(ctx context.Context, principal *models.JWTClaims, req dto.CreateInterventionRequest) service.MutationResult
	Update(ctx context.Context, principal *models.JWTClaims, id string, req dto.UpdateInterventionRequest) service.MutationResult
}

// InterventionHandler exposes the intervention timeline of risk records.
type InterventionHandler struct {
	service interventionService
	logger  *zap.Logger
}

// NewInterventionHandler constructs the handler.
func NewInterventionHandler(svc interventionService, log *zap.Logger) *InterventionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InterventionHandler{service: svc, logger: log}
}

// List godoc
// @Summary List interventions of a risk record
// @Tags Interventions
// @Produce json
// @Param id path string true "Risk record ID"
// @Success 200 {object} response.Envelope
// @Router /risk-records/{id}/interventions [get]
func (h *InterventionHandler) List(c *gin.Context) {
	items, cacheHit, err := h.service.List(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list interventions"))
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, dto.NewInterventionItems(items), nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Register an intervention
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Risk record ID"
// @Param payload body dto.CreateInterventionRequest true "Intervention payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /risk-records/{id}/interventions [post]
func (h *InterventionHandler) Create(c *gin.Context) {
	var req dto.CreateInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromContext(c, h.logger).Warn("invalid intervention payload",
			zap.String("risk_record_id", c.Param("id")), zap.Error(err))
		h.respondFailure(c, service.MutationResult{Kind: service.FailureValidation, Message: service.MessageInvalidIntervention, Err: err})
		return
	}
	req.RiskRecordID = strings.TrimSpace(c.Param("id"))

	result := h.service.Create(c.Request.Context(), middleware.Principal(c), req)
	if !result.OK() {
		h.respondFailure(c, result)
		return
	}
	h.respondSuccess(c, http.StatusCreated, result)
}

// Update godoc
// @Summary Update intervention outcome or follow-up
// @Tags Interventions
// @Accept json
// @Produce json
// @Param id path string true "Intervention ID"
// @Param payload body dto.UpdateInterventionRequest true "Partial update"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /interventions/{id} [patch]
func (h *InterventionHandler) Update(c *gin.Context) {
	var req dto.UpdateInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromContext(c, h.logger).Warn("invalid intervention update payload",
			zap.String("intervention_id", c.Param("id")), zap.Error(err))
		h.respondFailure(c, service.MutationResult{Kind: service.FailureValidation, Message: service.MessageInvalidIntervention, Err: err})
		return
	}

	result := h.service.Update(c.Request.Context(), middleware.Principal(c), strings.TrimSpace(c.Param("id")), req)
	if !result.OK() {
		h.respondFailure(c, result)
		return
	}
	h.respondSuccess(c, http.StatusOK, result)
}

func (h *InterventionHandler) respondSuccess(c *gin.Context, status int, result service.MutationResult) {
	payload := dto.InterventionMutationResponse{Interventions: dto.NewInterventionItems(result.Interventions)}
	if result.Intervention != nil {
		item := dto.NewInterventionItem(*result.Intervention)
		payload.Intervention = &item
	}
	middleware.SetMessage(c, result.Message)
	response.JSON(c, status, payload, nil, middleware.ExtractMeta(c))
}

// respondFailure renders the generic message only; the cause stays in the logs.
func (h *InterventionHandler) respondFailure(c *gin.Context, result service.MutationResult) {
	var base *appErrors.Error
	switch result.Kind {
	case service.FailureUnauthenticated:
		base = appErrors.ErrUnauthorized
	case service.FailureValidation:
		base = appErrors.ErrValidation
	case service.FailureNotFound:
		base = appErrors.ErrNotFound
	case service.FailureConstraint:
		base = appErrors.ErrConflict
	case service.FailurePersistence:
		base = appErrors.ErrUnavailable
	default:
		base = appErrors.ErrInternal
	}
	middleware.SetMessage(c, result.Message)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["retryable"] = result.Retryable()
	response.Error(c, appErrors.Clone(base, result.Message), meta)
}
