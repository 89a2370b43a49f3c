package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-risk-api/internal/dto"
	"github.com/noah-isme/student-risk-api/internal/middleware"
	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/internal/service"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
	"github.com/noah-isme/student-risk-api/pkg/response"
)

type riskService interface {
	Score(in models.RiskIndicators) models.RiskResult
	Assess(ctx context.Context, principal *models.JWTClaims, studentID, classID string) (*models.RiskAssessment, error)
	Get(ctx context.Context, id string) (*models.RiskRecord, error)
	List(ctx context.Context, filter models.RiskRecordFilter) ([]models.RiskRecord, *models.Pagination, bool, error)
	UpdateStatus(ctx context.Context, principal *models.JWTClaims, id string, req dto.UpdateRiskStatusRequest) (*models.RiskRecord, error)
	ReassessClass(ctx context.Context, principal *models.JWTClaims, classID string) (*dto.ReassessJobResponse, error)
}

type riskExporter interface {
	ExportRiskRecord(ctx context.Context, id string, format service.ExportFormat) (*service.ExportFile, error)
}

// RiskHandler exposes risk scoring and risk record endpoints.
type RiskHandler struct {
	service  riskService
	exporter riskExporter
}

// NewRiskHandler constructs the handler.
func NewRiskHandler(svc riskService, exporter riskExporter) *RiskHandler {
	return &RiskHandler{service: svc, exporter: exporter}
}

// Score godoc
// @Summary Score an indicator snapshot
// @Description Runs the risk calculator without persisting anything
// @Tags Risk
// @Accept json
// @Produce json
// @Param payload body dto.ScoreRequest true "Indicators"
// @Success 200 {object} response.Envelope
// @Router /risk/score [post]
func (h *RiskHandler) Score(c *gin.Context) {
	var req dto.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid indicators payload"))
		return
	}
	response.JSON(c, http.StatusOK, h.service.Score(req.Indicators()), nil)
}

// Assess godoc
// @Summary Assess a student
// @Description Loads indicators, scores them and upserts the student's open risk record
// @Tags Risk
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.AssessRequest false "Optional class"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/risk/assess [post]
func (h *RiskHandler) Assess(c *gin.Context) {
	var req dto.AssessRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assess payload"))
			return
		}
	}
	studentID := strings.TrimSpace(c.Param("id"))
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student id is required"))
		return
	}
	assessment, err := h.service.Assess(c.Request.Context(), middleware.Principal(c), studentID, strings.TrimSpace(req.ClassID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// List godoc
// @Summary List risk records
// @Tags Risk
// @Produce json
// @Param classId query string false "Class ID"
// @Param studentId query string false "Student ID"
// @Param level query string false "Comma separated levels"
// @Param status query string false "open, monitoring or resolved"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /risk-records [get]
func (h *RiskHandler) List(c *gin.Context) {
	filter := models.RiskRecordFilter{
		ClassID:   strings.TrimSpace(c.Query("classId")),
		StudentID: strings.TrimSpace(c.Query("studentId")),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
	}
	for _, level := range splitList(c.QueryArray("level")) {
		filter.Levels = append(filter.Levels, models.RiskLevel(strings.ToLower(level)))
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.RiskRecordStatus(strings.ToLower(raw))
		filter.Status = &status
	}

	records, pagination, cacheHit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, records, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a risk record
// @Tags Risk
// @Produce json
// @Param id path string true "Risk record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /risk-records/{id} [get]
func (h *RiskHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UpdateStatus godoc
// @Summary Change the follow-up status of a risk record
// @Tags Risk
// @Accept json
// @Produce json
// @Param id path string true "Risk record ID"
// @Param payload body dto.UpdateRiskStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /risk-records/{id}/status [patch]
func (h *RiskHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateRiskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload"))
		return
	}
	record, err := h.service.UpdateStatus(c.Request.Context(), middleware.Principal(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ReassessClass godoc
// @Summary Reassess every active student of a class
// @Tags Risk
// @Produce json
// @Param classId path string true "Class ID"
// @Success 202 {object} response.Envelope
// @Router /classes/{classId}/risk/reassess [post]
func (h *RiskHandler) ReassessClass(c *gin.Context) {
	job, err := h.service.ReassessClass(c.Request.Context(), middleware.Principal(c), strings.TrimSpace(c.Param("classId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Export godoc
// @Summary Export a risk record with its intervention timeline
// @Tags Risk
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Risk record ID"
// @Param format query string false "pdf (default) or csv"
// @Success 200 {file} file
// @Router /risk-records/{id}/export [get]
func (h *RiskHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.ExportRiskRecord(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
