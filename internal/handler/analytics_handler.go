package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-risk-api/internal/middleware"
	"github.com/noah-isme/student-risk-api/internal/models"
	appErrors "github.com/noah-isme/student-risk-api/pkg/errors"
	"github.com/noah-isme/student-risk-api/pkg/response"
)

type analyticsService interface {
	AttendanceByStudent(ctx context.Context, classID string) ([]models.StudentAttendanceRate, bool, error)
	CompareClasses(ctx context.Context, classIDs []string) ([]models.ClassComparison, bool, error)
	EvasionTrend(ctx context.Context, classID string, months int) (*models.EvasionTrend, bool, error)
	SystemMetrics() models.AnalyticsSystemMetrics
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Attendance godoc
// @Summary Attendance percentage per student of a class
// @Tags Analytics
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/classes/{classId}/attendance [get]
func (h *AnalyticsHandler) Attendance(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	rates, cacheHit, err := h.analytics.AttendanceByStudent(c.Request.Context(), strings.TrimSpace(c.Param("classId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, rates)
}

// Compare godoc
// @Summary Compare classes
// @Description Attendance, grade average, evasion rate and at-risk count per class
// @Tags Analytics
// @Produce json
// @Param classIds query string true "Comma separated class IDs"
// @Success 200 {object} response.Envelope
// @Router /analytics/classes/compare [get]
func (h *AnalyticsHandler) Compare(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	ids := splitList(c.QueryArray("classIds"))
	if len(ids) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classIds is required"))
		return
	}
	start := time.Now()
	comparison, cacheHit, err := h.analytics.CompareClasses(c.Request.Context(), ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, comparison)
}

// EvasionTrend godoc
// @Summary Monthly evasion trend
// @Tags Analytics
// @Produce json
// @Param classId query string false "Class ID, all classes when empty"
// @Param months query int false "Months of history"
// @Success 200 {object} response.Envelope
// @Router /analytics/evasions/trend [get]
func (h *AnalyticsHandler) EvasionTrend(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	months := 0
	if raw := strings.TrimSpace(c.Query("months")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "months must be a number"))
			return
		}
		months = parsed
	}
	start := time.Now()
	trend, cacheHit, err := h.analytics.EvasionTrend(c.Request.Context(), strings.TrimSpace(c.Query("classId")), months)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, start, cacheHit, trend)
}

// System returns instrumentation metrics snapshots.
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	h.respond(c, time.Now(), false, h.analytics.SystemMetrics())
}

func (h *AnalyticsHandler) respond(c *gin.Context, start time.Time, cacheHit bool, data interface{}) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}
