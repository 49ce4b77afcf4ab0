package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ams-api/internal/dto"
	"github.com/noah-isme/ams-api/internal/middleware"
	"github.com/noah-isme/ams-api/internal/models"
	"github.com/noah-isme/ams-api/pkg/response"
)

type reportService interface {
	StatsSummary(ctx context.Context, date string) (*dto.StatsSummaryResponse, bool, error)
	TopRegulars(ctx context.Context) (*dto.TopRegularsResponse, bool, error)
	Leaderboard(ctx context.Context, date string) (*dto.LeaderboardResponse, bool, error)
	Heatmap(ctx context.Context, month string) (*dto.HeatmapResponse, bool, error)
	FacultySummary(ctx context.Context) (*dto.FacultySummaryResponse, bool, error)
	FacultyReports(ctx context.Context) (*dto.FacultyReportsResponse, bool, error)
	AttendanceReports(ctx context.Context, actor *models.JWTClaims) (*dto.AttendanceReportsResponse, bool, error)
	SystemAudit(ctx context.Context, search string, actor *models.JWTClaims) (*dto.SystemAuditResponse, error)
	FacultyPortal(ctx context.Context, actor *models.JWTClaims) (*dto.FacultyPortalResponse, bool, error)
}

// ReportHandler exposes dashboard reports. Cached responses say so in meta.cache_hit.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func (h *ReportHandler) respond(c *gin.Context, start time.Time, data interface{}, hit bool, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data, nil, middleware.ReportMeta(c, hit, start))
}

// Summary godoc
// @Summary Daily attendance totals
// @Tags Reports
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Router /reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	start := time.Now()
	data, hit, err := h.reports.StatsSummary(c.Request.Context(), c.Query("date"))
	h.respond(c, start, data, hit, err)
}

// TopRegulars godoc
// @Summary Most regular students
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/regulars [get]
func (h *ReportHandler) TopRegulars(c *gin.Context) {
	start := time.Now()
	data, hit, err := h.reports.TopRegulars(c.Request.Context())
	h.respond(c, start, data, hit, err)
}

// Leaderboard godoc
// @Summary Attendance leaderboard
// @Tags Reports
// @Produce json
// @Param date query string false "Pie date, defaults to today"
// @Success 200 {object} response.Envelope
// @Router /reports/leaderboard [get]
func (h *ReportHandler) Leaderboard(c *gin.Context) {
	start := time.Now()
	data, hit, err := h.reports.Leaderboard(c.Request.Context(), c.Query("date"))
	h.respond(c, start, data, hit, err)
}

// Heatmap godoc
// @Summary Monthly attendance heatmap
// @Tags Reports
// @Produce json
// @Param month query string false "YYYY-MM, defaults to the current month"
// @Success 200 {object} response.Envelope
// @Router /reports/heatmap [get]
func (h *ReportHandler) Heatmap(c *gin.Context) {
	start := time.Now()
	data, hit, err := h.reports.Heatmap(c.Request.Context(), c.Query("month"))
	h.respond(c, start, data, hit, err)
}

// FacultySummary godoc
// @Summary Faculty attendance summary
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/faculty/summary [get]
func (h *ReportHandler) FacultySummary(c *gin.Context) {
	start := time.Now()
	data, hit, err := h.reports.FacultySummary(c.Request.Context())
	h.respond(c, start, data, hit, err)
}

// FacultyReports godoc
// @Summary Faculty performance report
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/faculty [get]
func (h *ReportHandler) FacultyReports(c *gin.Context) {
	start := time.Now()
	data, hit, err := h.reports.FacultyReports(c.Request.Context())
	h.respond(c, start, data, hit, err)
}

// AttendanceReports godoc
// @Summary Per-student attendance and project health
// @Description Students only see their own row
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/attendance [get]
func (h *ReportHandler) AttendanceReports(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	start := time.Now()
	data, hit, err := h.reports.AttendanceReports(c.Request.Context(), claims)
	h.respond(c, start, data, hit, err)
}

// SystemAudit godoc
// @Summary User presence audit
// @Tags Reports
// @Produce json
// @Param search query string false "Name or email"
// @Success 200 {object} response.Envelope
// @Router /reports/audit [get]
func (h *ReportHandler) SystemAudit(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	start := time.Now()
	data, err := h.reports.SystemAudit(c.Request.Context(), c.Query("search"), claims)
	h.respond(c, start, data, false, err)
}

// FacultyPortal godoc
// @Summary The caller's own sessions
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/portal [get]
func (h *ReportHandler) FacultyPortal(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	start := time.Now()
	data, hit, err := h.reports.FacultyPortal(c.Request.Context(), claims)
	h.respond(c, start, data, hit, err)
}
