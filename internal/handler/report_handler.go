package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/service"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
	"github.com/shulehub/discipline-api/pkg/response"
	"github.com/shulehub/discipline-api/pkg/storage"
)

var evidenceExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
	".mp3":  true,
	".mp4":  true,
}

type reportService interface {
	List(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.ReportDetail, error)
	Create(ctx context.Context, claims *models.JWTClaims, req service.CreateReportRequest, meta models.LoginRequest) (*models.ReportDetail, error)
	Approve(ctx context.Context, claims *models.JWTClaims, id string, req service.ReviewRequest, meta models.LoginRequest) (*service.ReviewOutcome, error)
	Reject(ctx context.Context, claims *models.JWTClaims, id string, req service.ReviewRequest, meta models.LoginRequest) (*service.ReviewOutcome, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req service.UpdateReportRequest) (*models.ReportDetail, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string, meta models.LoginRequest) error
}

type reportExporter interface {
	Register(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter, format service.ReportFormat) (*service.ExportFile, error)
}

type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// ReportHandler exposes the discipline report lifecycle endpoints.
type ReportHandler struct {
	reports    reportService
	exports    reportExporter
	dashboards dashboardInvalidator
	metrics    *service.MetricsService
	uploads    *storage.LocalStorage
}

// NewReportHandler constructs ReportHandler. Dashboards and metrics may be
// nil in tests.
func NewReportHandler(reports reportService, exports reportExporter, dashboards dashboardInvalidator, metrics *service.MetricsService, uploads *storage.LocalStorage) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports, dashboards: dashboards, metrics: metrics, uploads: uploads}
}

func (h *ReportHandler) parseFilter(c *gin.Context) (models.ReportFilter, error) {
	filter := models.ReportFilter{
		StudentID: c.Query("student_id"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if raw := c.Query("status"); raw != "" {
		status := models.ReportStatus(strings.ToLower(raw))
		switch status {
		case models.ReportPending, models.ReportApproved, models.ReportRejected:
			filter.Status = &status
		default:
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
	}
	if raw := c.Query("category"); raw != "" {
		category := models.ReportCategory(strings.ToLower(raw))
		if !models.ValidCategory(category) {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", raw))
		}
		filter.Category = &category
	}
	return filter, nil
}

// List godoc
// @Summary List discipline reports visible to the acting user
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status (pending, approved, rejected)"
// @Param category query string false "Filter by category"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter, err := h.parseFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	reports, pagination, err := h.reports.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Get godoc
// @Summary Fetch a single discipline report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	report, err := h.reports.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Create godoc
// @Summary File a discipline report against a student
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateReportRequest true "Report"
// @Success 201 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	report, err := h.reports.Create(c.Request.Context(), claims, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.CountReportFiled(string(report.Category))
	}
	h.invalidateDashboards(c)
	response.Created(c, report)
}

// UploadEvidence godoc
// @Summary Upload an evidence attachment
// @Description Stores the file and returns a reference to submit with a report.
// @Tags Reports
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param evidence formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Router /reports/evidence [post]
func (h *ReportHandler) UploadEvidence(c *gin.Context) {
	header, err := c.FormFile("evidence")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence file is required"))
		return
	}
	if header.Size > maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence exceeds the 5MB limit"))
		return
	}
	if !evidenceExts[strings.ToLower(filepath.Ext(header.Filename))] {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported evidence file type"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	ref, err := h.uploads.SaveStream("evidence", header.Filename, file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to store evidence"))
		return
	}
	response.Created(c, gin.H{"evidence": ref})
}

// Approve godoc
// @Summary Approve a pending report
// @Description Reports already reviewed are acknowledged without change.
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body service.ReviewRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/approve [put]
func (h *ReportHandler) Approve(c *gin.Context) {
	h.review(c, models.ReportApproved)
}

// Reject godoc
// @Summary Reject a pending report
// @Description Reports already reviewed are acknowledged without change.
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body service.ReviewRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/reject [put]
func (h *ReportHandler) Reject(c *gin.Context) {
	h.review(c, models.ReportRejected)
}

func (h *ReportHandler) review(c *gin.Context, status models.ReportStatus) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	var (
		outcome *service.ReviewOutcome
		err     error
	)
	if status == models.ReportApproved {
		outcome, err = h.reports.Approve(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	} else {
		outcome, err = h.reports.Reject(c.Request.Context(), claims, c.Param("id"), req, requestMeta(c))
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Processed {
		if h.metrics != nil {
			h.metrics.CountReportReviewed(string(status))
		}
		h.invalidateDashboards(c)
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Update godoc
// @Summary Edit a report's descriptive fields
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body service.UpdateReportRequest true "Report fields"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [put]
func (h *ReportHandler) Update(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	report, err := h.reports.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Delete godoc
// @Summary Delete a discipline report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 204
// @Router /reports/{id} [delete]
func (h *ReportHandler) Delete(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.reports.Delete(c.Request.Context(), claims, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboards(c)
	response.NoContent(c)
}

// Export godoc
// @Summary Download the discipline register as CSV or PDF (admin only)
// @Tags Reports
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "csv or pdf (default csv)"
// @Param status query string false "Filter by status"
// @Param category query string false "Filter by category"
// @Success 200 {file} binary
// @Router /reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter, err := h.parseFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := service.ReportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	file, err := h.exports.Register(c.Request.Context(), claims, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

func (h *ReportHandler) invalidateDashboards(c *gin.Context) {
	if h.dashboards != nil {
		h.dashboards.Invalidate(c.Request.Context())
	}
}
