package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/middleware"
	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/service"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
)

type reportServiceMock struct {
	listResp    []models.ReportDetail
	listErr     error
	lastFilter  models.ReportFilter
	getResp     *models.ReportDetail
	getErr      error
	createResp  *models.ReportDetail
	createErr   error
	reviewResp  *service.ReviewOutcome
	reviewErr   error
	updateResp  *models.ReportDetail
	updateErr   error
	deleteErr   error
	lastReview  service.ReviewRequest
	approveHits int
	rejectHits  int
}

func (m *reportServiceMock) List(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, nil, m.listErr
	}
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *reportServiceMock) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.ReportDetail, error) {
	return m.getResp, m.getErr
}

func (m *reportServiceMock) Create(ctx context.Context, claims *models.JWTClaims, req service.CreateReportRequest, meta models.LoginRequest) (*models.ReportDetail, error) {
	return m.createResp, m.createErr
}

func (m *reportServiceMock) Approve(ctx context.Context, claims *models.JWTClaims, id string, req service.ReviewRequest, meta models.LoginRequest) (*service.ReviewOutcome, error) {
	m.approveHits++
	m.lastReview = req
	return m.reviewResp, m.reviewErr
}

func (m *reportServiceMock) Reject(ctx context.Context, claims *models.JWTClaims, id string, req service.ReviewRequest, meta models.LoginRequest) (*service.ReviewOutcome, error) {
	m.rejectHits++
	m.lastReview = req
	return m.reviewResp, m.reviewErr
}

func (m *reportServiceMock) Update(ctx context.Context, claims *models.JWTClaims, id string, req service.UpdateReportRequest) (*models.ReportDetail, error) {
	return m.updateResp, m.updateErr
}

func (m *reportServiceMock) Delete(ctx context.Context, claims *models.JWTClaims, id string, meta models.LoginRequest) error {
	return m.deleteErr
}

type exporterMock struct {
	file       *service.ExportFile
	err        error
	lastFormat service.ReportFormat
}

func (m *exporterMock) Register(ctx context.Context, claims *models.JWTClaims, filter models.ReportFilter, format service.ReportFormat) (*service.ExportFile, error) {
	m.lastFormat = format
	return m.file, m.err
}

type invalidatorMock struct {
	calls int
}

func (m *invalidatorMock) Invalidate(ctx context.Context) {
	m.calls++
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withClaims(c *gin.Context, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
}

func reportFixture() *models.ReportDetail {
	return &models.ReportDetail{
		DisciplineReport: models.DisciplineReport{
			ID:       "rep-1",
			Category: models.CategoryLateness,
			Status:   models.ReportPending,
		},
		StudentName:   "Asha Mwangi",
		StudentStream: "Form 4 East",
	}
}

func TestReportHandlerListFiltersStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{listResp: []models.ReportDetail{*reportFixture()}}
	handler := NewReportHandler(mockSvc, nil, nil, nil, nil)

	c, w := newGinContext(http.MethodGet, "/reports?status=approved&category=lateness", nil)
	withClaims(c, models.RoleAdmin)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.Status)
	assert.Equal(t, models.ReportApproved, *mockSvc.lastFilter.Status)
	require.NotNil(t, mockSvc.lastFilter.Category)
	assert.Equal(t, models.CategoryLateness, *mockSvc.lastFilter.Category)
}

func TestReportHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{}, nil, nil, nil, nil)

	c, w := newGinContext(http.MethodGet, "/reports?status=archived", nil)
	withClaims(c, models.RoleAdmin)

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{}, nil, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/reports", []byte(`{"student_id":`))
	withClaims(c, models.RoleTeacher)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerCreateInvalidatesDashboards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{createResp: reportFixture()}
	invalidator := &invalidatorMock{}
	handler := NewReportHandler(mockSvc, nil, invalidator, nil, nil)

	payload, _ := json.Marshal(service.CreateReportRequest{
		StudentID:   "stu-1",
		Category:    models.CategoryLateness,
		Description: "arrived forty minutes late",
	})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	withClaims(c, models.RoleTeacher)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, invalidator.calls)
}

func TestReportHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	approved := reportFixture()
	approved.Status = models.ReportApproved
	mockSvc := &reportServiceMock{reviewResp: &service.ReviewOutcome{Report: approved, Processed: true}}
	invalidator := &invalidatorMock{}
	handler := NewReportHandler(mockSvc, nil, invalidator, nil, nil)

	payload, _ := json.Marshal(service.ReviewRequest{Notes: "verified with the class register"})
	c, w := newGinContext(http.MethodPut, "/reports/rep-1/approve", payload)
	c.Params = gin.Params{{Key: "id", Value: "rep-1"}}
	withClaims(c, models.RoleAdmin)

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mockSvc.approveHits)
	assert.Equal(t, "verified with the class register", mockSvc.lastReview.Notes)
	assert.Equal(t, 1, invalidator.calls)

	var envelope struct {
		Data service.ReviewOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Processed)
}

func TestReportHandlerApproveAlreadyProcessed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rejected := reportFixture()
	rejected.Status = models.ReportRejected
	mockSvc := &reportServiceMock{reviewResp: &service.ReviewOutcome{
		Report:    rejected,
		Processed: false,
		Message:   "report was already processed as rejected",
	}}
	invalidator := &invalidatorMock{}
	handler := NewReportHandler(mockSvc, nil, invalidator, nil, nil)

	c, w := newGinContext(http.MethodPut, "/reports/rep-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "rep-1"}}
	withClaims(c, models.RoleAdmin)

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.ReviewOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Processed)
	assert.Contains(t, envelope.Data.Message, "already processed")
	assert.Equal(t, 0, invalidator.calls)
}

func TestReportHandlerRejectServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{reviewErr: appErrors.ErrForbidden}
	handler := NewReportHandler(mockSvc, nil, nil, nil, nil)

	c, w := newGinContext(http.MethodPut, "/reports/rep-1/reject", nil)
	c.Params = gin.Params{{Key: "id", Value: "rep-1"}}
	withClaims(c, models.RoleTeacher)

	handler.Reject(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, mockSvc.rejectHits)
}

func TestReportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &exporterMock{file: &service.ExportFile{
		Filename:    "discipline-register-20260901-100000.csv",
		ContentType: "text/csv",
		Payload:     []byte("Date,Student\n"),
	}}
	handler := NewReportHandler(&reportServiceMock{}, exporter, nil, nil, nil)

	c, w := newGinContext(http.MethodGet, "/reports/export?format=csv", nil)
	withClaims(c, models.RoleAdmin)

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.FormatCSV, exporter.lastFormat)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "discipline-register")
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
}

func TestReportHandlerMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{}, nil, nil, nil, nil)

	c, w := newGinContext(http.MethodGet, "/reports", nil)

	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
