package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulehub/discipline-api/internal/models"
)

type dashboardServiceMock struct {
	adminResp   *models.AdminDashboard
	adminErr    error
	teacherResp *models.TeacherDashboard
	teacherErr  error
	parentResp  *models.ParentDashboard
	parentErr   error
	adminHits   int
	teacherHits int
	parentHits  int
	lastUserID  string
}

func (m *dashboardServiceMock) Admin(ctx context.Context) (*models.AdminDashboard, error) {
	m.adminHits++
	return m.adminResp, m.adminErr
}

func (m *dashboardServiceMock) Teacher(ctx context.Context, userID string) (*models.TeacherDashboard, error) {
	m.teacherHits++
	m.lastUserID = userID
	return m.teacherResp, m.teacherErr
}

func (m *dashboardServiceMock) Parent(ctx context.Context, userID string) (*models.ParentDashboard, error) {
	m.parentHits++
	m.lastUserID = userID
	return m.parentResp, m.parentErr
}

func TestDashboardHandlerAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &dashboardServiceMock{adminResp: &models.AdminDashboard{TotalReports: 12}}
	handler := NewDashboardHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/dashboard", nil)
	withClaims(c, models.RoleAdmin)

	handler.Show(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mockSvc.adminHits)
	assert.Equal(t, 0, mockSvc.teacherHits)
}

func TestDashboardHandlerTeacherScopedToActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &dashboardServiceMock{teacherResp: &models.TeacherDashboard{Stream: "Form 4 East"}}
	handler := NewDashboardHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/dashboard", nil)
	withClaims(c, models.RoleTeacher)

	handler.Show(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mockSvc.teacherHits)
	assert.Equal(t, "user-1", mockSvc.lastUserID)
}

func TestDashboardHandlerParent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &dashboardServiceMock{parentResp: &models.ParentDashboard{ApprovedReports: 2}}
	handler := NewDashboardHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/dashboard", nil)
	withClaims(c, models.RoleParent)

	handler.Show(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mockSvc.parentHits)
}

func TestDashboardHandlerNoClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&dashboardServiceMock{})

	c, w := newGinContext(http.MethodGet, "/dashboard", nil)

	handler.Show(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
