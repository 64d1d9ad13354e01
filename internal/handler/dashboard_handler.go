package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shulehub/discipline-api/internal/models"
	appErrors "github.com/shulehub/discipline-api/pkg/errors"
	"github.com/shulehub/discipline-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*models.AdminDashboard, error)
	Teacher(ctx context.Context, userID string) (*models.TeacherDashboard, error)
	Parent(ctx context.Context, userID string) (*models.ParentDashboard, error)
}

// DashboardHandler serves the role-specific dashboard views.
type DashboardHandler struct {
	dashboards dashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboards dashboardService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards}
}

// Show godoc
// @Summary Dashboard for the acting user's role
// @Description Admins get school-wide statistics, teachers their stream,
// @Description parents their children's approved reports.
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Show(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	switch {
	case claims.IsAdmin():
		data, err := h.dashboards.Admin(ctx)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, data, nil)
	case claims.Role == models.RoleTeacher:
		data, err := h.dashboards.Teacher(ctx, claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, data, nil)
	case claims.Role == models.RoleParent:
		data, err := h.dashboards.Parent(ctx, claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, data, nil)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role has no dashboard"))
	}
}
