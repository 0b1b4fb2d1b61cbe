package handler

import (
	"net/http"
	"strconv"

	"github.com/examprep/examprep-backend/internal/response"
	"github.com/gin-gonic/gin"
)

// DashboardHandler handles admin dashboard endpoints.
type DashboardHandler struct {
	dashboard Dashboard
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboard Dashboard) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GetDashboardData godoc
// GET /api/admin/dashboard?limit=5
// Returns summary cards, exam status distribution, upcoming exams, and recent completions.
func (h *DashboardHandler) GetDashboardData(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	data, err := h.dashboard.GetDashboardData(c.Request.Context(), limit)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, data)
}
