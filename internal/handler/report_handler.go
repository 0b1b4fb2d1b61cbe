package handler

import (
	"fmt"
	"net/http"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler serves exam results to admins.
type ReportHandler struct {
	reports Reports
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports Reports) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ListResults godoc
// GET /api/admin/exams/:exam_id/results
func (h *ReportHandler) ListResults(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	rows, pagination, err := h.reports.ListResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}
	if rows == nil {
		rows = []model.ExamResultRow{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": rows}, pagination)
}

// ExportResults godoc
// GET /api/admin/exams/:exam_id/results/export
// Streams every attempt of the exam as an .xlsx workbook.
func (h *ReportHandler) ExportResults(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	data, filename, err := h.reports.ExportResultsXLSX(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
