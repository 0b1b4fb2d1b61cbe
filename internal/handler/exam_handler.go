package handler

import (
	"net/http"

	"github.com/examprep/examprep-backend/internal/middleware"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/examprep/examprep-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// ExamHandler handles the student catalog and admin exam management.
type ExamHandler struct {
	exams Exams
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams Exams) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// ListCatalog godoc
// GET /api/exams
// Lists published exams.
func (h *ExamHandler) ListCatalog(c *gin.Context) {
	page, perPage := pageParams(c)

	exams, pagination, err := h.exams.ListPublished(c.Request.Context(), page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// GetExam godoc
// GET /api/exams/:exam_id
// Returns exam metadata including duration. Drafts are visible to admins only.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	get := h.exams.GetForStudent
	if middleware.IsAdmin(c) {
		get = h.exams.GetByID
	}

	exam, err := get(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// GetQuestions godoc
// GET /api/exams/:exam_id/questions
// Returns the ordered student-facing questions without answer keys.
func (h *ExamHandler) GetQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	questions, err := h.exams.StudentQuestions(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	if questions == nil {
		questions = []model.QuestionForStudent{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ListExams godoc
// GET /api/admin/exams
// Lists every exam, optionally filtered by ?status=.
func (h *ExamHandler) ListExams(c *gin.Context) {
	page, perPage := pageParams(c)

	var status *model.ExamStatus
	if s := c.Query("status"); s != "" {
		st := model.ExamStatus(s)
		switch st {
		case model.ExamStatusDraft, model.ExamStatusPublished, model.ExamStatusArchived:
			status = &st
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"status": "status must be one of draft, published, archived"})
			return
		}
	}

	exams, pagination, err := h.exams.List(c.Request.Context(), status, page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// CreateExam godoc
// POST /api/admin/exams
// Creates a new draft exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PATCH /api/admin/exams/:exam_id
// Updates a draft exam.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.exams.Update(c.Request.Context(), examID, &req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/admin/exams/:exam_id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	if err := h.exams.Delete(c.Request.Context(), examID); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PublishExam godoc
// POST /api/admin/exams/:exam_id/publish
// Validates the question set, caches the student paper and publishes the exam.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.Publish(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ArchiveExam godoc
// POST /api/admin/exams/:exam_id/archive
func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.Archive(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}
