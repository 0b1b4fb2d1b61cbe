package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/examprep/examprep-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

const maxImportSize = 5 << 20

// QuestionHandler handles question management endpoints.
type QuestionHandler struct {
	questions Questions
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions Questions) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

// ListQuestions godoc
// GET /api/admin/exams/:exam_id/questions
// Lists all questions for an exam, answer keys included.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	questions, err := h.questions.ListByExam(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AddQuestion godoc
// POST /api/admin/exams/:exam_id/questions
// Appends a question to a draft exam.
func (h *QuestionHandler) AddQuestion(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questions.Create(c.Request.Context(), examID, &req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// UpdateQuestion godoc
// PUT /api/admin/exams/:exam_id/questions/:question_id
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}
	questionID, ok := paramUUID(c, "question_id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questions.Update(c.Request.Context(), examID, questionID, &req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// DeleteQuestion godoc
// DELETE /api/admin/exams/:exam_id/questions/:question_id
// Removes a question and renumbers the rest.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}
	questionID, ok := paramUUID(c, "question_id")
	if !ok {
		return
	}

	if err := h.questions.Delete(c.Request.Context(), examID, questionID); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ReorderQuestions godoc
// PUT /api/admin/exams/:exam_id/question-order
// Renumbers every question 1..n in the given order.
func (h *QuestionHandler) ReorderQuestions(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.ReorderQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.questions.Reorder(c.Request.Context(), examID, req.QuestionIDs)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ImportQuestions godoc
// POST /api/admin/exams/:exam_id/question-import
// Imports questions from an uploaded .xlsx sheet. Nothing is stored unless every row is valid.
func (h *QuestionHandler) ImportQuestions(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".xlsx") {
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		return
	}
	if file.Size > maxImportSize {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	f, err := file.Open()
	if err != nil {
		failWith(c, err)
		return
	}
	defer f.Close()

	report, err := h.questions.ImportXLSX(c.Request.Context(), examID, f)
	if errors.Is(err, service.ErrImportRejected) {
		fields := make(map[string]string, len(report.Errors))
		for _, re := range report.Errors {
			fields["row "+strconv.Itoa(re.Row)] = re.Error
		}
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, fields)
		return
	}
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"report": report})
}
