package handler

import (
	"net/http"

	"github.com/examprep/examprep-backend/internal/middleware"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/examprep/examprep-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// AttemptHandler handles the attempt lifecycle endpoints used by the exam player.
type AttemptHandler struct {
	attempts Attempts
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts Attempts) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// StartAttempt godoc
// POST /api/exams/:exam_id/attempts
// Starts an attempt, or returns the caller's attempt that is still open.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.attempts.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// ListMyAttempts godoc
// GET /api/exams/:exam_id/attempts
// Lists the caller's attempts for an exam, newest first.
func (h *AttemptHandler) ListMyAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	attempts, err := h.attempts.ListMine(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetAttempt godoc
// GET /api/exams/attempts/:attempt_id
// Returns the attempt with startedAt, timeTaken and the server's remainingSeconds.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	view, err := h.attempts.Get(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// SaveProgress godoc
// PATCH /api/exams/attempts/:attempt_id
// Replaces the stored answers and advances timeTaken.
func (h *AttemptHandler) SaveProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attempts.SaveProgress(c.Request.Context(), claims.UserID, attemptID, req.Answers, *req.TimeTaken, req.Version)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// SubmitAttempt godoc
// POST /api/exams/attempts/:attempt_id
// Scores and completes the attempt. Submitting a completed attempt returns it unchanged.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	view, err := h.attempts.Finalize(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": view})
}

// GetResult godoc
// GET /api/exams/attempts/:attempt_id/result
// Returns the per-question breakdown of a completed attempt.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.attempts.Result(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetAttemptResultAdmin godoc
// GET /api/admin/attempts/:attempt_id/result
func (h *AttemptHandler) GetAttemptResultAdmin(c *gin.Context) {
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.attempts.AdminResult(c.Request.Context(), attemptID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ReviewAttempt godoc
// POST /api/admin/attempts/:attempt_id/review
// Awards marks to manually graded questions and rescores the attempt.
func (h *AttemptHandler) ReviewAttempt(c *gin.Context) {
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attempts.Review(c.Request.Context(), attemptID, req.Awards)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}
