package handler

import (
	"io"
	"net/http"

	"github.com/examprep/examprep-backend/internal/middleware"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/gin-gonic/gin"
)

const (
	signatureHeader = "x-paystack-signature"
	maxWebhookBody  = 64 << 10
)

// EnrollmentHandler handles enrollment and the payment provider webhook.
type EnrollmentHandler struct {
	enrollments Enrollments
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(enrollments Enrollments) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// POST /api/exams/:exam_id/enroll
// Free exams complete immediately; paid exams return a PENDING enrollment
// carrying the payment reference to hand to the provider.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWith(c, err)
		return
	}

	status := http.StatusCreated
	if enrollment.Status == model.EnrollmentPending {
		status = http.StatusAccepted
	}
	response.Success(c, status, gin.H{"enrollment": enrollment})
}

// ListMyEnrollments godoc
// GET /api/enrollments
func (h *EnrollmentHandler) ListMyEnrollments(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	enrollments, err := h.enrollments.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		failWith(c, err)
		return
	}
	if enrollments == nil {
		enrollments = []model.Enrollment{}
	}

	response.Success(c, http.StatusOK, gin.H{"enrollments": enrollments})
}

// PaymentWebhook godoc
// POST /api/payments/webhook
// Verifies the HMAC signature over the raw body before touching any enrollment.
func (h *EnrollmentHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.enrollments.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader)); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
