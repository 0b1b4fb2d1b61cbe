package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type errMapping struct {
	status int
	code   response.ErrCode
}

// domainErrors maps service sentinels to their HTTP representation.
var domainErrors = []struct {
	err error
	errMapping
}{
	{service.ErrInvalidCredentials, errMapping{http.StatusUnauthorized, response.ErrInvalidCredentials}},
	{service.ErrEmailTaken, errMapping{http.StatusConflict, response.ErrEmailTaken}},
	{service.ErrTokenRevoked, errMapping{http.StatusUnauthorized, response.ErrTokenRevoked}},

	{service.ErrExamNotFound, errMapping{http.StatusNotFound, response.ErrNotFound}},
	{service.ErrQuestionNotFound, errMapping{http.StatusNotFound, response.ErrNotFound}},
	{service.ErrAttemptNotFound, errMapping{http.StatusNotFound, response.ErrNotFound}},
	{service.ErrUnknownReference, errMapping{http.StatusNotFound, response.ErrNotFound}},
	{repository.ErrNotFound, errMapping{http.StatusNotFound, response.ErrNotFound}},

	{service.ErrExamNotDraft, errMapping{http.StatusConflict, response.ErrExamNotDraft}},
	{service.ErrExamNotPublished, errMapping{http.StatusConflict, response.ErrExamNotPublished}},
	{service.ErrExamNotAvailable, errMapping{http.StatusForbidden, response.ErrExamNotAvailable}},
	{service.ErrInvalidDuration, errMapping{http.StatusBadRequest, response.ErrInvalidDuration}},
	{service.ErrNoQuestions, errMapping{http.StatusBadRequest, response.ErrNoQuestions}},
	{service.ErrQuestionOrder, errMapping{http.StatusBadRequest, response.ErrQuestionOrder}},
	{service.ErrInvalidQuestion, errMapping{http.StatusBadRequest, response.ErrValidation}},
	{service.ErrReorderMismatch, errMapping{http.StatusBadRequest, response.ErrValidation}},
	{service.ErrPreviewNotAllowed, errMapping{http.StatusForbidden, response.ErrActionForbidden}},
	{service.ErrImportFile, errMapping{http.StatusBadRequest, response.ErrUnsupportedFile}},
	{service.ErrImportRejected, errMapping{http.StatusUnprocessableEntity, response.ErrValidation}},

	{service.ErrNotEnrolled, errMapping{http.StatusForbidden, response.ErrNotEnrolled}},
	{service.ErrAlreadyEnrolled, errMapping{http.StatusConflict, response.ErrAlreadyEnrolled}},
	{service.ErrInvalidSignature, errMapping{http.StatusUnauthorized, response.ErrInvalidSignature}},
	{service.ErrInvalidWebhook, errMapping{http.StatusBadRequest, response.ErrInvalidPayload}},
	{service.ErrPaymentMismatch, errMapping{http.StatusConflict, response.ErrConflict}},

	{service.ErrAttemptCompleted, errMapping{http.StatusConflict, response.ErrAttemptCompleted}},
	{service.ErrAttemptInProgress, errMapping{http.StatusConflict, response.ErrAttemptInProgress}},
	{service.ErrStaleWrite, errMapping{http.StatusConflict, response.ErrStaleWrite}},
	{service.ErrMaxAttempts, errMapping{http.StatusForbidden, response.ErrMaxAttempts}},
	{service.ErrNothingToReview, errMapping{http.StatusBadRequest, response.ErrValidation}},
}

// statusFor resolves err to a status and code. Unknown errors are internal.
func statusFor(err error) (int, response.ErrCode) {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.status, d.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the error response for a service error. Internal errors
// are attached to the gin context so the request logger records them.
func failWith(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	return page, perPage
}
