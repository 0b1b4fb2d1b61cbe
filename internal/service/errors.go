package service

import "errors"

// Domain errors. Handlers map these to response codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenRevoked       = errors.New("token has been revoked")

	ErrExamNotFound      = errors.New("exam not found")
	ErrExamNotDraft      = errors.New("exam status is not draft")
	ErrExamNotPublished  = errors.New("exam status is not published")
	ErrExamNotAvailable  = errors.New("exam is outside its availability window")
	ErrInvalidDuration   = errors.New("exam duration must be positive")
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrQuestionOrder     = errors.New("question order is not contiguous")
	ErrInvalidQuestion   = errors.New("question is not gradable")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrReorderMismatch   = errors.New("reorder must list every question exactly once")
	ErrPreviewNotAllowed = errors.New("questions are hidden until an attempt is started")
	ErrImportFile        = errors.New("question sheet could not be read")
	ErrImportRejected    = errors.New("question sheet has invalid rows")

	ErrNotEnrolled       = errors.New("enrollment is not completed")
	ErrAlreadyEnrolled   = errors.New("already enrolled")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrInvalidWebhook    = errors.New("malformed webhook payload")
	ErrUnknownReference  = errors.New("unknown payment reference")
	ErrPaymentMismatch   = errors.New("paid amount does not match enrollment")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAttemptCompleted  = errors.New("attempt is already completed")
	ErrAttemptInProgress = errors.New("attempt is not completed yet")
	ErrStaleWrite        = errors.New("a newer save was already recorded")
	ErrMaxAttempts       = errors.New("maximum attempts reached")
	ErrNothingToReview   = errors.New("award targets no manually graded question")
)
