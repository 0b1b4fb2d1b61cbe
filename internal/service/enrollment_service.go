package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/metrics"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Payment webhook event names.
const (
	WebhookChargeSuccess   = "charge.success"
	WebhookChargeFailed    = "charge.failed"
	WebhookRefundProcessed = "refund.processed"
)

// EnrollmentService grants exam access, completing free enrollments at once and
// paid ones when the payment provider confirms the charge.
type EnrollmentService struct {
	secret      string
	exams       ExamStore
	enrollments EnrollmentStore
	events      EventPublisher
	log         zerolog.Logger
	now         func() time.Time
}

// NewEnrollmentService creates a new EnrollmentService.
func NewEnrollmentService(cfg *config.Config, exams ExamStore, enrollments EnrollmentStore, events EventPublisher, log zerolog.Logger) *EnrollmentService {
	return &EnrollmentService{
		secret:      cfg.PaystackSecret,
		exams:       exams,
		enrollments: enrollments,
		events:      events,
		log:         log.With().Str("component", "enrollment_service").Logger(),
		now:         time.Now,
	}
}

// Enroll enrolls a user in a published exam. Enrolling again while a payment is
// pending returns the pending enrollment; a failed or refunded enrollment is
// restarted under a new payment reference.
func (s *EnrollmentService) Enroll(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	existing, err := s.enrollments.GetByUserAndExam(ctx, userID, examID)
	switch {
	case err == nil:
		return s.reenroll(ctx, exam, existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get enrollment: %w", err)
	}

	enr := &model.Enrollment{
		UserID: userID,
		ExamID: examID,
		Status: model.EnrollmentPending,
		Amount: exam.Price,
	}
	if exam.IsFree() {
		now := s.now().UTC()
		enr.Status = model.EnrollmentCompleted
		enr.PaidAt = &now
	} else {
		enr.PaymentReference = newPaymentReference()
	}

	if err := s.enrollments.Create(ctx, enr); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	s.log.Info().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Str("status", string(enr.Status)).
		Msg("Enrollment created")

	if enr.Status == model.EnrollmentCompleted {
		s.publishCompleted(ctx, enr)
	}
	return enr, nil
}

func (s *EnrollmentService) reenroll(ctx context.Context, exam *model.Exam, enr *model.Enrollment) (*model.Enrollment, error) {
	switch enr.Status {
	case model.EnrollmentCompleted:
		return nil, ErrAlreadyEnrolled
	case model.EnrollmentPending:
		return enr, nil
	}

	if exam.IsFree() {
		now := s.now().UTC()
		if err := s.enrollments.UpdateStatus(ctx, enr.ID, model.EnrollmentCompleted, &now); err != nil {
			return nil, fmt.Errorf("complete enrollment: %w", err)
		}
		enr.Status = model.EnrollmentCompleted
		enr.PaidAt = &now
		s.publishCompleted(ctx, enr)
		return enr, nil
	}

	ref := newPaymentReference()
	if err := s.enrollments.Restart(ctx, enr.ID, ref, exam.Price); err != nil {
		return nil, fmt.Errorf("restart enrollment: %w", err)
	}
	enr.Status = model.EnrollmentPending
	enr.PaymentReference = ref
	enr.Amount = exam.Price
	enr.PaidAt = nil
	return enr, nil
}

// ListMine returns a user's enrollments.
func (s *EnrollmentService) ListMine(ctx context.Context, userID int) ([]model.Enrollment, error) {
	return s.enrollments.ListByUser(ctx, userID)
}

// VerifySignature checks a hex HMAC-SHA512 signature of the raw webhook body.
func (s *EnrollmentService) VerifySignature(body []byte, signature string) bool {
	if s.secret == "" || signature == "" {
		return false
	}
	want, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// HandleWebhook applies a signed payment provider callback. Repeated
// deliveries of the same event leave the enrollment unchanged.
func (s *EnrollmentService) HandleWebhook(ctx context.Context, body []byte, signature string) (err error) {
	event := "unknown"
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.WebhooksReceived.WithLabelValues(event, result).Inc()
	}()

	if !s.VerifySignature(body, signature) {
		return ErrInvalidSignature
	}

	var hook model.PaymentWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if hook.Data.Reference == "" {
		return fmt.Errorf("%w: missing reference", ErrInvalidWebhook)
	}
	event = hook.Event

	enr, err := s.enrollments.GetByReference(ctx, hook.Data.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownReference
		}
		return fmt.Errorf("get enrollment: %w", err)
	}

	log := s.log.With().
		Str("event", hook.Event).
		Str("reference", hook.Data.Reference).
		Str("enrollment_id", enr.ID.String()).
		Logger()

	switch hook.Event {
	case WebhookChargeSuccess:
		if enr.Status == model.EnrollmentCompleted {
			return nil
		}
		if hook.Data.Amount != enr.Amount {
			log.Warn().Int64("paid", hook.Data.Amount).Int64("expected", enr.Amount).Msg("Payment amount mismatch")
			return ErrPaymentMismatch
		}
		now := s.now().UTC()
		if err := s.enrollments.UpdateStatus(ctx, enr.ID, model.EnrollmentCompleted, &now); err != nil {
			return fmt.Errorf("complete enrollment: %w", err)
		}
		enr.Status = model.EnrollmentCompleted
		enr.PaidAt = &now
		log.Info().Msg("Enrollment paid")
		s.publishCompleted(ctx, enr)

	case WebhookChargeFailed:
		if enr.Status != model.EnrollmentPending {
			return nil
		}
		if err := s.enrollments.UpdateStatus(ctx, enr.ID, model.EnrollmentFailed, nil); err != nil {
			return fmt.Errorf("fail enrollment: %w", err)
		}
		log.Info().Msg("Enrollment payment failed")

	case WebhookRefundProcessed:
		if enr.Status != model.EnrollmentCompleted {
			return nil
		}
		if err := s.enrollments.UpdateStatus(ctx, enr.ID, model.EnrollmentRefunded, nil); err != nil {
			return fmt.Errorf("refund enrollment: %w", err)
		}
		log.Info().Msg("Enrollment refunded")

	default:
		log.Debug().Msg("Ignoring webhook event")
	}
	return nil
}

func (s *EnrollmentService) publishCompleted(ctx context.Context, enr *model.Enrollment) {
	id := enr.ID
	err := s.events.Publish(ctx, events.Event{
		Type:         config.EventKey.EnrollmentCompleted,
		UserID:       enr.UserID,
		ExamID:       enr.ExamID,
		EnrollmentID: &id,
		Data:         map[string]any{"amount": enr.Amount},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("enrollment_id", enr.ID.String()).Msg("Failed to publish enrollment event")
	}
}

func newPaymentReference() string {
	return "exp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
