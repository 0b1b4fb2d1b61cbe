package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/grading"
	"github.com/examprep/examprep-backend/internal/metrics"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Finalize triggers, used as metric labels.
const (
	TriggerManual  = "manual"
	TriggerTimeout = "timeout"
	TriggerSweeper = "sweeper"
)

const defaultOverdueBatch = 100

// AttemptService owns the attempt lifecycle: start, progress saves, scoring and review.
type AttemptService struct {
	exams        ExamStore
	questions    QuestionStore
	enrollments  EnrollmentStore
	attempts     AttemptStore
	papers       PaperSource
	events       EventPublisher
	monitor      ProgressNotifier
	clock        countdown.Clock
	grace        time.Duration
	overdueBatch int // page size of an expiry sweep
	log          zerolog.Logger
}

// AttemptDeps groups the collaborators of an AttemptService.
type AttemptDeps struct {
	Exams       ExamStore
	Questions   QuestionStore
	Enrollments EnrollmentStore
	Attempts    AttemptStore
	Papers      PaperSource
	Events      EventPublisher
	Monitor     ProgressNotifier
	Clock       countdown.Clock
}

// NewAttemptService creates a new AttemptService. A nil Clock uses the system clock.
func NewAttemptService(cfg *config.Config, deps AttemptDeps, log zerolog.Logger) *AttemptService {
	clock := deps.Clock
	if clock == nil {
		clock = countdown.System
	}
	return &AttemptService{
		exams:        deps.Exams,
		questions:    deps.Questions,
		enrollments:  deps.Enrollments,
		attempts:     deps.Attempts,
		papers:       deps.Papers,
		events:       deps.Events,
		monitor:      deps.Monitor,
		clock:        clock,
		grace:        cfg.AttemptGrace,
		overdueBatch: defaultOverdueBatch,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens a new attempt, or returns the user's open attempt at the exam.
func (s *AttemptService) Start(ctx context.Context, userID int, examID uuid.UUID) (*model.AttemptView, error) {
	exam, err := s.exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	now := s.clock.Now()
	if (exam.StartAt != nil && now.Before(*exam.StartAt)) || (exam.EndAt != nil && now.After(*exam.EndAt)) {
		return nil, ErrExamNotAvailable
	}

	open, err := s.attempts.FindOpen(ctx, userID, examID)
	switch {
	case err == nil:
		if !s.overdue(open, exam, now) {
			return s.view(open, exam), nil
		}
		if _, err := s.finalize(ctx, open.ID, exam, TriggerTimeout, true); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find open attempt: %w", err)
	}

	enrollmentID, err := s.checkEnrollment(ctx, userID, exam)
	if err != nil {
		return nil, err
	}

	count, err := s.attempts.CountByUserAndExam(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if limit := exam.AttemptLimit(); limit > 0 && count >= limit {
		return nil, ErrMaxAttempts
	}

	a := &model.Attempt{
		UserID:        userID,
		ExamID:        examID,
		EnrollmentID:  enrollmentID,
		Answers:       model.Answers{},
		AttemptNumber: count + 1,
	}
	if err := s.attempts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			// A concurrent start won the race.
			if open, ferr := s.attempts.FindOpen(ctx, userID, examID); ferr == nil {
				return s.view(open, exam), nil
			}
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	metrics.AttemptsStarted.Inc()
	s.log.Info().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Str("attempt_id", a.ID.String()).
		Int("attempt_number", a.AttemptNumber).
		Msg("Attempt started")

	s.publish(ctx, config.EventKey.AttemptStarted, a, map[string]any{"attemptNumber": a.AttemptNumber})
	s.notify(ctx, examID)
	return s.view(a, exam), nil
}

// Get returns one of the user's attempts. An open attempt past its deadline is
// finalized before it is returned.
func (s *AttemptService) Get(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptView, error) {
	a, err := s.owned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	if !a.IsCompleted && s.overdue(a, exam, s.clock.Now()) {
		if a, err = s.finalize(ctx, a.ID, exam, TriggerTimeout, true); err != nil {
			return nil, err
		}
	}
	return s.view(a, exam), nil
}

// SaveProgress overwrites the answers of an open attempt. timeTaken is clamped
// to the exam's allotted seconds; reaching the bound saves and then finalizes.
// A non-nil version must be greater than the stored one.
func (s *AttemptService) SaveProgress(ctx context.Context, userID int, attemptID uuid.UUID, answers model.Answers, timeTaken int, version *int64) (view *model.AttemptView, err error) {
	outcome := "ok"
	defer func() {
		if err != nil {
			switch {
			case errors.Is(err, ErrStaleWrite):
				outcome = "stale"
			case errors.Is(err, ErrAttemptCompleted):
				outcome = "closed"
			default:
				outcome = "error"
			}
		}
		metrics.AutosaveResults.WithLabelValues(outcome).Inc()
	}()

	a, err := s.owned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.IsCompleted {
		return nil, ErrAttemptCompleted
	}
	exam, err := s.exam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if now.After(countdown.Deadline(a.StartedAt, exam.Duration).Add(s.grace)) {
		if _, err := s.finalize(ctx, a.ID, exam, TriggerTimeout, true); err != nil {
			return nil, err
		}
		return nil, ErrAttemptCompleted
	}

	allotted := exam.AllottedSeconds()
	timeTaken = min(max(timeTaken, 0), allotted)
	answers = s.knownAnswers(ctx, exam, a.ID, answers)

	saved, err := s.attempts.UpdateProgress(ctx, a.ID, answers, timeTaken, version)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAttemptClosed):
			return nil, ErrAttemptCompleted
		case errors.Is(err, repository.ErrStaleWrite):
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("save progress: %w", err)
	}

	if saved.TimeTaken >= allotted {
		if saved, err = s.finalize(ctx, a.ID, exam, TriggerTimeout, true); err != nil {
			return nil, err
		}
		return s.view(saved, exam), nil
	}

	s.notify(ctx, exam.ID)
	return s.view(saved, exam), nil
}

// Finalize scores and completes one of the user's attempts. Finalizing a
// completed attempt returns it unchanged.
func (s *AttemptService) Finalize(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptView, error) {
	a, err := s.owned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if a.IsCompleted {
		return s.view(a, exam), nil
	}

	auto := s.overdue(a, exam, s.clock.Now())
	trigger := TriggerManual
	if auto {
		trigger = TriggerTimeout
	}
	done, err := s.finalize(ctx, a.ID, exam, trigger, auto)
	if err != nil {
		return nil, err
	}
	return s.view(done, exam), nil
}

// Result returns the graded breakdown of one of the user's completed attempts.
func (s *AttemptService) Result(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptResult, error) {
	a, err := s.owned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, a)
}

// AdminResult returns the graded breakdown of any completed attempt.
func (s *AttemptService) AdminResult(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error) {
	a, err := s.attempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return s.result(ctx, a)
}

// ListMine returns the user's attempts at an exam, newest first.
func (s *AttemptService) ListMine(ctx context.Context, userID int, examID uuid.UUID) ([]model.Attempt, error) {
	if _, err := s.exam(ctx, examID); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByUserAndExam(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

// Review records reviewer marks for manually graded questions of a completed
// attempt and rescores it. Awards are capped at each question's marks.
func (s *AttemptService) Review(ctx context.Context, attemptID uuid.UUID, awards map[string]float64) (*model.AttemptResult, error) {
	a, err := s.attempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.IsCompleted {
		return nil, ErrAttemptInProgress
	}
	questions, err := s.questions.ListByExam(ctx, a.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	reviewable := make(map[string]bool)
	for _, q := range questions {
		v, err := grading.FromQuestion(q)
		if err != nil {
			continue
		}
		if grading.Score(v, a.Answers[q.ID.String()]).NeedsReview {
			reviewable[q.ID.String()] = true
		}
	}
	for id := range awards {
		if !reviewable[id] {
			return nil, fmt.Errorf("%w: %s", ErrNothingToReview, id)
		}
	}

	updated, err := s.attempts.UpdateLocked(ctx, attemptID, func(a *model.Attempt) (bool, error) {
		if a.Awards == nil {
			a.Awards = make(map[string]float64, len(awards))
		}
		for id, v := range awards {
			a.Awards[id] = v
		}
		sum := grading.Grade(questions, a.Answers, a.Awards)
		a.Score = &sum.Score
		a.TotalMarks = &sum.TotalMarks
		a.NeedsReview = sum.NeedsReview
		a.IsReviewed = true
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("review attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("awards", len(awards)).
		Bool("needs_review", updated.NeedsReview).
		Msg("Attempt reviewed")
	return s.result(ctx, updated)
}

// ExpireOverdue finalizes open attempts whose deadline plus grace has passed.
// It returns how many attempts it finalized. Attempts that fail to finalize
// are left for the next sweep and excluded from later pages of this one.
func (s *AttemptService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	exams := make(map[uuid.UUID]*model.Exam)
	var failed []uuid.UUID
	finalized := 0
	for {
		if err := ctx.Err(); err != nil {
			return finalized, err
		}
		ids, err := s.attempts.ListOverdue(ctx, now, s.grace, failed, s.overdueBatch)
		if err != nil {
			return finalized, fmt.Errorf("list overdue: %w", err)
		}
		for _, id := range ids {
			if s.expire(ctx, id, exams) {
				finalized++
			} else {
				failed = append(failed, id)
			}
		}
		if len(ids) < s.overdueBatch {
			return finalized, nil
		}
	}
}

func (s *AttemptService) expire(ctx context.Context, id uuid.UUID, exams map[uuid.UUID]*model.Exam) bool {
	a, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Failed to load overdue attempt")
		return false
	}
	exam, ok := exams[a.ExamID]
	if !ok {
		if exam, err = s.exam(ctx, a.ExamID); err != nil {
			s.log.Warn().Err(err).Str("exam_id", a.ExamID.String()).Msg("Failed to load exam of overdue attempt")
			return false
		}
		exams[a.ExamID] = exam
	}
	if _, err := s.finalize(ctx, id, exam, TriggerSweeper, true); err != nil {
		s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to finalize overdue attempt")
		return false
	}
	return true
}

// finalize grades an attempt inside a row-locked transaction. Attempts that
// are already completed are returned as stored.
func (s *AttemptService) finalize(ctx context.Context, attemptID uuid.UUID, exam *model.Exam, trigger string, auto bool) (*model.Attempt, error) {
	start := time.Now()
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	completed := false
	a, err := s.attempts.UpdateLocked(ctx, attemptID, func(a *model.Attempt) (bool, error) {
		if a.IsCompleted {
			return false, nil
		}
		sum := grading.Grade(questions, a.Answers, a.Awards)
		now := s.clock.Now()
		a.Score = &sum.Score
		a.TotalMarks = &sum.TotalMarks
		a.NeedsReview = sum.NeedsReview
		a.TimeTaken = min(a.TimeTaken, exam.AllottedSeconds())
		a.CompletedAt = &now
		a.IsCompleted = true
		a.AutoSubmitted = auto
		completed = true
		return true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !completed {
		return a, nil
	}

	metrics.AttemptsFinalized.WithLabelValues(trigger).Inc()
	metrics.ObserveSince(metrics.FinalizeDuration, start)
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("trigger", trigger).
		Float64("score", *a.Score).
		Float64("total_marks", *a.TotalMarks).
		Bool("needs_review", a.NeedsReview).
		Msg("Attempt finalized")

	s.publish(ctx, config.EventKey.AttemptCompleted, a, map[string]any{
		"score":         *a.Score,
		"totalMarks":    *a.TotalMarks,
		"autoSubmitted": a.AutoSubmitted,
		"needsReview":   a.NeedsReview,
		"examTitle":     exam.Title,
	})
	s.notify(ctx, exam.ID)
	return a, nil
}

func (s *AttemptService) result(ctx context.Context, a *model.Attempt) (*model.AttemptResult, error) {
	if !a.IsCompleted {
		return nil, ErrAttemptInProgress
	}
	exam, err := s.exam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByExam(ctx, a.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	sum := grading.Grade(questions, a.Answers, a.Awards)
	res := &model.AttemptResult{
		Attempt: *a,
		Items:   sum.Items,
	}
	if a.Score != nil && a.TotalMarks != nil && *a.TotalMarks > 0 {
		res.Percentage = grading.Summary{Score: *a.Score, TotalMarks: *a.TotalMarks}.Percentage()
	}
	res.Passed = !a.NeedsReview && res.Percentage >= exam.PassingScore
	return res, nil
}

// knownAnswers drops answers keyed by ids that are not questions of the exam.
// When the question set cannot be loaded the answers are kept as sent.
func (s *AttemptService) knownAnswers(ctx context.Context, exam *model.Exam, attemptID uuid.UUID, answers model.Answers) model.Answers {
	if answers == nil {
		return model.Answers{}
	}
	paper, err := s.papers.Paper(ctx, exam)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Skipping answer key check")
		return answers
	}

	known := make(map[string]bool, len(paper.Questions))
	for _, q := range paper.Questions {
		known[q.ID.String()] = true
	}
	out := make(model.Answers, len(answers))
	for id, v := range answers {
		if !known[id] {
			s.log.Warn().Str("attempt_id", attemptID.String()).Str("question_id", id).Msg("Dropping answer for unknown question")
			continue
		}
		out[id] = v
	}
	return out
}

func (s *AttemptService) checkEnrollment(ctx context.Context, userID int, exam *model.Exam) (*uuid.UUID, error) {
	enr, err := s.enrollments.GetByUserAndExam(ctx, userID, exam.ID)
	switch {
	case err == nil:
		if enr.Status == model.EnrollmentCompleted {
			return &enr.ID, nil
		}
		if exam.IsFree() {
			return nil, nil
		}
		return nil, ErrNotEnrolled
	case errors.Is(err, repository.ErrNotFound):
		if exam.IsFree() {
			return nil, nil
		}
		return nil, ErrNotEnrolled
	default:
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
}

// overdue reports whether an open attempt is past its deadline plus grace.
func (s *AttemptService) overdue(a *model.Attempt, exam *model.Exam, now time.Time) bool {
	return now.After(countdown.Deadline(a.StartedAt, exam.Duration).Add(s.grace))
}

func (s *AttemptService) view(a *model.Attempt, exam *model.Exam) *model.AttemptView {
	v := &model.AttemptView{Attempt: *a, Duration: exam.Duration}
	if !a.IsCompleted {
		started := a.StartedAt
		v.RemainingSeconds = countdown.Remaining(exam.Duration, &started, 0, s.clock.Now())
	}
	return v
}

func (s *AttemptService) exam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *AttemptService) attempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// owned loads an attempt and hides it from anyone but its owner.
func (s *AttemptService) owned(ctx context.Context, userID int, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptService) publish(ctx context.Context, typ string, a *model.Attempt, data map[string]any) {
	id := a.ID
	err := s.events.Publish(ctx, events.Event{
		Type:         typ,
		UserID:       a.UserID,
		ExamID:       a.ExamID,
		AttemptID:    &id,
		EnrollmentID: a.EnrollmentID,
		Data:         data,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("type", typ).Str("attempt_id", a.ID.String()).Msg("Failed to publish event")
	}
}

func (s *AttemptService) notify(ctx context.Context, examID uuid.UUID) {
	if s.monitor != nil {
		s.monitor.AttemptChanged(ctx, examID)
	}
}
