package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/grading"
	"github.com/examprep/examprep-backend/internal/metrics"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ExamService handles exam business logic and the Redis paper cache.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	attempts  AttemptStore
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	questions QuestionStore,
	attempts AttemptStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		attempts:  attempts,
		rdb:       rdb,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// GetForStudent returns exam metadata visible to students. Drafts are hidden.
func (s *ExamService) GetForStudent(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusDraft {
		return nil, ErrExamNotFound
	}
	return exam, nil
}

// ListPublished returns the public exam catalog.
func (s *ExamService) ListPublished(ctx context.Context, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	status := model.ExamStatusPublished
	return s.List(ctx, &status, page, perPage)
}

// List returns exams, optionally filtered by status.
func (s *ExamService) List(ctx context.Context, status *model.ExamStatus, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)

	exams, total, err := s.exams.List(ctx, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, response.NewPagination(page, perPage, total), nil
}

// Create inserts a new exam as draft.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:                 req.Title,
		Description:           req.Description,
		AuthorID:              authorID,
		Duration:              req.Duration,
		PassingScore:          req.PassingScore,
		Status:                model.ExamStatusDraft,
		MaxAttempts:           req.MaxAttempts,
		AllowPreview:          req.AllowPreview,
		AllowMultipleAttempts: req.AllowMultipleAttempts,
		StartAt:               req.StartAt,
		EndAt:                 req.EndAt,
		Price:                 req.Price,
	}
	if exam.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Int("author_id", authorID).Msg("Exam created")
	return exam, nil
}

// Update modifies an existing draft exam.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	req.Apply(exam)
	if exam.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.exams.Delete(ctx, id)
}

// Publish validates a draft exam, caches its paper in Redis, and marks it published.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}
	if exam.Duration <= 0 {
		return nil, ErrInvalidDuration
	}

	questions, err := s.questions.ListByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if err := validateQuestionSet(questions); err != nil {
		return nil, err
	}

	exam.Status = model.ExamStatusPublished
	exam.TotalQuestions = len(questions)
	if _, err := s.cachePaper(ctx, exam, questions); err != nil {
		return nil, err
	}

	if err := s.exams.UpdateStatus(ctx, id, model.ExamStatusPublished); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", id.String()).Int("questions", len(questions)).Msg("Exam published")
	return exam, nil
}

// Archive closes a published exam to new attempts and drops its cached paper.
func (s *ExamService) Archive(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	if err := s.exams.UpdateStatus(ctx, id, model.ExamStatusArchived); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to drop exam paper cache")
	}
	exam.Status = model.ExamStatusArchived
	s.log.Info().Str("exam_id", id.String()).Msg("Exam archived")
	return exam, nil
}

// WarmExamCache loads an exam's questions from PostgreSQL into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	return s.cachePaper(ctx, exam, questions)
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if _, err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// Paper returns the student-facing paper, reading through the Redis cache.
func (s *ExamService) Paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(exam.ID.String())).Bytes()
	switch {
	case err == nil:
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			metrics.CacheHits.Inc()
			return &paper, nil
		}
		s.log.Warn().Str("exam_id", exam.ID.String()).Msg("Discarding malformed cached paper")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Msg("Paper cache unavailable, reading from database")
	}

	metrics.CacheMisses.Inc()
	return s.WarmExamCache(ctx, exam)
}

// StudentQuestions returns the ordered questions of an exam without answer keys.
// Unless the exam allows preview, the user must have started an attempt.
func (s *ExamService) StudentQuestions(ctx context.Context, userID int, examID uuid.UUID) ([]model.QuestionForStudent, error) {
	exam, err := s.GetForStudent(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.AllowPreview {
		n, err := s.attempts.CountByUserAndExam(ctx, userID, examID)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if n == 0 {
			return nil, ErrPreviewNotAllowed
		}
	}

	paper, err := s.Paper(ctx, exam)
	if err != nil {
		if errors.Is(err, ErrNoQuestions) {
			return []model.QuestionForStudent{}, nil
		}
		return nil, err
	}
	return paper.Questions, nil
}

func (s *ExamService) cachePaper(ctx context.Context, exam *model.Exam, questions []model.Question) (*model.ExamPaper, error) {
	paper := &model.ExamPaper{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.Duration,
		Questions: make([]model.QuestionForStudent, 0, len(questions)),
	}
	for _, q := range questions {
		v, err := grading.FromQuestion(q)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
		}
		paper.Questions = append(paper.Questions, grading.StudentView(v))
	}

	data, err := json.Marshal(paper)
	if err != nil {
		return nil, fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return paper, nil
}

// validateQuestionSet checks the publish preconditions on an ordered question list.
func validateQuestionSet(questions []model.Question) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	for i, q := range questions {
		if q.Order != i+1 {
			return fmt.Errorf("%w: position %d has order %d", ErrQuestionOrder, i+1, q.Order)
		}
		if err := grading.ValidateQuestion(q); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
		}
	}
	return nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
