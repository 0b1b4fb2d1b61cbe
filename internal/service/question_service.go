package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/examprep/examprep-backend/internal/grading"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ImportColumns is the header row of a question sheet.
var ImportColumns = []string{"Question", "Type", "Options", "Correct Answer", "Marks"}

// ImportRowError describes a rejected sheet row.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport summarises a question sheet import. Imports are all-or-nothing:
// Imported is zero whenever Errors is non-empty.
type ImportReport struct {
	TotalRows int              `json:"totalRows"`
	Imported  int              `json:"imported"`
	Errors    []ImportRowError `json:"errors"`
}

// QuestionService handles question business logic. Questions can only change
// while their exam is a draft.
type QuestionService struct {
	exams     ExamStore
	questions QuestionStore
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(exams ExamStore, questions QuestionStore, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		exams:     exams,
		questions: questions,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// ListByExam retrieves all questions of an exam, answer keys included.
func (s *QuestionService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	if _, err := s.exam(ctx, examID); err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Create appends a question to a draft exam.
func (s *QuestionService) Create(ctx context.Context, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if err := s.requireDraft(ctx, examID); err != nil {
		return nil, err
	}

	q := questionFromRequest(examID, req)
	if err := grading.ValidateQuestion(*q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Update replaces the content of a question. Its position is unchanged.
func (s *QuestionService) Update(ctx context.Context, examID, questionID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if err := s.requireDraft(ctx, examID); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, examID, questionID); err != nil {
		return nil, err
	}

	q := questionFromRequest(examID, req)
	q.ID = questionID
	if err := grading.ValidateQuestion(*q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	if err := s.questions.Update(ctx, q); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// Delete removes a question; later questions move up one position.
func (s *QuestionService) Delete(ctx context.Context, examID, questionID uuid.UUID) error {
	if err := s.requireDraft(ctx, examID); err != nil {
		return err
	}
	if _, err := s.owned(ctx, examID, questionID); err != nil {
		return err
	}
	if err := s.questions.Delete(ctx, examID, questionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// Reorder renumbers an exam's questions 1..n in the order of ids, which must
// list every question of the exam exactly once.
func (s *QuestionService) Reorder(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) ([]model.Question, error) {
	if err := s.requireDraft(ctx, examID); err != nil {
		return nil, err
	}

	current, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(current) != len(ids) {
		return nil, ErrReorderMismatch
	}
	known := make(map[uuid.UUID]bool, len(current))
	for _, q := range current {
		known[q.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return nil, ErrReorderMismatch
		}
		delete(known, id)
	}

	if err := s.questions.Reorder(ctx, examID, ids); err != nil {
		return nil, fmt.Errorf("reorder questions: %w", err)
	}
	return s.questions.ListByExam(ctx, examID)
}

// ImportXLSX appends the questions of the first sheet of an XLSX workbook to a
// draft exam. The header row must name the ImportColumns; Options and alternative
// answers are separated by "|". Any invalid row rejects the whole sheet.
func (s *QuestionService) ImportXLSX(ctx context.Context, examID uuid.UUID, r io.Reader) (*ImportReport, error) {
	if err := s.requireDraft(ctx, examID); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrImportFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFile, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrImportFile)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range ImportColumns {
		if _, ok := header[strings.ToLower(col)]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrImportFile, col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	questions := make([]model.Question, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(col string) string {
			idx := header[strings.ToLower(col)]
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if strings.Join(row, "") == "" {
			continue
		}
		report.TotalRows++

		q, err := parseImportRow(examID, get)
		if err != nil {
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: err.Error()})
			continue
		}
		questions = append(questions, q)
	}

	if len(report.Errors) > 0 {
		return report, ErrImportRejected
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no data rows found", ErrImportFile)
	}

	if err := s.questions.CreateBatch(ctx, examID, questions); err != nil {
		return nil, fmt.Errorf("import questions: %w", err)
	}
	report.Imported = len(questions)

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("imported", report.Imported).
		Msg("Questions imported")
	return report, nil
}

func parseImportRow(examID uuid.UUID, get func(string) string) (model.Question, error) {
	q := model.Question{
		ExamID:        examID,
		Question:      get("Question"),
		Type:          model.QuestionType(strings.ToLower(get("Type"))),
		CorrectAnswer: get("Correct Answer"),
	}
	if q.Question == "" {
		return q, errors.New("question text is empty")
	}

	if raw := get("Options"); raw != "" {
		for _, opt := range strings.Split(raw, "|") {
			if opt = strings.TrimSpace(opt); opt != "" {
				q.Options = append(q.Options, opt)
			}
		}
	}

	marks, err := strconv.ParseFloat(get("Marks"), 64)
	if err != nil || marks <= 0 {
		return q, fmt.Errorf("marks %q is not a positive number", get("Marks"))
	}
	q.Marks = marks

	if err := grading.ValidateQuestion(q); err != nil {
		return q, err
	}
	return q, nil
}

func questionFromRequest(examID uuid.UUID, req *model.AddQuestionRequest) *model.Question {
	return &model.Question{
		ExamID:        examID,
		Question:      req.Question,
		Type:          model.QuestionType(req.Type),
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Marks:         req.Marks,
	}
}

func (s *QuestionService) exam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

func (s *QuestionService) requireDraft(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.exam(ctx, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return nil
}

func (s *QuestionService) owned(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	if q.ExamID != examID {
		return nil, ErrQuestionNotFound
	}
	return q, nil
}
