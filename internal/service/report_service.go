package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var resultHeaders = []string{
	"Attempt ID", "Name", "Email", "Attempt", "Score", "Total Marks", "Percentage",
	"Time Taken (s)", "Status", "Started At", "Completed At",
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ReportService lists and exports exam results.
type ReportService struct {
	exams    ExamStore
	attempts AttemptStore
}

// NewReportService creates a new ReportService.
func NewReportService(exams ExamStore, attempts AttemptStore) *ReportService {
	return &ReportService{exams: exams, attempts: attempts}
}

// ListResults returns one page of an exam's attempts.
func (s *ReportService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, *response.Pagination, error) {
	if _, err := s.exam(ctx, examID); err != nil {
		return nil, nil, err
	}
	page, perPage = normalizePage(page, perPage)

	rows, total, err := s.attempts.ListResultsByExam(ctx, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if rows == nil {
		rows = []model.ExamResultRow{}
	}
	return rows, response.NewPagination(page, perPage, total), nil
}

// ExportResultsXLSX renders every attempt of an exam into a workbook and
// returns it with a suggested file name.
func (s *ReportService) ExportResultsXLSX(ctx context.Context, examID uuid.UUID) ([]byte, string, error) {
	exam, err := s.exam(ctx, examID)
	if err != nil {
		return nil, "", err
	}
	rows, _, err := s.attempts.ListResultsByExam(ctx, examID, 0, 0)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range rows {
		values := []any{
			r.AttemptID.String(),
			r.Name,
			r.Email,
			r.AttemptNumber,
			optional(r.Score),
			optional(r.TotalMarks),
			percentage(r.Score, r.TotalMarks),
			r.TimeTaken,
			resultStatus(r),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			"",
		}
		if r.CompletedAt != nil {
			values[10] = r.CompletedAt.Format("2006-01-02 15:04:05")
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "K", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write excel: %w", err)
	}

	name := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(exam.Title), "_"), "_")
	if name == "" {
		name = "exam"
	}
	return buf.Bytes(), name + "_results.xlsx", nil
}

func (s *ReportService) exam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

func resultStatus(r model.ExamResultRow) string {
	switch {
	case !r.IsCompleted:
		return "in progress"
	case r.NeedsReview:
		return "pending review"
	default:
		return "completed"
	}
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func percentage(score, total *float64) any {
	if score == nil || total == nil || *total <= 0 {
		return ""
	}
	return math.Round(*score / *total * 10000) / 100
}
