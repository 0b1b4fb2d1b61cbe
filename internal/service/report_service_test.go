package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportResultsXLSX(t *testing.T) {
	exam := &model.Exam{ID: uuid.New(), Title: "Final Exam: Part 1", Duration: 10, Status: model.ExamStatusPublished}
	exams := newFakeExams(exam)
	attempts := newFakeAttempts(countdown.System, exams)
	ctx := context.Background()

	score, total := 4.0, 8.0
	done := &model.Attempt{UserID: 1, ExamID: exam.ID, AttemptNumber: 1}
	require.NoError(t, attempts.Create(ctx, done))
	_, err := attempts.UpdateLocked(ctx, done.ID, func(a *model.Attempt) (bool, error) {
		a.Score, a.TotalMarks, a.IsCompleted = &score, &total, true
		return true, nil
	})
	require.NoError(t, err)
	require.NoError(t, attempts.Create(ctx, &model.Attempt{UserID: 2, ExamID: exam.ID, AttemptNumber: 1}))

	svc := NewReportService(exams, attempts)
	data, name, err := svc.ExportResultsXLSX(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, "final_exam_part_1_results.xlsx", name)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultHeaders, rows[0])

	statuses := []string{rows[1][8], rows[2][8]}
	assert.ElementsMatch(t, []string{"completed", "in progress"}, statuses)
}

func TestListResultsPaginates(t *testing.T) {
	exam := &model.Exam{ID: uuid.New(), Title: "Quiz", Duration: 5}
	exams := newFakeExams(exam)
	attempts := newFakeAttempts(countdown.System, exams)
	for i := 1; i <= 3; i++ {
		require.NoError(t, attempts.Create(context.Background(), &model.Attempt{UserID: i, ExamID: exam.ID, AttemptNumber: 1}))
	}

	rows, page, err := NewReportService(exams, attempts).ListResults(context.Background(), exam.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 3, page.TotalItems)

	_, _, err = NewReportService(exams, attempts).ListResults(context.Background(), uuid.New(), 1, 2)
	assert.ErrorIs(t, err, ErrExamNotFound)
}
