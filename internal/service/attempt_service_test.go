package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studentID = 7

type attemptFixture struct {
	clock       *countdown.ManualClock
	exams       *fakeExams
	questions   *fakeQuestions
	enrollments *fakeEnrollments
	attempts    *fakeAttempts
	events      *recordingPublisher
	monitor     *countingNotifier
	svc         *AttemptService
	exam        *model.Exam
	mc, tf, es  model.Question
}

func newAttemptFixture(t *testing.T, mutate func(e *model.Exam)) *attemptFixture {
	t.Helper()
	f := &attemptFixture{
		clock:       countdown.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		questions:   newFakeQuestions(),
		enrollments: newFakeEnrollments(),
		events:      &recordingPublisher{},
		monitor:     &countingNotifier{},
	}
	f.exam = &model.Exam{
		ID:                    uuid.New(),
		Title:                 "Algebra Mock",
		Duration:              10,
		PassingScore:          50,
		Status:                model.ExamStatusPublished,
		MaxAttempts:           2,
		AllowMultipleAttempts: true,
	}
	if mutate != nil {
		mutate(f.exam)
	}
	f.exams = newFakeExams(f.exam)
	f.attempts = newFakeAttempts(f.clock, f.exams)

	f.mc = model.Question{ID: uuid.New(), Question: "2+2?", Type: model.QuestionTypeMultipleChoice, Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4", Marks: 2}
	f.tf = model.Question{ID: uuid.New(), Question: "Zero is even.", Type: model.QuestionTypeTrueFalse, CorrectAnswer: "true", Marks: 1}
	f.es = model.Question{ID: uuid.New(), Question: "Explain factoring.", Type: model.QuestionTypeEssay, Marks: 3}
	f.questions.add(f.exam.ID, f.mc, f.tf, f.es)

	f.svc = NewAttemptService(testConfig(), AttemptDeps{
		Exams:       f.exams,
		Questions:   f.questions,
		Enrollments: f.enrollments,
		Attempts:    f.attempts,
		Papers:      staticPapers{questions: f.questions},
		Events:      f.events,
		Monitor:     f.monitor,
		Clock:       f.clock,
	}, nopLog)
	return f
}

func (f *attemptFixture) start(t *testing.T) *model.AttemptView {
	t.Helper()
	v, err := f.svc.Start(context.Background(), studentID, f.exam.ID)
	require.NoError(t, err)
	return v
}

func TestStartIsIdempotentWhileOpen(t *testing.T) {
	f := newAttemptFixture(t, nil)

	first := f.start(t)
	second := f.start(t)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, 600, first.RemainingSeconds)
	assert.Equal(t, []string{config.EventKey.AttemptStarted}, f.events.types())
}

func TestConcurrentStartsShareOneAttempt(t *testing.T) {
	f := newAttemptFixture(t, nil)

	const starters = 8
	ids := make(chan uuid.UUID, starters)
	var wg sync.WaitGroup
	for range starters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.svc.Start(context.Background(), studentID, f.exam.ID)
			if assert.NoError(t, err) {
				ids <- v.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var first uuid.UUID
	for id := range ids {
		if first == uuid.Nil {
			first = id
		}
		assert.Equal(t, first, id)
	}
	f.attempts.mu.Lock()
	assert.Len(t, f.attempts.items, 1)
	f.attempts.mu.Unlock()
}

func TestStartGates(t *testing.T) {
	future := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(e *model.Exam)
		want   error
	}{
		{name: "draft exam", mutate: func(e *model.Exam) { e.Status = model.ExamStatusDraft }, want: ErrExamNotPublished},
		{name: "window not open", mutate: func(e *model.Exam) { e.StartAt = &future }, want: ErrExamNotAvailable},
		{name: "paid without enrollment", mutate: func(e *model.Exam) { e.Price = 5000 }, want: ErrNotEnrolled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newAttemptFixture(t, tc.mutate)
			_, err := f.svc.Start(context.Background(), studentID, f.exam.ID)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStartPaidExamWithCompletedEnrollment(t *testing.T) {
	f := newAttemptFixture(t, func(e *model.Exam) { e.Price = 5000 })
	enr := &model.Enrollment{UserID: studentID, ExamID: f.exam.ID, Status: model.EnrollmentPending, Amount: 5000}
	require.NoError(t, f.enrollments.Create(context.Background(), enr))

	_, err := f.svc.Start(context.Background(), studentID, f.exam.ID)
	require.ErrorIs(t, err, ErrNotEnrolled)

	require.NoError(t, f.enrollments.UpdateStatus(context.Background(), enr.ID, model.EnrollmentCompleted, nil))
	v := f.start(t)
	require.NotNil(t, v.EnrollmentID)
	assert.Equal(t, enr.ID, *v.EnrollmentID)
}

func TestStartEnforcesAttemptLimit(t *testing.T) {
	f := newAttemptFixture(t, func(e *model.Exam) { e.AllowMultipleAttempts = false })
	ctx := context.Background()

	v := f.start(t)
	_, err := f.svc.Finalize(ctx, studentID, v.ID)
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, studentID, f.exam.ID)
	assert.ErrorIs(t, err, ErrMaxAttempts)
}

func TestGetReportsServerRemainingTime(t *testing.T) {
	f := newAttemptFixture(t, nil)
	v := f.start(t)

	f.clock.Advance(5 * time.Minute)
	got, err := f.svc.Get(context.Background(), studentID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, got.RemainingSeconds)
	assert.Equal(t, 10, got.Duration)
	assert.False(t, got.IsCompleted)
}

func TestGetHidesOtherUsersAttempts(t *testing.T) {
	f := newAttemptFixture(t, nil)
	v := f.start(t)

	_, err := f.svc.Get(context.Background(), studentID+1, v.ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestGetFinalizesOverdueAttempt(t *testing.T) {
	f := newAttemptFixture(t, nil)
	v := f.start(t)

	f.clock.Advance(11 * time.Minute)
	got, err := f.svc.Get(context.Background(), studentID, v.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.True(t, got.AutoSubmitted)
	assert.Zero(t, got.RemainingSeconds)
}

func TestSaveProgressOverwritesAnswers(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()
	v := f.start(t)

	_, err := f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{
		f.mc.ID.String(): raw("4"),
		f.tf.ID.String(): raw(true),
	}, 30, nil)
	require.NoError(t, err)

	saved, err := f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{
		f.tf.ID.String(): raw(false),
	}, 20, nil)
	require.NoError(t, err)

	assert.Len(t, saved.Answers, 1, "save replaces the whole map")
	assert.JSONEq(t, "false", string(saved.Answers[f.tf.ID.String()]))
	assert.Equal(t, 30, saved.TimeTaken, "timeTaken never decreases")
	assert.Equal(t, int64(2), saved.Version)
}

func TestSaveProgressDropsUnknownQuestions(t *testing.T) {
	f := newAttemptFixture(t, nil)
	v := f.start(t)

	saved, err := f.svc.SaveProgress(context.Background(), studentID, v.ID, model.Answers{
		f.mc.ID.String():    raw("4"),
		uuid.New().String(): raw("ghost"),
	}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, saved.Answers, 1)
}

func TestSaveProgressRejectsStaleVersion(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()
	v := f.start(t)

	v5, v3 := int64(5), int64(3)
	_, err := f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{f.mc.ID.String(): raw("4")}, 10, &v5)
	require.NoError(t, err)

	_, err = f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{f.mc.ID.String(): raw("3")}, 12, &v3)
	require.ErrorIs(t, err, ErrStaleWrite)

	got, err := f.svc.Get(ctx, studentID, v.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `"4"`, string(got.Answers[f.mc.ID.String()]))
	assert.Equal(t, int64(5), got.Version)
}

func TestSaveProgressAtBoundFinalizes(t *testing.T) {
	f := newAttemptFixture(t, nil)
	v := f.start(t)

	saved, err := f.svc.SaveProgress(context.Background(), studentID, v.ID,
		model.Answers{f.mc.ID.String(): raw("4")}, 10_000, nil)
	require.NoError(t, err)

	assert.True(t, saved.IsCompleted)
	assert.True(t, saved.AutoSubmitted)
	assert.Equal(t, 600, saved.TimeTaken, "clamped to the allotted time")
	require.NotNil(t, saved.Score)
	assert.Equal(t, 2.0, *saved.Score)
}

func TestSaveProgressOnCompletedAttempt(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()
	v := f.start(t)
	_, err := f.svc.Finalize(ctx, studentID, v.ID)
	require.NoError(t, err)

	_, err = f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{}, 10, nil)
	assert.ErrorIs(t, err, ErrAttemptCompleted)
}

func TestFinalizeScoresAndIsIdempotent(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()
	v := f.start(t)

	_, err := f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{
		f.mc.ID.String(): raw("4"),
		f.tf.ID.String(): raw(false),
		f.es.ID.String(): raw("Split into factors."),
	}, 120, nil)
	require.NoError(t, err)

	done, err := f.svc.Finalize(ctx, studentID, v.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Score)
	assert.Equal(t, 2.0, *done.Score)
	assert.Equal(t, 6.0, *done.TotalMarks)
	assert.True(t, done.IsCompleted)
	assert.True(t, done.NeedsReview)
	assert.False(t, done.AutoSubmitted)

	f.clock.Advance(time.Minute)
	again, err := f.svc.Finalize(ctx, studentID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, done.CompletedAt, again.CompletedAt)
	assert.Equal(t, done.Version, again.Version)
	assert.Equal(t, *done.Score, *again.Score)

	assert.Equal(t, []string{config.EventKey.AttemptStarted, config.EventKey.AttemptCompleted}, f.events.types())
}

func TestResultRequiresCompletedAttempt(t *testing.T) {
	f := newAttemptFixture(t, nil)
	v := f.start(t)

	_, err := f.svc.Result(context.Background(), studentID, v.ID)
	assert.ErrorIs(t, err, ErrAttemptInProgress)
}

func TestReviewAwardsEssayMarks(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()
	v := f.start(t)

	_, err := f.svc.SaveProgress(ctx, studentID, v.ID, model.Answers{
		f.mc.ID.String(): raw("4"),
		f.tf.ID.String(): raw(true),
		f.es.ID.String(): raw("Split into factors."),
	}, 120, nil)
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, studentID, v.ID)
	require.NoError(t, err)

	res, err := f.svc.Result(ctx, studentID, v.ID)
	require.NoError(t, err)
	assert.False(t, res.Passed, "pending review never passes")

	_, err = f.svc.Review(ctx, v.ID, map[string]float64{f.mc.ID.String(): 1})
	require.ErrorIs(t, err, ErrNothingToReview)

	res, err = f.svc.Review(ctx, v.ID, map[string]float64{f.es.ID.String(): 10})
	require.NoError(t, err)
	assert.True(t, res.Attempt.IsReviewed)
	assert.False(t, res.Attempt.NeedsReview)
	assert.Equal(t, 6.0, *res.Attempt.Score, "award is capped at the question's marks")
	assert.Equal(t, 100.0, res.Percentage)
	assert.True(t, res.Passed)
	require.Len(t, res.Items, 3)
	assert.Equal(t, model.ItemReviewed, res.Items[2].Status)
}

func TestExpireOverdueFinalizesOnlyPastGrace(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()
	v := f.start(t)

	f.clock.Advance(10*time.Minute + 10*time.Second)
	n, err := f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "still inside the grace period")

	f.clock.Advance(time.Minute)
	n, err = f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := f.attempts.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, a.IsCompleted)
	assert.True(t, a.AutoSubmitted)
}

func TestExpireOverdueReachesPastFailingAttempts(t *testing.T) {
	f := newAttemptFixture(t, nil)
	f.svc.overdueBatch = 1
	ctx := context.Background()

	stuck := &model.Attempt{UserID: studentID, ExamID: f.exam.ID, AttemptNumber: 1, Answers: model.Answers{}}
	require.NoError(t, f.attempts.Create(ctx, stuck))
	f.clock.Advance(time.Minute)
	later := &model.Attempt{UserID: studentID + 1, ExamID: f.exam.ID, AttemptNumber: 1, Answers: model.Answers{}}
	require.NoError(t, f.attempts.Create(ctx, later))
	f.attempts.broken = map[uuid.UUID]bool{stuck.ID: true}

	f.clock.Advance(time.Hour)
	n, err := f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := f.attempts.GetByID(ctx, later.ID)
	require.NoError(t, err)
	assert.True(t, a.IsCompleted)
	a, err = f.attempts.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.False(t, a.IsCompleted)

	f.attempts.broken = nil
	n, err = f.svc.ExpireOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the failed attempt is retried on the next sweep")
}

func TestListMineReturnsNewestFirst(t *testing.T) {
	f := newAttemptFixture(t, nil)
	ctx := context.Background()

	first := f.start(t)
	_, err := f.svc.Finalize(ctx, studentID, first.ID)
	require.NoError(t, err)
	second := f.start(t)

	list, err := f.svc.ListMine(ctx, studentID, f.exam.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 2, list[0].AttemptNumber)
}
