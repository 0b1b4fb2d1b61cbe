package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var nopLog = zerolog.Nop()

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		BcryptCost:     4,
		PaystackSecret: "sk_test_secret",
		AttemptGrace:   30 * time.Second,
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// ─── Users ─────────────────────────────────────────────────────────────

type fakeUsers struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int]*model.User{}}
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	c := *u
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// ─── Exams ─────────────────────────────────────────────────────────────

type fakeExams struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Exam
}

func newFakeExams(exams ...*model.Exam) *fakeExams {
	f := &fakeExams{items: map[uuid.UUID]*model.Exam{}}
	for _, e := range exams {
		f.items[e.ID] = e
	}
	return f
}

func (f *fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (f *fakeExams) List(_ context.Context, status *model.ExamStatus, limit, offset int) ([]model.Exam, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.items {
		if status == nil || e.Status == *status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	total := len(out)
	if offset >= len(out) {
		return []model.Exam{}, total, nil
	}
	return out[offset:min(offset+limit, len(out))], total, nil
}

func (f *fakeExams) ListPublished(ctx context.Context) ([]model.Exam, error) {
	status := model.ExamStatusPublished
	out, _, err := f.List(ctx, &status, 1000, 0)
	return out, err
}

func (f *fakeExams) Create(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	c := *e
	f.items[e.ID] = &c
	return nil
}

func (f *fakeExams) Update(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[e.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *e
	f.items[e.ID] = &c
	return nil
}

func (f *fakeExams) UpdateStatus(_ context.Context, id uuid.UUID, status model.ExamStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	return nil
}

func (f *fakeExams) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

// ─── Questions ─────────────────────────────────────────────────────────

type fakeQuestions struct {
	mu    sync.Mutex
	items map[uuid.UUID][]model.Question
}

func newFakeQuestions() *fakeQuestions {
	return &fakeQuestions{items: map[uuid.UUID][]model.Question{}}
}

func (f *fakeQuestions) add(examID uuid.UUID, qs ...model.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range qs {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.ExamID = examID
		q.Order = len(f.items[examID]) + 1
		f.items[examID] = append(f.items[examID], q)
	}
}

func (f *fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.Question(nil), f.items[examID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeQuestions) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, qs := range f.items {
		for _, q := range qs {
			if q.ID == id {
				c := q
				return &c, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeQuestions) Create(_ context.Context, q *model.Question) error {
	q.ID = uuid.New()
	f.add(q.ExamID, *q)
	f.mu.Lock()
	q.Order = len(f.items[q.ExamID])
	f.mu.Unlock()
	return nil
}

func (f *fakeQuestions) CreateBatch(_ context.Context, examID uuid.UUID, qs []model.Question) error {
	f.add(examID, qs...)
	return nil
}

func (f *fakeQuestions) Update(_ context.Context, q *model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.items[q.ExamID] {
		if existing.ID == q.ID {
			q.Order = existing.Order
			f.items[q.ExamID][i] = *q
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeQuestions) Delete(_ context.Context, examID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[examID][:0]
	found := false
	for _, q := range f.items[examID] {
		if q.ID == id {
			found = true
			continue
		}
		q.Order = len(kept) + 1
		kept = append(kept, q)
	}
	if !found {
		return repository.ErrNotFound
	}
	f.items[examID] = kept
	return nil
}

func (f *fakeQuestions) Reorder(_ context.Context, examID uuid.UUID, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		pos[id] = i + 1
	}
	for i := range f.items[examID] {
		f.items[examID][i].Order = pos[f.items[examID][i].ID]
	}
	return nil
}

// ─── Enrollments ───────────────────────────────────────────────────────

type fakeEnrollments struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Enrollment
}

func newFakeEnrollments() *fakeEnrollments {
	return &fakeEnrollments{items: map[uuid.UUID]*model.Enrollment{}}
}

func (f *fakeEnrollments) GetByUserAndExam(_ context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.items {
		if e.UserID == userID && e.ExamID == examID {
			c := *e
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeEnrollments) GetByReference(_ context.Context, ref string) (*model.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.items {
		if e.PaymentReference == ref {
			c := *e
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeEnrollments) Create(_ context.Context, e *model.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.UserID == e.UserID && existing.ExamID == e.ExamID {
			return repository.ErrDuplicateEnrollment
		}
	}
	e.ID = uuid.New()
	c := *e
	f.items[e.ID] = &c
	return nil
}

func (f *fakeEnrollments) Restart(_ context.Context, id uuid.UUID, ref string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = model.EnrollmentPending
	e.PaymentReference = ref
	e.Amount = amount
	e.PaidAt = nil
	return nil
}

func (f *fakeEnrollments) UpdateStatus(_ context.Context, id uuid.UUID, status model.EnrollmentStatus, paidAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	if paidAt != nil {
		e.PaidAt = paidAt
	}
	return nil
}

func (f *fakeEnrollments) ListByUser(_ context.Context, userID int) ([]model.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Enrollment{}
	for _, e := range f.items {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ─── Attempts ──────────────────────────────────────────────────────────

type fakeAttempts struct {
	mu    sync.Mutex
	clock interface{ Now() time.Time }
	items map[uuid.UUID]*model.Attempt
	exams *fakeExams
	// broken ids fail every locked update.
	broken map[uuid.UUID]bool
}

func newFakeAttempts(clock interface{ Now() time.Time }, exams *fakeExams) *fakeAttempts {
	return &fakeAttempts{clock: clock, exams: exams, items: map[uuid.UUID]*model.Attempt{}}
}

func copyAttempt(a *model.Attempt) *model.Attempt {
	c := *a
	c.Answers = make(model.Answers, len(a.Answers))
	for k, v := range a.Answers {
		c.Answers[k] = v
	}
	if a.Awards != nil {
		c.Awards = make(map[string]float64, len(a.Awards))
		for k, v := range a.Awards {
			c.Awards[k] = v
		}
	}
	return &c
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAttempt(a), nil
}

func (f *fakeAttempts) FindOpen(_ context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.items {
		if a.UserID == userID && a.ExamID == examID && !a.IsCompleted {
			return copyAttempt(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAttempts) CountByUserAndExam(_ context.Context, userID int, examID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.items {
		if a.UserID == userID && a.ExamID == examID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttempts) ListByUserAndExam(_ context.Context, userID int, examID uuid.UUID) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Attempt
	for _, a := range f.items {
		if a.UserID == userID && a.ExamID == examID {
			out = append(out, *copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber > out[j].AttemptNumber })
	return out, nil
}

func (f *fakeAttempts) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.UserID != a.UserID || existing.ExamID != a.ExamID {
			continue
		}
		// Mirrors uq_attempts_user_exam_number and uq_attempts_open_user_exam.
		if existing.AttemptNumber == a.AttemptNumber || !existing.IsCompleted {
			return repository.ErrDuplicateAttempt
		}
	}
	a.ID = uuid.New()
	a.StartedAt = f.clock.Now()
	a.UpdatedAt = a.StartedAt
	f.items[a.ID] = copyAttempt(a)
	return nil
}

func (f *fakeAttempts) UpdateProgress(_ context.Context, id uuid.UUID, answers model.Answers, timeTaken int, version *int64) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.IsCompleted {
		return copyAttempt(a), repository.ErrAttemptClosed
	}
	if version != nil && *version <= a.Version {
		return copyAttempt(a), repository.ErrStaleWrite
	}
	a.Answers = answers
	a.TimeTaken = max(a.TimeTaken, timeTaken)
	if version != nil {
		a.Version = *version
	} else {
		a.Version++
	}
	a.UpdatedAt = f.clock.Now()
	return copyAttempt(a), nil
}

func (f *fakeAttempts) UpdateLocked(_ context.Context, id uuid.UUID, fn func(a *model.Attempt) (bool, error)) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if f.broken[id] {
		return nil, errors.New("row lock timeout")
	}
	a := copyAttempt(stored)
	changed, err := fn(a)
	if err != nil {
		return nil, err
	}
	if !changed {
		return a, nil
	}
	a.Version++
	a.UpdatedAt = f.clock.Now()
	f.items[id] = copyAttempt(a)
	return a, nil
}

func (f *fakeAttempts) ListOverdue(_ context.Context, now time.Time, grace time.Duration, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var overdue []*model.Attempt
	for _, a := range f.items {
		if a.IsCompleted || slices.Contains(exclude, a.ID) {
			continue
		}
		exam, err := f.exams.GetByID(context.Background(), a.ExamID)
		if err != nil {
			continue
		}
		if a.StartedAt.Add(time.Duration(exam.Duration)*time.Minute + grace).Before(now) {
			overdue = append(overdue, a)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].StartedAt.Before(overdue[j].StartedAt) })
	var ids []uuid.UUID
	for _, a := range overdue {
		if len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (f *fakeAttempts) ListResultsByExam(_ context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamResultRow, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []model.ExamResultRow
	for _, a := range f.items {
		if a.ExamID != examID {
			continue
		}
		rows = append(rows, model.ExamResultRow{
			AttemptID:     a.ID,
			UserID:        a.UserID,
			Name:          "Student",
			Email:         "student@example.com",
			AttemptNumber: a.AttemptNumber,
			Score:         a.Score,
			TotalMarks:    a.TotalMarks,
			TimeTaken:     a.TimeTaken,
			IsCompleted:   a.IsCompleted,
			NeedsReview:   a.NeedsReview,
			StartedAt:     a.StartedAt,
			CompletedAt:   a.CompletedAt,
		})
	}
	total := len(rows)
	if limit > 0 {
		if offset >= len(rows) {
			return []model.ExamResultRow{}, total, nil
		}
		rows = rows[offset:min(offset+limit, len(rows))]
	}
	return rows, total, nil
}

// ─── Notifications ─────────────────────────────────────────────────────

type fakeNotifications struct {
	mu    sync.Mutex
	items []model.Notification
}

func (f *fakeNotifications) InsertBatch(_ context.Context, ns []model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range ns {
		n.ID = int64(len(f.items) + 1)
		f.items = append(f.items, n)
	}
	return nil
}

func (f *fakeNotifications) ListByUser(_ context.Context, userID, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Notification{}
	for i := len(f.items) - 1; i >= 0 && len(out) < limit; i-- {
		if f.items[i].UserID == userID {
			out = append(out, f.items[i])
		}
	}
	return out, nil
}

func (f *fakeNotifications) ListRecent(_ context.Context, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Notification{}
	for i := len(f.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.items[i])
	}
	return out, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, userID int, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].UserID == userID {
			now := time.Now()
			f.items[i].ReadAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}

// ─── Events and monitor ────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) AttemptChanged(context.Context, uuid.UUID) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

// staticPapers serves papers straight from the question fake.
type staticPapers struct {
	questions *fakeQuestions
}

func (p staticPapers) Paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	qs, _ := p.questions.ListByExam(ctx, exam.ID)
	paper := &model.ExamPaper{ExamID: exam.ID, Title: exam.Title, Duration: exam.Duration}
	for _, q := range qs {
		paper.Questions = append(paper.Questions, model.QuestionForStudent{ID: q.ID, Question: q.Question, Type: q.Type, Marks: q.Marks, Order: q.Order})
	}
	return paper, nil
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
