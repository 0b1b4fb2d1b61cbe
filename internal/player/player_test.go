package player

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu          sync.Mutex
	exam        *model.Exam
	questions   []model.QuestionForStudent
	attempt     *model.AttemptView
	calls       []string
	saves       []model.SaveProgressRequest
	saveErr     error
	finalizeErr error
	gate        chan struct{} // when set, GetExam waits on it

	// finalizeOnSave makes saves land past the time bound.
	finalizeOnSave bool
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.record("exam")
	return f.exam, nil
}

func (f *fakeAPI) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.QuestionForStudent, error) {
	f.record("questions")
	return f.questions, nil
}

func (f *fakeAPI) StartAttempt(ctx context.Context, examID uuid.UUID) (*model.AttemptView, error) {
	f.record("start")
	return f.attempt, nil
}

func (f *fakeAPI) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AttemptView, error) {
	f.record("attempt")
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.attempt
	return &cp, nil
}

func (f *fakeAPI) SaveProgress(ctx context.Context, attemptID uuid.UUID, req model.SaveProgressRequest) (*model.AttemptView, error) {
	f.record("save")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saves = append(f.saves, req)
	f.attempt.Answers = req.Answers
	f.attempt.TimeTaken = max(f.attempt.TimeTaken, *req.TimeTaken)
	f.attempt.Version = *req.Version
	if f.finalizeOnSave {
		f.attempt.IsCompleted = true
		f.attempt.AutoSubmitted = true
	}
	cp := *f.attempt
	return &cp, nil
}

func (f *fakeAPI) Finalize(ctx context.Context, attemptID uuid.UUID) (*model.AttemptView, error) {
	f.record("finalize")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	f.attempt.IsCompleted = true
	cp := *f.attempt
	return &cp, nil
}

func count(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func newFixture(durationMin int, startedAt time.Time) (*fakeAPI, uuid.UUID, uuid.UUID) {
	examID, attemptID := uuid.New(), uuid.New()
	api := &fakeAPI{
		exam: &model.Exam{ID: examID, Title: "Algebra", Duration: durationMin, Status: model.ExamStatusPublished},
		questions: []model.QuestionForStudent{
			{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Options: []string{"1", "2", "3", "4"}, Marks: 1, Order: 1},
			{ID: uuid.New(), Type: model.QuestionTypeTrueFalse, Options: []string{"True", "False"}, Marks: 1, Order: 2},
			{ID: uuid.New(), Type: model.QuestionTypeShortAnswer, Marks: 2, Order: 3},
		},
		attempt: &model.AttemptView{
			Attempt:  model.Attempt{ID: attemptID, ExamID: examID, StartedAt: startedAt, Answers: model.Answers{}},
			Duration: durationMin,
		},
	}
	return api, examID, attemptID
}

func TestOpenReconcilesRemainingTime(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, examID, attemptID := newFixture(10, t0.Add(-5*time.Minute))
	p := New(api, NewMemoryStore(), clock, &Recorder{}, examID, attemptID)

	require.NoError(t, p.Open(context.Background()))

	st := p.State()
	assert.True(t, st.Loaded)
	assert.Len(t, st.Questions, 3)
	assert.InDelta(t, 300, st.TimeLeft, 1)
}

func TestOpenRestoresSnapshotBeforeNetwork(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, examID, attemptID := newFixture(10, t0)
	q1 := api.questions[0].ID.String()
	api.gate = make(chan struct{})

	store := NewMemoryStore()
	require.NoError(t, store.Save(SnapshotKey(examID, attemptID), &Snapshot{
		Answers: model.Answers{q1: json.RawMessage("1")},
		Current: 2,
	}))

	p := New(api, store, clock, &Recorder{}, examID, attemptID)
	done := make(chan error, 1)
	go func() { done <- p.Open(context.Background()) }()

	require.Eventually(t, func() bool { return p.State().Current == 2 }, time.Second, time.Millisecond)
	st := p.State()
	assert.False(t, st.Loaded)
	assert.JSONEq(t, "1", string(st.Answers[q1]))
	assert.Empty(t, api.Calls())

	close(api.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, p.State().Current)
}

func TestOpenLocalAnswersWin(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, examID, attemptID := newFixture(10, t0)
	q1, q2 := api.questions[0].ID.String(), api.questions[1].ID.String()
	api.attempt.Answers = model.Answers{q1: json.RawMessage("3"), q2: json.RawMessage("false")}

	store := NewMemoryStore()
	require.NoError(t, store.Save(SnapshotKey(examID, attemptID), &Snapshot{Answers: model.Answers{q1: json.RawMessage("0")}}))

	p := New(api, store, clock, &Recorder{}, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	st := p.State()
	assert.JSONEq(t, "0", string(st.Answers[q1]))
	assert.JSONEq(t, "false", string(st.Answers[q2]))
}

func TestOpenFailureStaysUnloaded(t *testing.T) {
	rec := &Recorder{}
	p := New(failingAPI{}, NewMemoryStore(), countdown.NewManualClock(t0), rec, uuid.New(), uuid.New())

	require.Error(t, p.Open(context.Background()))
	assert.False(t, p.State().Loaded)
	require.Len(t, rec.Toasts(), 1)
	assert.Equal(t, "Exam not found", rec.Toasts()[0].Message)
	assert.ErrorIs(t, p.Save(context.Background()), ErrNotLoaded)
}

type failingAPI struct{ API }

func (failingAPI) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return nil, &APIError{Status: http.StatusNotFound, Code: response.ErrNotFound, Message: "Exam not found"}
}

func TestSelectOptionOverwrites(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	p := New(api, NewMemoryStore(), countdown.NewManualClock(t0), &Recorder{}, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))
	q1 := api.questions[0].ID.String()

	assert.True(t, p.HandleKey('B'))
	assert.True(t, p.HandleKey('a'))

	st := p.State()
	assert.Len(t, st.Answers, 1)
	assert.JSONEq(t, "0", string(st.Answers[q1]))
}

func TestKeyboardShortcuts(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	p := New(api, NewMemoryStore(), countdown.NewManualClock(t0), &Recorder{}, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	assert.True(t, p.HandleKey('n'))
	assert.True(t, p.HandleKey(KeyRight))
	assert.Equal(t, 2, p.State().Current)
	assert.False(t, p.HandleKey('N'), "already on the last question")
	assert.True(t, p.HandleKey(KeyLeft))
	assert.Equal(t, 1, p.State().Current)

	assert.True(t, p.HandleKey('B'))
	q2 := api.questions[1].ID.String()
	assert.JSONEq(t, "false", string(p.State().Answers[q2]))
	assert.False(t, p.HandleKey('C'), "true/false has two options")

	assert.True(t, p.HandleKey('f'))
	assert.Equal(t, []int{1}, p.State().Flagged)
	assert.True(t, p.HandleKey('F'))
	assert.Empty(t, p.State().Flagged)

	assert.True(t, p.HandleKey(' '))
	assert.True(t, p.State().ShowNavigator)
	assert.True(t, p.HandleKey('?'))
	assert.True(t, p.State().ShowHelp)
	assert.True(t, p.HandleKey('h'))
	assert.False(t, p.State().ShowHelp)

	p.SetTextFocus(true)
	assert.False(t, p.HandleKey('p'))
	assert.False(t, p.HandleKey('a'))
	assert.Equal(t, 1, p.State().Current)
	p.SetTextFocus(false)
	assert.True(t, p.HandleKey('p'))
	assert.Equal(t, 0, p.State().Current)
}

func TestSaveRoundTrip(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	store := NewMemoryStore()
	p := New(api, store, countdown.NewManualClock(t0), &Recorder{}, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	require.True(t, p.SelectOption(2))
	p.mu.Lock()
	p.timeTaken = 45
	p.mu.Unlock()

	require.NoError(t, p.Save(context.Background()))
	assert.Equal(t, StatusSaved, p.State().Status)

	reloaded, err := api.GetAttempt(context.Background(), attemptID)
	require.NoError(t, err)
	q1 := api.questions[0].ID.String()
	assert.JSONEq(t, "2", string(reloaded.Answers[q1]))
	assert.GreaterOrEqual(t, reloaded.TimeTaken, 45)
	assert.Equal(t, int64(1), reloaded.Version)

	snap, err := store.Load(SnapshotKey(examID, attemptID))
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 45, *snap.TimeTaken)
}

func TestSaveFailureIsNonFatal(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	rec := &Recorder{}
	p := New(api, NewMemoryStore(), countdown.NewManualClock(t0), rec, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	api.saveErr = errors.New("connection refused")
	require.Error(t, p.Save(context.Background()))
	assert.Equal(t, StatusError, p.State().Status)
	require.NotEmpty(t, rec.Toasts())
	assert.Equal(t, FallbackMessage, rec.Toasts()[0].Message)

	assert.True(t, p.SelectOption(1), "typing continues after a failed save")
	api.saveErr = nil
	require.NoError(t, p.Save(context.Background()))
	assert.Equal(t, StatusSaved, p.State().Status)
}

func TestSubmitSavesThenFinalizes(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	store := NewMemoryStore()
	rec := &Recorder{}
	p := New(api, store, countdown.NewManualClock(t0), rec, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	require.NoError(t, p.Submit(context.Background(), false))
	assert.Equal(t, []string{"exam", "questions", "attempt", "save", "finalize"}, api.Calls())

	snap, _ := store.Load(SnapshotKey(examID, attemptID))
	assert.Nil(t, snap)
	id, auto, ok := rec.Navigated()
	assert.True(t, ok)
	assert.Equal(t, attemptID, id)
	assert.False(t, auto)
	assert.ErrorIs(t, p.Submit(context.Background(), false), ErrSubmitted)
}

func TestSubmitAfterServerFinalizedSaveNavigatesOnce(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	store := NewMemoryStore()
	rec := &Recorder{}
	p := New(api, store, countdown.NewManualClock(t0), rec, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	api.finalizeOnSave = true
	require.NoError(t, p.Submit(context.Background(), true))

	assert.Equal(t, []string{"exam", "questions", "attempt", "save"}, api.Calls())
	assert.Equal(t, 1, rec.Navigations())
	_, auto, _ := rec.Navigated()
	assert.True(t, auto)

	st := p.State()
	assert.True(t, st.Submitted)
	assert.False(t, st.Submitting)
	assert.Equal(t, 0, st.TimeLeft)
	snap, _ := store.Load(SnapshotKey(examID, attemptID))
	assert.Nil(t, snap)
}

func TestSubmitFailureClearsSubmitting(t *testing.T) {
	api, examID, attemptID := newFixture(10, t0)
	rec := &Recorder{}
	p := New(api, NewMemoryStore(), countdown.NewManualClock(t0), rec, examID, attemptID)
	require.NoError(t, p.Open(context.Background()))

	api.finalizeErr = &APIError{Status: http.StatusForbidden, Message: "Access denied"}
	require.Error(t, p.Submit(context.Background(), false))

	st := p.State()
	assert.False(t, st.Submitting)
	assert.False(t, st.Submitted)
	toasts := rec.Toasts()
	assert.Equal(t, Toast{Level: LevelError, Message: "Access denied"}, toasts[len(toasts)-1])
	_, _, navigated := rec.Navigated()
	assert.False(t, navigated)
}

func TestClientSurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPatch:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"data":null,"error":{"code":"STALE_WRITE","message":"A newer save already exists"}}`))
		case http.MethodPost:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		default:
			_, _ = w.Write([]byte(`{"success":true,"data":{"attempt":{"id":"` + uuid.Nil.String() + `","timeTaken":12,"remainingSeconds":30}}}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	ctx := context.Background()

	view, err := c.GetAttempt(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 12, view.TimeTaken)
	assert.Equal(t, 30, view.RemainingSeconds)

	tt := 1
	_, err = c.SaveProgress(ctx, uuid.New(), model.SaveProgressRequest{Answers: model.Answers{}, TimeTaken: &tt})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, response.ErrStaleWrite, apiErr.Code)
	assert.Equal(t, "A newer save already exists", UserMessage(err))

	_, err = c.Finalize(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, FallbackMessage, UserMessage(err))
}

func TestOpenWithEmptyExamPayloadStaysUnloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	exam, err := c.GetExam(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Nil(t, exam)
	assert.Equal(t, FallbackMessage, UserMessage(err))

	rec := &Recorder{}
	p := New(c, NewMemoryStore(), countdown.NewManualClock(t0), rec, uuid.New(), uuid.New())
	require.NotPanics(t, func() {
		require.Error(t, p.Open(context.Background()))
	})
	assert.False(t, p.State().Loaded)
	require.Len(t, rec.Toasts(), 1)
	assert.Equal(t, FallbackMessage, rec.Toasts()[0].Message)
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	key := SnapshotKey(uuid.New(), uuid.New())

	snap, err := store.Load(key)
	require.NoError(t, err)
	assert.Nil(t, snap)

	tt := 90
	require.NoError(t, store.Save(key, &Snapshot{
		Answers:          model.Answers{"q1": json.RawMessage("1")},
		FlaggedQuestions: []int{0, 2},
		Current:          2,
		TimeTaken:        &tt,
		LastSaved:        t0,
	}))
	snap, err = store.Load(key)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, []int{0, 2}, snap.FlaggedQuestions)
	assert.True(t, t0.Equal(snap.LastSaved))

	require.NoError(t, store.Delete(key))
	require.NoError(t, store.Delete(key))
	snap, err = store.Load(key)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
