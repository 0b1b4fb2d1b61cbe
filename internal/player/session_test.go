package player

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSession(t *testing.T, api *fakeAPI, rec *Recorder, clock *countdown.ManualClock, autosave time.Duration) (*Player, *Session) {
	t.Helper()
	p := New(api, NewMemoryStore(), clock, rec, api.exam.ID, api.attempt.ID)
	require.NoError(t, p.Open(context.Background()))

	s := NewSession(p, clock, autosave)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return p, s
}

func TestSessionTimeoutSavesThenSubmitsOnce(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, _, attemptID := newFixture(1, t0)
	rec := &Recorder{}
	p, s := openSession(t, api, rec, clock, 0)
	require.Equal(t, 60, p.TimeLeft())

	clock.Advance(61 * time.Second)

	require.Eventually(t, func() bool { return count(api.Calls(), "finalize") == 1 }, time.Second, time.Millisecond)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("countdown still running")
	}

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"exam", "questions", "attempt", "save", "finalize"}, api.Calls())
	assert.Equal(t, 0, p.TimeLeft())
	id, auto, ok := rec.Navigated()
	require.True(t, ok)
	assert.Equal(t, attemptID, id)
	assert.True(t, auto)
	require.Len(t, api.saves, 1)
	assert.Equal(t, 60, *api.saves[0].TimeTaken)
}

func TestSessionTimeoutFailureLeavesFeedback(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, _, _ := newFixture(1, t0)
	api.finalizeErr = errors.New("network down")
	rec := &Recorder{}
	p, _ := openSession(t, api, rec, clock, 0)

	clock.Advance(60 * time.Second)

	require.Eventually(t, func() bool { return count(api.Calls(), "finalize") == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.Toasts()) > 0 }, time.Second, time.Millisecond)

	st := p.State()
	assert.Equal(t, 0, st.TimeLeft)
	assert.False(t, st.Submitting)
	assert.False(t, st.Submitted)
	last := rec.Toasts()[len(rec.Toasts())-1]
	assert.Equal(t, LevelError, last.Level)
	assert.True(t, strings.Contains(last.Message, "press S to retry"))

	// The manual retry uses the same submit path.
	api.finalizeErr = nil
	require.NoError(t, p.Submit(context.Background(), true))
	assert.Equal(t, 2, count(api.Calls(), "finalize"))
}

func TestSessionAutosavesOnInterval(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, _, _ := newFixture(10, t0)
	p, _ := openSession(t, api, &Recorder{}, clock, DefaultAutosaveInterval)

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return count(api.Calls(), "save") == 1 }, time.Second, time.Millisecond)

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return count(api.Calls(), "save") == 2 }, time.Second, time.Millisecond)

	assert.Zero(t, count(api.Calls(), "finalize"))
	require.Eventually(t, func() bool { return p.TimeLeft() == 540 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.State().Status == StatusSaved }, time.Second, time.Millisecond)
}

func TestSessionManualSubmitStopsCountdown(t *testing.T) {
	clock := countdown.NewManualClock(t0)
	api, _, _ := newFixture(10, t0)
	p, s := openSession(t, api, &Recorder{}, clock, DefaultAutosaveInterval)

	clock.Advance(5 * time.Second)
	require.NoError(t, s.Submit())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("countdown still running")
	}
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, count(api.Calls(), "save"))
	assert.Equal(t, 1, count(api.Calls(), "finalize"))
	assert.True(t, p.State().Submitted)
}
