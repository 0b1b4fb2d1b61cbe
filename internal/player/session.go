package player

import (
	"context"
	"sync"
	"time"

	"github.com/examprep/examprep-backend/internal/countdown"
)

// DefaultAutosaveInterval is how often progress is pushed while the exam runs.
const DefaultAutosaveInterval = 30 * time.Second

// Session owns the two tickers of a running attempt: the one-second
// countdown and the autosave interval. Both are released by Close.
type Session struct {
	player   *Player
	clock    countdown.Clock
	autosave time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	timer       *countdown.Timer
	saveTicker  countdown.Ticker
	timeoutOnce sync.Once
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewSession prepares a session for an opened player. An autosave interval
// of zero or less disables periodic saves.
func NewSession(p *Player, clock countdown.Clock, autosave time.Duration) *Session {
	return &Session{
		player:   p,
		clock:    clock,
		autosave: autosave,
	}
}

// Start begins the countdown from the player's reconciled time left. When it
// reaches zero the session saves and submits exactly once.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.player.State().Submitted {
		return
	}

	if s.autosave > 0 {
		s.saveTicker = s.clock.NewTicker(s.autosave)
		s.wg.Add(1)
		go s.autosaveLoop(s.saveTicker)
	}
	s.timer = countdown.Start(s.clock, s.player.TimeLeft(), s.player.tick, s.onTimeout)
}

func (s *Session) autosaveLoop(t countdown.Ticker) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-t.C():
			if !ok {
				return
			}
			if s.player.State().Submitting {
				continue
			}
			_ = s.player.Save(s.ctx)
		}
	}
}

// onTimeout runs on the countdown goroutine. Submission happens off it so
// Close can wait for the timer without deadlocking.
func (s *Session) onTimeout() {
	s.timeoutOnce.Do(func() {
		if s.saveTicker != nil {
			s.saveTicker.Stop()
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Submit performs the final save before finalizing.
			_ = s.player.Submit(s.ctx, true)
		}()
	})
}

// Submit is a manual submission. The countdown stops once it succeeds.
func (s *Session) Submit() error {
	if err := s.player.Submit(s.ctx, false); err != nil {
		return err
	}
	s.stopTimers()
	return nil
}

// Done is closed when the countdown has finished or been stopped.
func (s *Session) Done() <-chan struct{} {
	if s.timer == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.timer.Done()
}

func (s *Session) stopTimers() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.saveTicker != nil {
		s.saveTicker.Stop()
	}
}

// Close stops both tickers and waits for in-flight saves and submissions.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.stopTimers()
		if s.timer != nil {
			<-s.timer.Done()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}
