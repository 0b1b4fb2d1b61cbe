package player

import (
	"sync"

	"github.com/google/uuid"
)

// Level grades a toast.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier is the player's view layer.
type Notifier interface {
	// Toast shows a transient message.
	Toast(level Level, message string)
	// Results navigates to the results view of a submitted attempt.
	Results(attemptID uuid.UUID, autoSubmit bool)
	// Refresh redraws after a state change.
	Refresh()
}

// Toast is one recorded notification.
type Toast struct {
	Level   Level
	Message string
}

// Recorder is a Notifier that keeps everything it is told. The terminal
// player wraps it; tests inspect it.
type Recorder struct {
	mu         sync.Mutex
	toasts     []Toast
	resultsFor *uuid.UUID
	auto       bool
	navigated  int
	refreshes  int
}

func (r *Recorder) Toast(level Level, message string) {
	r.mu.Lock()
	r.toasts = append(r.toasts, Toast{Level: level, Message: message})
	r.mu.Unlock()
}

func (r *Recorder) Results(attemptID uuid.UUID, autoSubmit bool) {
	r.mu.Lock()
	r.resultsFor = &attemptID
	r.auto = autoSubmit
	r.navigated++
	r.mu.Unlock()
}

func (r *Recorder) Refresh() {
	r.mu.Lock()
	r.refreshes++
	r.mu.Unlock()
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Navigated reports whether Results was called, and with which arguments.
func (r *Recorder) Navigated() (uuid.UUID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resultsFor == nil {
		return uuid.Nil, false, false
	}
	return *r.resultsFor, r.auto, true
}

// Navigations counts Results calls.
func (r *Recorder) Navigations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.navigated
}
