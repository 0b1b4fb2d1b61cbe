// Package player is the client side of a timed exam: local snapshot recovery,
// timer reconciliation, autosave, submission and keyboard navigation.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/google/uuid"
)

// SaveStatus is the autosave indicator.
type SaveStatus string

const (
	StatusSaved  SaveStatus = "saved"
	StatusSaving SaveStatus = "saving"
	StatusError  SaveStatus = "error"
)

var (
	ErrNotLoaded  = errors.New("player: exam not loaded")
	ErrSubmitting = errors.New("player: submission in progress")
	ErrSubmitted  = errors.New("player: attempt already submitted")
)

// timeoutHint is appended when an automatic submission fails.
const timeoutHint = "Time is up but your answers could not be submitted. Your progress is saved on this device; press S to retry."

// State is a read-only copy of the player for rendering.
type State struct {
	Loaded        bool
	Exam          *model.Exam
	Questions     []model.QuestionForStudent
	Answers       model.Answers
	Flagged       []int
	Current       int
	ShowNavigator bool
	ShowHelp      bool
	Status        SaveStatus
	Submitting    bool
	Submitted     bool
	TimeLeft      int
	TimeTaken     int
	LastSaved     time.Time
}

// Player holds the in-memory state of one attempt.
type Player struct {
	api    API
	store  SnapshotStore
	clock  countdown.Clock
	notify Notifier

	examID    uuid.UUID
	attemptID uuid.UUID

	mu            sync.Mutex
	loaded        bool
	exam          *model.Exam
	questions     []model.QuestionForStudent
	answers       model.Answers
	flagged       map[int]bool
	current       int
	showNavigator bool
	showHelp      bool
	textFocus     bool
	status        SaveStatus
	submitting    bool
	submitted     bool
	timeLeft      int
	timeTaken     int
	version       int64
	lastSaved     time.Time
}

// New creates a player for an existing attempt.
func New(api API, store SnapshotStore, clock countdown.Clock, notify Notifier, examID, attemptID uuid.UUID) *Player {
	return &Player{
		api:       api,
		store:     store,
		clock:     clock,
		notify:    notify,
		examID:    examID,
		attemptID: attemptID,
		answers:   model.Answers{},
		flagged:   make(map[int]bool),
		status:    StatusSaved,
	}
}

func (p *Player) key() string {
	return SnapshotKey(p.examID, p.attemptID)
}

// Open restores the local snapshot, then loads exam, questions and attempt.
// Locally restored answers win; server answers only fill question ids the
// snapshot does not have. A load failure is toasted and leaves the player
// unloaded.
func (p *Player) Open(ctx context.Context) error {
	if err := p.restore(); err != nil {
		p.notify.Toast(LevelWarning, "Saved progress on this device could not be read.")
	}
	p.notify.Refresh()

	exam, err := p.api.GetExam(ctx, p.examID)
	if err != nil {
		p.notify.Toast(LevelError, UserMessage(err))
		return err
	}
	questions, err := p.api.GetQuestions(ctx, p.examID)
	if err != nil {
		p.notify.Toast(LevelError, UserMessage(err))
		return err
	}
	attempt, err := p.api.GetAttempt(ctx, p.attemptID)
	if err != nil {
		p.notify.Toast(LevelError, UserMessage(err))
		return err
	}

	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	remaining := countdown.Remaining(exam.Duration, &attempt.StartedAt, attempt.TimeTaken, p.clock.Now())

	p.mu.Lock()
	p.exam = exam
	p.questions = questions
	for id, v := range attempt.Answers {
		if _, ok := p.answers[id]; !ok {
			p.answers[id] = v
		}
	}
	p.timeTaken = max(p.timeTaken, attempt.TimeTaken)
	p.version = max(p.version, attempt.Version)
	if p.current >= len(questions) {
		p.current = max(len(questions)-1, 0)
	}
	p.timeLeft = remaining
	p.submitted = attempt.IsCompleted
	if p.submitted {
		p.timeLeft = 0
	}
	p.loaded = true
	p.mu.Unlock()

	if attempt.IsCompleted {
		_ = p.store.Delete(p.key())
		p.notify.Results(p.attemptID, attempt.AutoSubmitted)
	}
	if len(questions) == 0 {
		p.notify.Toast(LevelWarning, "This exam has no questions yet.")
	}
	p.notify.Refresh()
	return nil
}

func (p *Player) restore() error {
	snap, err := p.store.Load(p.key())
	if err != nil || snap == nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Answers != nil {
		p.answers = snap.Answers
	}
	for _, idx := range snap.FlaggedQuestions {
		p.flagged[idx] = true
	}
	p.current = max(snap.Current, 0)
	if snap.TimeTaken != nil {
		p.timeTaken = *snap.TimeTaken
	}
	p.lastSaved = snap.LastSaved
	return nil
}

// State returns a snapshot of the player for rendering.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	answers := make(model.Answers, len(p.answers))
	for k, v := range p.answers {
		answers[k] = v
	}
	return State{
		Loaded:        p.loaded,
		Exam:          p.exam,
		Questions:     p.questions,
		Answers:       answers,
		Flagged:       p.flaggedList(),
		Current:       p.current,
		ShowNavigator: p.showNavigator,
		ShowHelp:      p.showHelp,
		Status:        p.status,
		Submitting:    p.submitting,
		Submitted:     p.submitted,
		TimeLeft:      p.timeLeft,
		TimeTaken:     p.timeTaken,
		LastSaved:     p.lastSaved,
	}
}

// TimeLeft returns the seconds left on the countdown.
func (p *Player) TimeLeft() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeLeft
}

func (p *Player) flaggedList() []int {
	out := make([]int, 0, len(p.flagged))
	for idx := range p.flagged {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// tick records one elapsed second.
func (p *Player) tick(left int) {
	p.mu.Lock()
	p.timeLeft = left
	limit := 0
	if p.exam != nil {
		limit = p.exam.Duration * 60
	}
	if p.timeTaken < limit {
		p.timeTaken++
	}
	p.mu.Unlock()
	p.notify.Refresh()
}

// Save writes the local snapshot and then sends the progress to the server.
// A failed save flips the indicator to error and toasts; the next autosave
// retries.
func (p *Player) Save(ctx context.Context) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if p.submitted {
		p.mu.Unlock()
		return ErrSubmitted
	}
	p.status = StatusSaving
	p.version++
	version := p.version
	timeTaken := p.timeTaken
	answers := make(model.Answers, len(p.answers))
	for k, v := range p.answers {
		answers[k] = v
	}
	snap := &Snapshot{
		Answers:          answers,
		FlaggedQuestions: p.flaggedList(),
		Current:          p.current,
		TimeTaken:        &timeTaken,
		LastSaved:        p.clock.Now(),
	}
	p.mu.Unlock()
	p.notify.Refresh()

	if err := p.store.Save(p.key(), snap); err != nil {
		p.notify.Toast(LevelWarning, "Progress could not be saved on this device.")
	}

	view, err := p.api.SaveProgress(ctx, p.attemptID, model.SaveProgressRequest{
		Answers:   answers,
		TimeTaken: &timeTaken,
		Version:   &version,
	})
	if err != nil {
		p.saveFailed(ctx, err)
		return err
	}

	p.mu.Lock()
	p.status = StatusSaved
	p.lastSaved = snap.LastSaved
	p.version = max(p.version, view.Version)
	p.timeTaken = max(p.timeTaken, view.TimeTaken)
	finished := view.IsCompleted && !p.submitted
	if finished {
		p.submitted = true
		p.timeLeft = 0
	}
	p.mu.Unlock()

	if finished {
		_ = p.store.Delete(p.key())
		p.notify.Results(p.attemptID, true)
	}
	p.notify.Refresh()
	return nil
}

func (p *Player) saveFailed(ctx context.Context, err error) {
	p.mu.Lock()
	p.status = StatusError
	p.mu.Unlock()

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == response.ErrStaleWrite {
		// Another session wrote a newer version; continue after it.
		if view, gerr := p.api.GetAttempt(ctx, p.attemptID); gerr == nil {
			p.mu.Lock()
			p.version = max(p.version, view.Version)
			p.mu.Unlock()
		}
	}
	p.notify.Toast(LevelWarning, UserMessage(err))
	p.notify.Refresh()
}

// Submit saves, then finalizes the attempt. On success the local snapshot is
// removed and the view navigates to the results. auto marks a timeout.
func (p *Player) Submit(ctx context.Context, auto bool) error {
	p.mu.Lock()
	switch {
	case !p.loaded:
		p.mu.Unlock()
		return ErrNotLoaded
	case p.submitted:
		p.mu.Unlock()
		return ErrSubmitted
	case p.submitting:
		p.mu.Unlock()
		return ErrSubmitting
	}
	p.submitting = true
	p.mu.Unlock()
	p.notify.Refresh()

	// A failed save is already toasted; the server still grades what it has.
	_ = p.Save(ctx)

	// A save past the time bound is finalized by the server, and Save has
	// already navigated to the results.
	p.mu.Lock()
	if p.submitted {
		p.submitting = false
		p.mu.Unlock()
		p.notify.Refresh()
		return nil
	}
	p.mu.Unlock()

	view, err := p.api.Finalize(ctx, p.attemptID)
	if err != nil {
		p.mu.Lock()
		p.submitting = false
		if auto {
			p.timeLeft = 0
		}
		p.mu.Unlock()

		msg := UserMessage(err)
		if auto {
			msg = msg + " " + timeoutHint
		}
		p.notify.Toast(LevelError, msg)
		p.notify.Refresh()
		return err
	}

	p.mu.Lock()
	p.submitting = false
	p.submitted = true
	p.timeLeft = 0
	p.mu.Unlock()

	if err := p.store.Delete(p.key()); err != nil {
		p.notify.Toast(LevelWarning, "Local progress could not be cleared.")
	}
	p.notify.Results(p.attemptID, auto || view.AutoSubmitted)
	p.notify.Refresh()
	return nil
}

// ─── Answering and navigation ──────────────────────────────────────────

// SelectOption answers the current question with option idx. Choice
// questions only; a new selection replaces the previous one.
func (p *Player) SelectOption(idx int) bool {
	p.mu.Lock()
	q, ok := p.currentQuestion()
	if !ok || p.submitted || idx < 0 {
		p.mu.Unlock()
		return false
	}

	var value json.RawMessage
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		if idx >= len(q.Options) {
			p.mu.Unlock()
			return false
		}
		value = json.RawMessage(strconv.Itoa(idx))
	case model.QuestionTypeTrueFalse:
		if idx > 1 {
			p.mu.Unlock()
			return false
		}
		value = json.RawMessage(strconv.FormatBool(idx == 0))
	default:
		p.mu.Unlock()
		return false
	}
	p.answers[q.ID.String()] = value
	p.mu.Unlock()
	p.notify.Refresh()
	return true
}

// SetText answers the current written question. For fill-in-the-blanks the
// parts are the blanks in order; other types take the first part.
func (p *Player) SetText(parts ...string) bool {
	p.mu.Lock()
	q, ok := p.currentQuestion()
	if !ok || p.submitted || len(parts) == 0 {
		p.mu.Unlock()
		return false
	}

	var (
		value []byte
		err   error
	)
	switch q.Type {
	case model.QuestionTypeFillBlanks:
		value, err = json.Marshal(parts)
	case model.QuestionTypeShortAnswer, model.QuestionTypeEssay:
		value, err = json.Marshal(parts[0])
	default:
		p.mu.Unlock()
		return false
	}
	if err != nil {
		p.mu.Unlock()
		return false
	}
	p.answers[q.ID.String()] = value
	p.mu.Unlock()
	p.notify.Refresh()
	return true
}

func (p *Player) currentQuestion() (model.QuestionForStudent, bool) {
	if !p.loaded || p.current < 0 || p.current >= len(p.questions) {
		return model.QuestionForStudent{}, false
	}
	return p.questions[p.current], true
}

// GoTo moves to question index i.
func (p *Player) GoTo(i int) bool {
	p.mu.Lock()
	if i < 0 || i >= len(p.questions) {
		p.mu.Unlock()
		return false
	}
	p.current = i
	p.mu.Unlock()
	p.notify.Refresh()
	return true
}

func (p *Player) step(delta int) bool {
	p.mu.Lock()
	next := p.current + delta
	p.mu.Unlock()
	return p.GoTo(next)
}

// ToggleFlag flags or unflags the current question.
func (p *Player) ToggleFlag() bool {
	p.mu.Lock()
	if !p.loaded || len(p.questions) == 0 {
		p.mu.Unlock()
		return false
	}
	if p.flagged[p.current] {
		delete(p.flagged, p.current)
	} else {
		p.flagged[p.current] = true
	}
	p.mu.Unlock()
	p.notify.Refresh()
	return true
}

// SetTextFocus records whether a text input has focus. Shortcuts are ignored
// while it does.
func (p *Player) SetTextFocus(focused bool) {
	p.mu.Lock()
	p.textFocus = focused
	p.mu.Unlock()
}

// Key is a keyboard input: a rune, or one of the arrow constants.
type Key rune

const (
	KeyLeft  Key = -1
	KeyRight Key = -2
)

// HandleKey applies a shortcut and reports whether it was consumed.
func (p *Player) HandleKey(k Key) bool {
	p.mu.Lock()
	focused := p.textFocus
	p.mu.Unlock()
	if focused {
		return false
	}

	switch k {
	case 'a', 'A', 'b', 'B', 'c', 'C', 'd', 'D':
		return p.SelectOption(int(toUpper(k) - 'A'))
	case 'p', 'P', KeyLeft:
		return p.step(-1)
	case 'n', 'N', KeyRight:
		return p.step(1)
	case 'f', 'F':
		return p.ToggleFlag()
	case ' ':
		p.mu.Lock()
		p.showNavigator = !p.showNavigator
		p.mu.Unlock()
	case 'h', 'H', '?':
		p.mu.Lock()
		p.showHelp = !p.showHelp
		p.mu.Unlock()
	default:
		return false
	}
	p.notify.Refresh()
	return true
}

func toUpper(k Key) Key {
	if k >= 'a' && k <= 'z' {
		return k - ('a' - 'A')
	}
	return k
}
