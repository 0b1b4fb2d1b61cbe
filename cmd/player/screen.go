package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/player"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const helpText = `A-D  choose option        P/N or arrows  previous/next
F    flag question         Space          question navigator
T    type an answer        S              submit
H/?  this help             Q              quit (progress is kept)`

// screen draws the player on a raw-mode terminal and implements player.Notifier.
type screen struct {
	out io.Writer
	log zerolog.Logger

	mu       sync.Mutex
	p        *player.Player
	toast    *player.Toast
	typing   []rune
	confirm  bool
	result   string
	finished chan struct{}
	doneOnce sync.Once
}

func newScreen(out io.Writer, log zerolog.Logger) *screen {
	return &screen{out: out, log: log, finished: make(chan struct{})}
}

func (s *screen) attach(p *player.Player) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *screen) Toast(level player.Level, message string) {
	s.log.Info().Str("level", string(level)).Str("message", message).Msg("Toast")
	s.mu.Lock()
	s.toast = &player.Toast{Level: level, Message: message}
	s.mu.Unlock()
	s.render()
}

func (s *screen) Results(attemptID uuid.UUID, autoSubmit bool) {
	s.mu.Lock()
	s.result = fmt.Sprintf("Attempt %s submitted.", attemptID)
	if autoSubmit {
		s.result = fmt.Sprintf("Time is up. Attempt %s was submitted automatically.", attemptID)
	}
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.finished) })
}

func (s *screen) Refresh() { s.render() }

// handle applies one key press. It returns false when the user quits.
func (s *screen) handle(ctx context.Context, session *player.Session, k player.Key) bool {
	s.mu.Lock()
	typing := s.typing != nil
	confirming := s.confirm
	s.mu.Unlock()

	if typing {
		s.typeKey(k)
		return true
	}
	if confirming {
		s.mu.Lock()
		s.confirm = false
		s.mu.Unlock()
		if k == 'y' || k == 'Y' {
			if err := session.Submit(); err != nil {
				s.log.Warn().Err(err).Msg("Submit failed")
			}
		}
		s.render()
		return true
	}

	switch k {
	case 'q', 'Q', 3: // Ctrl-C arrives as a byte in raw mode
		return false
	case 's', 'S':
		s.mu.Lock()
		s.confirm = true
		s.mu.Unlock()
		s.render()
		return true
	case 't', 'T':
		s.mu.Lock()
		s.typing = []rune{}
		s.mu.Unlock()
		s.p.SetTextFocus(true)
		s.render()
		return true
	}
	s.p.HandleKey(k)
	return true
}

func (s *screen) typeKey(k player.Key) {
	s.mu.Lock()
	switch k {
	case '\r', '\n':
		text := string(s.typing)
		s.typing = nil
		s.mu.Unlock()
		s.p.SetTextFocus(false)
		s.p.SetText(strings.Split(text, ";")...)
		return
	case 0x1b:
		s.typing = nil
		s.mu.Unlock()
		s.p.SetTextFocus(false)
		s.render()
		return
	case 0x7f, 0x08:
		if len(s.typing) > 0 {
			s.typing = s.typing[:len(s.typing)-1]
		}
	default:
		if k >= ' ' {
			s.typing = append(s.typing, rune(k))
		}
	}
	s.mu.Unlock()
	s.render()
}

func (s *screen) render() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return
	}
	st := s.p.State()

	var b strings.Builder
	b.WriteString("\x1b[H\x1b[2J")
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	if s.result != "" {
		line("%s", s.result)
		fmt.Fprint(s.out, b.String())
		return
	}
	if !st.Loaded {
		line("Loading exam...")
		s.writeToast(line)
		line("")
		line("Q quit")
		fmt.Fprint(s.out, b.String())
		return
	}

	line("%s    time left %02d:%02d    [%s]", st.Exam.Title, st.TimeLeft/60, st.TimeLeft%60, st.Status)
	line("%s", strings.Repeat("-", 60))

	if len(st.Questions) == 0 {
		line("No questions.")
	} else {
		q := st.Questions[st.Current]
		flag := ""
		if contains(st.Flagged, st.Current) {
			flag = "  [flagged]"
		}
		line("Question %d of %d  (%s, %.2g marks)%s", st.Current+1, len(st.Questions), q.Type, q.Marks, flag)
		line("")
		line("%s", q.Question)
		line("")
		answer := st.Answers[q.ID.String()]
		for i, opt := range q.Options {
			mark := " "
			if selected(q, answer, i) {
				mark = "*"
			}
			line(" %s %c) %s", mark, 'A'+i, opt)
		}
		if len(q.Options) == 0 && len(answer) > 0 {
			line("Your answer: %s", string(answer))
		}
	}

	if st.ShowNavigator {
		line("")
		var nav strings.Builder
		for i, q := range st.Questions {
			cell := fmt.Sprintf("%d", i+1)
			if _, ok := st.Answers[q.ID.String()]; ok {
				cell += "+"
			}
			if contains(st.Flagged, i) {
				cell += "!"
			}
			if i == st.Current {
				cell = "[" + cell + "]"
			}
			nav.WriteString(cell + " ")
		}
		line("Navigator: %s", nav.String())
	}
	if st.ShowHelp {
		line("")
		for _, l := range strings.Split(helpText, "\n") {
			line("%s", l)
		}
	}

	line("")
	switch {
	case s.typing != nil:
		line("Answer (Enter to keep, Esc to cancel; separate blanks with ;): %s", string(s.typing))
	case s.confirm:
		line("Submit your answers now? (y/n)")
	case st.Submitting:
		line("Submitting...")
	default:
		line("H for help")
	}
	s.writeToast(line)
	fmt.Fprint(s.out, b.String())
}

func (s *screen) writeToast(line func(string, ...any)) {
	if s.toast != nil {
		line("")
		line("[%s] %s", s.toast.Level, s.toast.Message)
	}
}

func selected(q model.QuestionForStudent, answer json.RawMessage, i int) bool {
	if len(answer) == 0 {
		return false
	}
	switch q.Type {
	case model.QuestionTypeTrueFalse:
		return string(answer) == fmt.Sprint(i == 0)
	default:
		return string(answer) == fmt.Sprint(i)
	}
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
