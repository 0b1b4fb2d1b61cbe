package websocket

import (
	"github.com/examprep/examprep-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload carries every client action. Only autosave reads the
// answer fields; the whole answer map is sent each time.
type RequestPayload struct {
	Action    Action        `json:"action"`
	Answers   model.Answers `json:"answers,omitempty"`
	TimeTaken int           `json:"timeTaken,omitempty"`
	Version   *int64        `json:"version,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventTimer     Event = "timer"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// SavedResponse acknowledges an autosave.
type SavedResponse struct {
	Event            Event `json:"event"`
	Version          int64 `json:"version"`
	TimeTaken        int   `json:"timeTaken"`
	RemainingSeconds int   `json:"remainingSeconds"`
}

// TimerResponse is pushed by the server while the attempt is open.
type TimerResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remainingSeconds"`
}

// SubmittedResponse reports the finalized attempt.
type SubmittedResponse struct {
	Event         Event    `json:"event"`
	AttemptID     string   `json:"attemptId"`
	Score         *float64 `json:"score,omitempty"`
	TotalMarks    *float64 `json:"totalMarks,omitempty"`
	AutoSubmitted bool     `json:"autoSubmitted"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
