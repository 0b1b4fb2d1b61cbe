package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/examprep/examprep-backend/internal/countdown"
	"github.com/examprep/examprep-backend/internal/middleware"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	ws "github.com/examprep/examprep-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// timerPushEvery is how often, in seconds, the stream reports the countdown.
	timerPushEvery = 15
	// timerFinalSeconds are reported on every tick, down to 0 at the deadline.
	timerFinalSeconds = 10
)

func timerPushDue(left int) bool {
	return left%timerPushEvery == 0 || left <= timerFinalSeconds
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams an open attempt over a WebSocket.
type WSHandler struct {
	attempts Attempts
	clock    countdown.Clock
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts Attempts, clock countdown.Clock, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		clock:    clock,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/exams/attempts/:attempt_id/stream
// Accepts autosave, submit and ping actions and pushes the server countdown.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership and expiry are settled before the upgrade so failures stay plain HTTP.
	view, err := h.attempts.Get(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	userID := claims.UserID
	wsLog := h.log.With().
		Int("user_id", userID).
		Str("attempt_id", attemptID.String()).
		Logger()

	if view.IsCompleted {
		_ = conn.WriteTyped(submitted(view))
		return
	}

	timer := countdown.Start(h.clock, view.RemainingSeconds, func(left int) {
		if timerPushDue(left) {
			_ = conn.WriteTyped(ws.TimerResponse{Event: ws.EventTimer, RemainingSeconds: left})
		}
	}, nil)
	defer timer.Stop()

	_ = conn.WriteTyped(ws.TimerResponse{Event: ws.EventTimer, RemainingSeconds: view.RemainingSeconds})
	wsLog.Info().Msg("Attempt stream connected")

	ctx := context.Background()
	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			if done := h.handleAutosave(ctx, conn, userID, attemptID, &msg); done {
				return
			}
		case ws.ActionSubmit:
			if done := h.handleSubmit(ctx, conn, wsLog, userID, attemptID); done {
				return
			}
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave stores the full answer map. It reports true when the save
// reached the time bound and the attempt was finalized.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *ws.Conn, userID int, attemptID uuid.UUID, msg *ws.RequestPayload) bool {
	if msg.Answers == nil {
		_ = conn.WriteError(string(response.ErrValidation), "answers is required")
		return false
	}
	if msg.TimeTaken < 0 {
		_ = conn.WriteError(string(response.ErrValidation), "timeTaken must be 0 or greater")
		return false
	}

	view, err := h.attempts.SaveProgress(ctx, userID, attemptID, msg.Answers, msg.TimeTaken, msg.Version)
	if err != nil {
		_, code := statusFor(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
		return false
	}

	if view.IsCompleted {
		_ = conn.WriteTyped(submitted(view))
		return true
	}
	_ = conn.WriteTyped(ws.SavedResponse{
		Event:            ws.EventSaved,
		Version:          view.Version,
		TimeTaken:        view.TimeTaken,
		RemainingSeconds: view.RemainingSeconds,
	})
	return false
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, userID int, attemptID uuid.UUID) bool {
	view, err := h.attempts.Finalize(ctx, userID, attemptID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Finalize over stream failed")
		_, code := statusFor(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
		return false
	}
	_ = conn.WriteTyped(submitted(view))
	return true
}

func submitted(view *model.AttemptView) ws.SubmittedResponse {
	return ws.SubmittedResponse{
		Event:         ws.EventSubmitted,
		AttemptID:     view.ID.String(),
		Score:         view.Score,
		TotalMarks:    view.TotalMarks,
		AutoSubmitted: view.AutoSubmitted,
	}
}
