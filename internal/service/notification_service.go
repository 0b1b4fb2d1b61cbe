package service

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/rs/zerolog"
)

// Notification channels. Only in-app notifications are delivered by this
// service; email rows are picked up by an external mailer.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// notificationRule turns one event type into notifications.
type notificationRule struct {
	channels []string
	subject  *template.Template
	body     *template.Template
}

func newRule(subject, body string, channels ...string) notificationRule {
	return notificationRule{
		channels: channels,
		subject:  template.Must(template.New("subject").Parse(subject)),
		body:     template.Must(template.New("body").Option("missingkey=zero").Parse(body)),
	}
}

var notificationRules = map[string]notificationRule{
	config.EventKey.EnrollmentCompleted: newRule(
		"You're enrolled in {{.ExamTitle}}",
		"Your enrollment in {{.ExamTitle}} is confirmed. You can start the exam whenever you're ready.",
		ChannelInApp, ChannelEmail,
	),
	config.EventKey.AttemptStarted: newRule(
		"Attempt {{.Data.attemptNumber}} started",
		"You started attempt {{.Data.attemptNumber}} of {{.ExamTitle}}. You have {{.Duration}} minutes.",
		ChannelInApp,
	),
	config.EventKey.AttemptCompleted: newRule(
		"Your result for {{.ExamTitle}}",
		"{{if .Data.needsReview}}Your answers to {{.ExamTitle}} were submitted and are awaiting review."+
			"{{else}}You scored {{.Data.score}} out of {{.Data.totalMarks}} on {{.ExamTitle}}.{{end}}"+
			"{{if .Data.autoSubmitted}} The attempt was submitted automatically when time ran out.{{end}}",
		ChannelInApp, ChannelEmail,
	),
}

// notificationView is the data a rule template renders.
type notificationView struct {
	ExamTitle string
	Duration  int
	Data      map[string]any
}

// NotificationService renders domain events into notifications and serves the
// notification log.
type NotificationService struct {
	exams ExamStore
	store NotificationStore
	log   zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(exams ExamStore, store NotificationStore, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		exams: exams,
		store: store,
		log:   log.With().Str("component", "notification_service").Logger(),
	}
}

// Render applies the automation rule for e. Events without a rule yield nothing.
func (s *NotificationService) Render(ctx context.Context, e events.Event) ([]model.Notification, error) {
	rule, ok := notificationRules[e.Type]
	if !ok {
		return nil, nil
	}

	view := notificationView{Data: e.Data}
	if view.Data == nil {
		view.Data = map[string]any{}
	}
	if title, ok := e.Data["examTitle"].(string); ok {
		view.ExamTitle = title
	}
	if view.ExamTitle == "" || e.Type == config.EventKey.AttemptStarted {
		exam, err := s.exams.GetByID(ctx, e.ExamID)
		if err != nil {
			return nil, fmt.Errorf("get exam %s: %w", e.ExamID, err)
		}
		view.ExamTitle = exam.Title
		view.Duration = exam.Duration
	}

	var subject, body strings.Builder
	if err := rule.subject.Execute(&subject, view); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := rule.body.Execute(&body, view); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	out := make([]model.Notification, 0, len(rule.channels))
	for _, ch := range rule.channels {
		out = append(out, model.Notification{
			UserID:    e.UserID,
			EventType: e.Type,
			Channel:   ch,
			Subject:   subject.String(),
			Body:      body.String(),
			CreatedAt: e.OccurredAt,
		})
	}
	return out, nil
}

// Save persists rendered notifications in one batch.
func (s *NotificationService) Save(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	if err := s.store.InsertBatch(ctx, ns); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	s.log.Debug().Int("count", len(ns)).Msg("Notifications saved")
	return nil
}

// ListMine returns a user's latest notifications.
func (s *NotificationService) ListMine(ctx context.Context, userID, limit int) ([]model.Notification, error) {
	return s.store.ListByUser(ctx, userID, clampLimit(limit))
}

// ListRecent returns the latest notifications across all users.
func (s *NotificationService) ListRecent(ctx context.Context, limit int) ([]model.Notification, error) {
	return s.store.ListRecent(ctx, clampLimit(limit))
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID int, id int64) error {
	return s.store.MarkRead(ctx, userID, id)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 20
	}
	return min(limit, 100)
}
