package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MonitorEvent is published on an exam's monitor channel whenever one of its
// attempts starts, saves or finishes.
type MonitorEvent struct {
	Type   string    `json:"type"`
	ExamID uuid.UUID `json:"examId"`
	At     time.Time `json:"at"`
}

// MonitorSnapshot is the live state of an exam's open attempts.
type MonitorSnapshot struct {
	Type           string                   `json:"type"`
	ExamID         uuid.UUID                `json:"examId"`
	TotalQuestions int                      `json:"totalQuestions"`
	Attempts       []repository.LiveAttempt `json:"attempts"`
	GeneratedAt    time.Time                `json:"generatedAt"`
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	exams ExamStore
	live  LiveAttemptStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(exams ExamStore, live LiveAttemptStore, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		exams: exams,
		live:  live,
		rdb:   rdb,
		log:   log.With().Str("component", "monitor_service").Logger(),
	}
}

// Snapshot lists every open attempt at an exam with its progress.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.live.ListLiveAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}
	return &MonitorSnapshot{
		Type:           "snapshot",
		ExamID:         examID,
		TotalQuestions: exam.TotalQuestions,
		Attempts:       attempts,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

// AttemptChanged publishes a change notice on the exam's monitor channel.
// Publishing is best-effort.
func (s *MonitorService) AttemptChanged(ctx context.Context, examID uuid.UUID) {
	payload, _ := json.Marshal(MonitorEvent{
		Type:   "attempt_changed",
		ExamID: examID,
		At:     time.Now().UTC(),
	})
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}

// Subscribe attaches to an exam's monitor channel. The caller closes the subscription.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
