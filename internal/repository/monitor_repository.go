package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LiveAttempt is the monitor's view of one open attempt.
type LiveAttempt struct {
	AttemptID     uuid.UUID `json:"attemptId"`
	UserID        int       `json:"userId"`
	Name          string    `json:"name"`
	AttemptNumber int       `json:"attemptNumber"`
	AnsweredCount int       `json:"answeredCount"`
	TimeTaken     int       `json:"timeTaken"`
	Version       int64     `json:"version"`
	StartedAt     time.Time `json:"startedAt"`
	LastSavedAt   time.Time `json:"lastSavedAt"`
}

// MonitorRepository provides data access for the live exam monitoring feature.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListLiveAttempts returns every open attempt at an exam with its answered count.
func (r *MonitorRepository) ListLiveAttempts(ctx context.Context, examID uuid.UUID) ([]LiveAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.user_id, u.name, a.attempt_number,
		        (SELECT COUNT(*) FROM jsonb_object_keys(a.answers)),
		        a.time_taken, a.version, a.started_at, a.updated_at
		 FROM exam_attempts a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.exam_id = $1 AND a.is_completed = FALSE
		 ORDER BY u.name`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LiveAttempt{}
	for rows.Next() {
		var l LiveAttempt
		if err := rows.Scan(&l.AttemptID, &l.UserID, &l.Name, &l.AttemptNumber, &l.AnsweredCount,
			&l.TimeTaken, &l.Version, &l.StartedAt, &l.LastSavedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
