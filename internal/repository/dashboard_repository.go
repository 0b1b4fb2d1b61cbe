package repository

import (
	"context"
	"time"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardSummary holds the platform-wide counters.
type DashboardSummary struct {
	TotalStudents     int   `json:"totalStudents"`
	TotalExams        int   `json:"totalExams"`
	TotalAttempts     int   `json:"totalAttempts"`
	OpenAttempts      int   `json:"openAttempts"`
	PendingReviews    int   `json:"pendingReviews"`
	ActiveEnrollments int   `json:"activeEnrollments"`
	Revenue           int64 `json:"revenue"`
}

// DashboardUpcomingExam represents minimal data for upcoming scheduled exams.
type DashboardUpcomingExam struct {
	ID       uuid.UUID  `json:"id"`
	Title    string     `json:"title"`
	StartAt  *time.Time `json:"startAt"`
	Duration int        `json:"duration"`
}

// DashboardExamResult summarizes completed attempts of one exam.
type DashboardExamResult struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	LastCompletedAt  *time.Time `json:"lastCompletedAt"`
	ParticipantCount int        `json:"participantCount"`
	AverageScore     *float64   `json:"averageScore"`
}

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// GetSummary retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) GetSummary(ctx context.Context) (*DashboardSummary, error) {
	s := &DashboardSummary{}
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users WHERE role = $1),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM exam_attempts),
			(SELECT COUNT(*) FROM exam_attempts WHERE is_completed = FALSE),
			(SELECT COUNT(*) FROM exam_attempts WHERE needs_review = TRUE),
			(SELECT COUNT(*) FROM enrollments WHERE status = $2),
			(SELECT COALESCE(SUM(amount), 0) FROM enrollments WHERE status = $2)`,
		model.RoleStudent, model.EnrollmentCompleted,
	).Scan(&s.TotalStudents, &s.TotalExams, &s.TotalAttempts, &s.OpenAttempts, &s.PendingReviews,
		&s.ActiveEnrollments, &s.Revenue)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetExamStatusCounts retrieves the distribution of exams by status.
func (r *DashboardRepository) GetExamStatusCounts(ctx context.Context) (map[model.ExamStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM exams GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ExamStatus]int)
	for rows.Next() {
		var status model.ExamStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// GetUpcomingExams retrieves the next N published exams whose window has not opened yet.
func (r *DashboardRepository) GetUpcomingExams(ctx context.Context, limit int) ([]DashboardUpcomingExam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, start_at, duration
		 FROM exams
		 WHERE status = $1 AND start_at > NOW()
		 ORDER BY start_at ASC LIMIT $2`,
		model.ExamStatusPublished, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []DashboardUpcomingExam{}
	for rows.Next() {
		var e DashboardUpcomingExam
		if err := rows.Scan(&e.ID, &e.Title, &e.StartAt, &e.Duration); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetRecentExamResults retrieves the N exams with the most recent completed attempts.
func (r *DashboardRepository) GetRecentExamResults(ctx context.Context, limit int) ([]DashboardExamResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			e.id,
			e.title,
			MAX(a.completed_at) AS last_completed,
			COUNT(DISTINCT a.user_id),
			AVG(a.score / NULLIF(a.total_marks, 0) * 100)
		FROM exams e
		JOIN exam_attempts a ON a.exam_id = e.id AND a.is_completed = TRUE
		GROUP BY e.id, e.title
		ORDER BY last_completed DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []DashboardExamResult{}
	for rows.Next() {
		var res DashboardExamResult
		if err := rows.Scan(&res.ID, &res.Title, &res.LastCompletedAt, &res.ParticipantCount, &res.AverageScore); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
