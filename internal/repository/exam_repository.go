package repository

import (
	"context"
	"fmt"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const examColumns = `id, title, description, author_id, duration, total_questions, passing_score,
	status, max_attempts, allow_preview, allow_multiple_attempts, start_at, end_at, price,
	created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.AuthorID, &e.Duration, &e.TotalQuestions,
		&e.PassingScore, &e.Status, &e.MaxAttempts, &e.AllowPreview, &e.AllowMultipleAttempts,
		&e.StartAt, &e.EndAt, &e.Price, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// List retrieves exams with pagination, optionally filtered by status.
func (r *ExamRepository) List(ctx context.Context, status *model.ExamStatus, limit, offset int) ([]model.Exam, int, error) {
	where := ""
	var args []any
	if status != nil {
		args = append(args, *status)
		where = ` WHERE status = $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + examColumns + ` FROM exams` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// ListPublished returns all published exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	status := model.ExamStatusPublished
	exams, _, err := r.List(ctx, &status, 1000, 0)
	return exams, err
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, author_id, duration, passing_score, status, max_attempts,
		                    allow_preview, allow_multiple_attempts, start_at, end_at, price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.AuthorID, e.Duration, e.PassingScore, e.Status, e.MaxAttempts,
		e.AllowPreview, e.AllowMultipleAttempts, e.StartAt, e.EndAt, e.Price,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update writes the editable fields of an exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, duration = $3, passing_score = $4, max_attempts = $5,
		     allow_preview = $6, allow_multiple_attempts = $7, start_at = $8, end_at = $9, price = $10,
		     updated_at = NOW()
		 WHERE id = $11
		 RETURNING updated_at`,
		e.Title, e.Description, e.Duration, e.PassingScore, e.MaxAttempts,
		e.AllowPreview, e.AllowMultipleAttempts, e.StartAt, e.EndAt, e.Price, e.ID,
	).Scan(&e.UpdatedAt)
	return notFound(err)
}

// UpdateStatus updates an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an exam and, by cascade, its questions.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
