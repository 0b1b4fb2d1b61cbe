package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attemptColumns = `id, user_id, exam_id, enrollment_id, answers, score, total_marks, time_taken,
	started_at, completed_at, is_completed, attempt_number, is_reviewed, needs_review, auto_submitted,
	awards, version, updated_at`

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row, a *model.Attempt) error {
	return row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.EnrollmentID, &a.Answers, &a.Score, &a.TotalMarks,
		&a.TimeTaken, &a.StartedAt, &a.CompletedAt, &a.IsCompleted, &a.AttemptNumber, &a.IsReviewed,
		&a.NeedsReview, &a.AutoSubmitted, &a.Awards, &a.Version, &a.UpdatedAt)
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	if err := scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id), a); err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// FindOpen returns the user's in-progress attempt at an exam, if any.
func (r *AttemptRepository) FindOpen(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND is_completed = FALSE
		 ORDER BY attempt_number DESC LIMIT 1`, userID, examID), a)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// CountByUserAndExam returns how many attempts a user has made at an exam.
func (r *AttemptRepository) CountByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE user_id = $1 AND exam_id = $2`, userID, examID,
	).Scan(&n)
	return n, err
}

// ListByUserAndExam returns a user's attempts at an exam, latest first.
func (r *AttemptRepository) ListByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2
		 ORDER BY attempt_number DESC`, userID, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Attempt{}
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create inserts a new attempt. The (user, exam, attempt_number) triple is unique.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	if a.Answers == nil {
		a.Answers = model.Answers{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (user_id, exam_id, enrollment_id, answers, attempt_number)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, started_at, updated_at`,
		a.UserID, a.ExamID, a.EnrollmentID, a.Answers, a.AttemptNumber,
	).Scan(&a.ID, &a.StartedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return err
	}
	return nil
}

// UpdateProgress overwrites the answer map of an open attempt.
//
// timeTaken is stored as the larger of the old and new value. When version is
// non-nil the write only applies if it is newer than the stored version;
// otherwise the stored version is incremented. Returns ErrAttemptClosed for a
// completed attempt and ErrStaleWrite for an out-of-order write.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, id uuid.UUID, answers model.Answers, timeTaken int, version *int64) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET answers = $2,
		     time_taken = GREATEST(time_taken, $3),
		     version = COALESCE($4::BIGINT, version + 1),
		     updated_at = NOW()
		 WHERE id = $1 AND is_completed = FALSE AND ($4::BIGINT IS NULL OR version < $4::BIGINT)
		 RETURNING `+attemptColumns,
		id, answers, timeTaken, version), a)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsCompleted {
		return current, ErrAttemptClosed
	}
	return current, ErrStaleWrite
}

// UpdateLocked loads an attempt with SELECT ... FOR UPDATE and passes it to fn.
// When fn reports a change the grading fields are written back in the same
// transaction. The returned attempt reflects what is stored after commit.
func (r *AttemptRepository) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(a *model.Attempt) (bool, error)) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := scanAttempt(tx.QueryRow(ctx,
			`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1 FOR UPDATE`, id), a); err != nil {
			return notFound(err)
		}

		changed, err := fn(a)
		if err != nil || !changed {
			return err
		}
		if a.Awards == nil {
			a.Awards = map[string]float64{}
		}

		return tx.QueryRow(ctx,
			`UPDATE exam_attempts
			 SET score = $2, total_marks = $3, time_taken = $4, completed_at = $5, is_completed = $6,
			     is_reviewed = $7, needs_review = $8, auto_submitted = $9, awards = $10,
			     version = version + 1, updated_at = NOW()
			 WHERE id = $1
			 RETURNING version, updated_at`,
			a.ID, a.Score, a.TotalMarks, a.TimeTaken, a.CompletedAt, a.IsCompleted,
			a.IsReviewed, a.NeedsReview, a.AutoSubmitted, a.Awards,
		).Scan(&a.Version, &a.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListOverdue returns ids of open attempts whose deadline plus grace is before
// now, oldest first, leaving out the ids in exclude.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time, grace time.Duration, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	if exclude == nil {
		exclude = []uuid.UUID{}
	}
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM exam_attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.is_completed = FALSE
		   AND a.started_at + make_interval(mins => e.duration) + make_interval(secs => $1) < $2
		   AND a.id <> ALL($3)
		 ORDER BY a.started_at, a.id
		 LIMIT $4`,
		grace.Seconds(), now, exclude, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListResultsByExam lists every attempt at an exam with the student's identity.
// A non-positive limit returns all rows.
func (r *AttemptRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamResultRow, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT a.id, u.id, u.name, u.email, a.attempt_number, a.score, a.total_marks, a.time_taken,
		       a.is_completed, a.needs_review, a.started_at, a.completed_at
		FROM exam_attempts a
		JOIN users u ON u.id = a.user_id
		WHERE a.exam_id = $1
		ORDER BY u.name ASC, a.attempt_number ASC`
	args := []any{examID}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.ExamResultRow{}
	for rows.Next() {
		var row model.ExamResultRow
		if err := rows.Scan(&row.AttemptID, &row.UserID, &row.Name, &row.Email, &row.AttemptNumber,
			&row.Score, &row.TotalMarks, &row.TimeTaken, &row.IsCompleted, &row.NeedsReview,
			&row.StartedAt, &row.CompletedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}
