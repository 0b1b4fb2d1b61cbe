package repository

import (
	"context"
	"time"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const enrollmentColumns = `id, user_id, exam_id, status, COALESCE(payment_reference, ''), amount, paid_at, created_at, updated_at`

// EnrollmentRepository handles enrollment data access.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func scanEnrollment(row pgx.Row, e *model.Enrollment) error {
	return row.Scan(&e.ID, &e.UserID, &e.ExamID, &e.Status, &e.PaymentReference, &e.Amount,
		&e.PaidAt, &e.CreatedAt, &e.UpdatedAt)
}

// GetByUserAndExam retrieves the enrollment of a user in an exam.
func (r *EnrollmentRepository) GetByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := scanEnrollment(r.pool.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 AND exam_id = $2`, userID, examID), e)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// GetByReference retrieves an enrollment by its payment reference.
func (r *EnrollmentRepository) GetByReference(ctx context.Context, reference string) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := scanEnrollment(r.pool.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE payment_reference = $1`, reference), e)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	var ref *string
	if e.PaymentReference != "" {
		ref = &e.PaymentReference
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO enrollments (user_id, exam_id, status, payment_reference, amount, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.UserID, e.ExamID, e.Status, ref, e.Amount, e.PaidAt,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEnrollment
		}
		return err
	}
	return nil
}

// Restart puts a failed or refunded enrollment back to PENDING under a new reference.
func (r *EnrollmentRepository) Restart(ctx context.Context, id uuid.UUID, reference string, amount int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE enrollments
		 SET status = $1, payment_reference = $2, amount = $3, paid_at = NULL, updated_at = NOW()
		 WHERE id = $4`,
		model.EnrollmentPending, reference, amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions an enrollment. paidAt is only written when non-nil.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.EnrollmentStatus, paidAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE enrollments
		 SET status = $1, paid_at = COALESCE($2, paid_at), updated_at = NOW()
		 WHERE id = $3`,
		status, paidAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns a user's enrollments, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID int) ([]model.Enrollment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Enrollment{}
	for rows.Next() {
		var e model.Enrollment
		if err := scanEnrollment(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
