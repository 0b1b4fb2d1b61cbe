package repository

import (
	"context"
	"fmt"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question data access. Every write keeps order_num
// contiguous from 1 and exams.total_questions in step with the question count.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question, type, options, correct_answer, marks, order_num, created_at, updated_at
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Question, &q.Type, &q.Options, &q.CorrectAnswer,
			&q.Marks, &q.Order, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, question, type, options, correct_answer, marks, order_num, created_at, updated_at
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ExamID, &q.Question, &q.Type, &q.Options, &q.CorrectAnswer,
		&q.Marks, &q.Order, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// Create appends a question at the end of its exam.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockExam(ctx, tx, q.ExamID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, question, type, options, correct_answer, marks, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6,
			         (SELECT COALESCE(MAX(order_num), 0) + 1 FROM questions WHERE exam_id = $1))
			 RETURNING id, order_num, created_at, updated_at`,
			q.ExamID, q.Question, q.Type, q.Options, q.CorrectAnswer, q.Marks,
		).Scan(&q.ID, &q.Order, &q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return err
		}
		return syncTotal(ctx, tx, q.ExamID)
	})
}

// CreateBatch appends questions in the given order using COPY.
func (r *QuestionRepository) CreateBatch(ctx context.Context, examID uuid.UUID, qs []model.Question) error {
	if len(qs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockExam(ctx, tx, examID); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(order_num), 0) + 1 FROM questions WHERE exam_id = $1`, examID,
		).Scan(&next); err != nil {
			return err
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"questions"},
			[]string{"exam_id", "question", "type", "options", "correct_answer", "marks", "order_num"},
			pgx.CopyFromSlice(len(qs), func(i int) ([]any, error) {
				q := qs[i]
				options := q.Options
				if options == nil {
					options = []string{}
				}
				return []any{examID, q.Question, string(q.Type), options, q.CorrectAnswer, q.Marks, next + i}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy questions: %w", err)
		}
		return syncTotal(ctx, tx, examID)
	})
}

// Update modifies a question's content; its position is unchanged.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE questions
		 SET question = $1, type = $2, options = $3, correct_answer = $4, marks = $5, updated_at = NOW()
		 WHERE id = $6
		 RETURNING order_num, updated_at`,
		q.Question, q.Type, q.Options, q.CorrectAnswer, q.Marks, q.ID,
	).Scan(&q.Order, &q.UpdatedAt)
	return notFound(err)
}

// Delete removes a question and closes the gap it leaves in the ordering.
func (r *QuestionRepository) Delete(ctx context.Context, examID, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockExam(ctx, tx, examID); err != nil {
			return err
		}
		var order int
		err := tx.QueryRow(ctx,
			`DELETE FROM questions WHERE id = $1 AND exam_id = $2 RETURNING order_num`, id, examID,
		).Scan(&order)
		if err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE questions SET order_num = order_num - 1 WHERE exam_id = $1 AND order_num > $2`,
			examID, order,
		); err != nil {
			return err
		}
		return syncTotal(ctx, tx, examID)
	})
}

// Reorder renumbers the exam's questions 1..n following ids. ids must name
// every question of the exam exactly once.
func (r *QuestionRepository) Reorder(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockExam(ctx, tx, examID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SET CONSTRAINTS uq_questions_exam_order DEFERRED`); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE questions SET order_num = $1, updated_at = NOW() WHERE id = $2 AND exam_id = $3`,
				i+1, id, examID)
		}
		br := tx.SendBatch(ctx, batch)
		for range ids {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return err
			}
			if tag.RowsAffected() == 0 {
				br.Close()
				return ErrNotFound
			}
		}
		return br.Close()
	})
}

// lockExam serializes ordering changes on one exam.
func lockExam(ctx context.Context, tx pgx.Tx, examID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM exams WHERE id = $1 FOR UPDATE`, examID).Scan(&id)
	return notFound(err)
}

func syncTotal(ctx context.Context, tx pgx.Tx, examID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE exams SET total_questions = (SELECT COUNT(*) FROM questions WHERE exam_id = $1), updated_at = NOW()
		 WHERE id = $1`, examID)
	return err
}
