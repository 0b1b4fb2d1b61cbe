package service

import (
	"context"
	"time"

	"github.com/examprep/examprep-backend/internal/events"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/google/uuid"
)

// The interfaces below are the slices of the repository layer each service
// uses. The repository package's types satisfy them; tests use fakes.

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
}

type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	List(ctx context.Context, status *model.ExamStatus, limit, offset int) ([]model.Exam, int, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	Create(ctx context.Context, q *model.Question) error
	CreateBatch(ctx context.Context, examID uuid.UUID, qs []model.Question) error
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, examID, id uuid.UUID) error
	Reorder(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) error
}

type EnrollmentStore interface {
	GetByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error)
	GetByReference(ctx context.Context, reference string) (*model.Enrollment, error)
	Create(ctx context.Context, e *model.Enrollment) error
	Restart(ctx context.Context, id uuid.UUID, reference string, amount int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.EnrollmentStatus, paidAt *time.Time) error
	ListByUser(ctx context.Context, userID int) ([]model.Enrollment, error)
}

type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	FindOpen(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error)
	CountByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) (int, error)
	ListByUserAndExam(ctx context.Context, userID int, examID uuid.UUID) ([]model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	UpdateProgress(ctx context.Context, id uuid.UUID, answers model.Answers, timeTaken int, version *int64) (*model.Attempt, error)
	UpdateLocked(ctx context.Context, id uuid.UUID, fn func(a *model.Attempt) (bool, error)) (*model.Attempt, error)
	ListOverdue(ctx context.Context, now time.Time, grace time.Duration, exclude []uuid.UUID, limit int) ([]uuid.UUID, error)
	ListResultsByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamResultRow, int, error)
}

type NotificationStore interface {
	InsertBatch(ctx context.Context, ns []model.Notification) error
	ListByUser(ctx context.Context, userID, limit int) ([]model.Notification, error)
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID int, id int64) error
}

type LiveAttemptStore interface {
	ListLiveAttempts(ctx context.Context, examID uuid.UUID) ([]repository.LiveAttempt, error)
}

// PaperSource serves the student-facing view of a published exam.
type PaperSource interface {
	Paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error)
}

// ProgressNotifier is told when an attempt of an exam changes.
type ProgressNotifier interface {
	AttemptChanged(ctx context.Context, examID uuid.UUID)
}

// EventPublisher publishes domain events. *events.Bus implements it.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

var (
	_ UserStore         = (*repository.UserRepository)(nil)
	_ ExamStore         = (*repository.ExamRepository)(nil)
	_ QuestionStore     = (*repository.QuestionRepository)(nil)
	_ EnrollmentStore   = (*repository.EnrollmentRepository)(nil)
	_ AttemptStore      = (*repository.AttemptRepository)(nil)
	_ NotificationStore = (*repository.NotificationRepository)(nil)
	_ LiveAttemptStore  = (*repository.MonitorRepository)(nil)
	_ EventPublisher    = (*events.Bus)(nil)
	_ PaperSource       = (*ExamService)(nil)
	_ ProgressNotifier  = (*MonitorService)(nil)
)
