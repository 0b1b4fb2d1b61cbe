package handler

import (
	"context"
	"io"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/response"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Attempts is the attempt lifecycle as used by HTTP and WebSocket handlers.
type Attempts interface {
	Start(ctx context.Context, userID int, examID uuid.UUID) (*model.AttemptView, error)
	Get(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptView, error)
	SaveProgress(ctx context.Context, userID int, attemptID uuid.UUID, answers model.Answers, timeTaken int, version *int64) (*model.AttemptView, error)
	Finalize(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptView, error)
	Result(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptResult, error)
	AdminResult(ctx context.Context, attemptID uuid.UUID) (*model.AttemptResult, error)
	ListMine(ctx context.Context, userID int, examID uuid.UUID) ([]model.Attempt, error)
	Review(ctx context.Context, attemptID uuid.UUID, awards map[string]float64) (*model.AttemptResult, error)
}

// Exams covers the student catalog and the admin exam lifecycle.
type Exams interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetForStudent(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context, page, perPage int) ([]model.Exam, *response.Pagination, error)
	List(ctx context.Context, status *model.ExamStatus, page, perPage int) ([]model.Exam, *response.Pagination, error)
	Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Archive(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	StudentQuestions(ctx context.Context, userID int, examID uuid.UUID) ([]model.QuestionForStudent, error)
}

type Questions interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	Create(ctx context.Context, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error)
	Update(ctx context.Context, examID, questionID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error)
	Delete(ctx context.Context, examID, questionID uuid.UUID) error
	Reorder(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) ([]model.Question, error)
	ImportXLSX(ctx context.Context, examID uuid.UUID, r io.Reader) (*service.ImportReport, error)
}

type Enrollments interface {
	Enroll(ctx context.Context, userID int, examID uuid.UUID) (*model.Enrollment, error)
	ListMine(ctx context.Context, userID int) ([]model.Enrollment, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

type Accounts interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*service.AuthResult, error)
	Login(ctx context.Context, req *model.LoginRequest) (*service.AuthResult, error)
	Me(ctx context.Context, userID int) (*model.User, error)
	Revoke(ctx context.Context, claims *service.Claims) error
}

type Reports interface {
	ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, *response.Pagination, error)
	ExportResultsXLSX(ctx context.Context, examID uuid.UUID) ([]byte, string, error)
}

type Notifications interface {
	ListMine(ctx context.Context, userID, limit int) ([]model.Notification, error)
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID int, id int64) error
}

type Monitor interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*service.MonitorSnapshot, error)
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
}

type Dashboard interface {
	GetDashboardData(ctx context.Context, listSize int) (*service.DashboardData, error)
}

var (
	_ Attempts      = (*service.AttemptService)(nil)
	_ Exams         = (*service.ExamService)(nil)
	_ Questions     = (*service.QuestionService)(nil)
	_ Enrollments   = (*service.EnrollmentService)(nil)
	_ Accounts      = (*service.AuthService)(nil)
	_ Reports       = (*service.ReportService)(nil)
	_ Notifications = (*service.NotificationService)(nil)
	_ Monitor       = (*service.MonitorService)(nil)
	_ Dashboard     = (*service.DashboardService)(nil)
)
