package service

import (
	"context"
	"fmt"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
)

const (
	dashboardListSize    = 5
	maxDashboardListSize = 50
)

// DashboardStore is the read model behind the admin dashboard.
type DashboardStore interface {
	GetSummary(ctx context.Context) (*repository.DashboardSummary, error)
	GetExamStatusCounts(ctx context.Context) (map[model.ExamStatus]int, error)
	GetUpcomingExams(ctx context.Context, limit int) ([]repository.DashboardUpcomingExam, error)
	GetRecentExamResults(ctx context.Context, limit int) ([]repository.DashboardExamResult, error)
}

var _ DashboardStore = (*repository.DashboardRepository)(nil)

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	repository.DashboardSummary
	ExamStatusCounts     map[model.ExamStatus]int           `json:"examStatusCounts"`
	UpcomingExams        []repository.DashboardUpcomingExam `json:"upcomingExams"`
	RecentCompletedExams []repository.DashboardExamResult   `json:"recentCompletedExams"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo DashboardStore
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo DashboardStore) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetDashboardData fetches every dashboard metric. listSize bounds the
// upcoming and recent lists; zero or less uses the default.
func (s *DashboardService) GetDashboardData(ctx context.Context, listSize int) (*DashboardData, error) {
	if listSize <= 0 {
		listSize = dashboardListSize
	}
	listSize = min(listSize, maxDashboardListSize)

	summary, err := s.repo.GetSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard summary: %w", err)
	}

	statusCounts, err := s.repo.GetExamStatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("exam status counts: %w", err)
	}
	// Statuses without exams still show up as zero.
	for _, st := range []model.ExamStatus{model.ExamStatusDraft, model.ExamStatusPublished, model.ExamStatusArchived} {
		if _, ok := statusCounts[st]; !ok {
			statusCounts[st] = 0
		}
	}

	upcoming, err := s.repo.GetUpcomingExams(ctx, listSize)
	if err != nil {
		return nil, fmt.Errorf("upcoming exams: %w", err)
	}

	recent, err := s.repo.GetRecentExamResults(ctx, listSize)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}

	return &DashboardData{
		DashboardSummary:     *summary,
		ExamStatusCounts:     statusCounts,
		UpcomingExams:        upcoming,
		RecentCompletedExams: recent,
	}, nil
}
