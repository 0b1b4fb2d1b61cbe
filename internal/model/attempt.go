package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Answers maps question id to the raw answer value the client submitted.
// A save replaces the whole map; it is never merged.
type Answers map[string]json.RawMessage

// Attempt is one user's timed instance of taking an exam.
type Attempt struct {
	ID            uuid.UUID          `json:"id"`
	UserID        int                `json:"userId"`
	ExamID        uuid.UUID          `json:"examId"`
	EnrollmentID  *uuid.UUID         `json:"enrollmentId,omitempty"`
	Answers       Answers            `json:"answers"`
	Score         *float64           `json:"score,omitempty"`
	TotalMarks    *float64           `json:"totalMarks,omitempty"`
	TimeTaken     int                `json:"timeTaken"` // seconds
	StartedAt     time.Time          `json:"startedAt"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
	IsCompleted   bool               `json:"isCompleted"`
	AttemptNumber int                `json:"attemptNumber"`
	IsReviewed    bool               `json:"isReviewed"`
	NeedsReview   bool               `json:"needsReview"`
	AutoSubmitted bool               `json:"autoSubmitted"`
	// Awards holds manually graded marks keyed by question id.
	Awards        map[string]float64 `json:"awards,omitempty"`
	Version       int64              `json:"version"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// AttemptView is an attempt plus the server-reconciled countdown.
type AttemptView struct {
	Attempt
	Duration         int `json:"duration"`
	RemainingSeconds int `json:"remainingSeconds"`
}

// SaveProgressRequest is the PATCH body for partial progress.
// Version is the client's monotonic write counter; omit it for last-request-wins.
type SaveProgressRequest struct {
	Answers   Answers `json:"answers" binding:"required"`
	TimeTaken *int    `json:"timeTaken" binding:"required,min=0"`
	Version   *int64  `json:"version" binding:"omitempty,min=1"`
}

// ReviewRequest awards marks to manually graded questions of a completed attempt.
type ReviewRequest struct {
	Awards map[string]float64 `json:"awards" binding:"required,min=1,dive,min=0"`
}

// ItemStatus classifies one question inside a result breakdown.
type ItemStatus string

const (
	ItemCorrect       ItemStatus = "correct"
	ItemWrong         ItemStatus = "wrong"
	ItemUnanswered    ItemStatus = "unanswered"
	ItemPendingReview ItemStatus = "pending_review"
	ItemReviewed      ItemStatus = "reviewed"
)

// ResultItem is the per-question breakdown of a completed attempt.
type ResultItem struct {
	QuestionID    uuid.UUID       `json:"questionId"`
	Order         int             `json:"order"`
	Type          QuestionType    `json:"type"`
	Question      string          `json:"question"`
	Answer        json.RawMessage `json:"answer,omitempty"`
	CorrectAnswer string          `json:"correctAnswer,omitempty"`
	Marks         float64         `json:"marks"`
	Earned        float64         `json:"earned"`
	Status        ItemStatus      `json:"status"`
}

// AttemptResult is the read-only results view of a completed attempt.
type AttemptResult struct {
	Attempt    Attempt      `json:"attempt"`
	Percentage float64      `json:"percentage"`
	Passed     bool         `json:"passed"`
	Items      []ResultItem `json:"items"`
}

// ExamResultRow is one line of an exam's results report.
type ExamResultRow struct {
	AttemptID     uuid.UUID  `json:"attemptId"`
	UserID        int        `json:"userId"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	AttemptNumber int        `json:"attemptNumber"`
	Score         *float64   `json:"score"`
	TotalMarks    *float64   `json:"totalMarks"`
	TimeTaken     int        `json:"timeTaken"`
	IsCompleted   bool       `json:"isCompleted"`
	NeedsReview   bool       `json:"needsReview"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
}
