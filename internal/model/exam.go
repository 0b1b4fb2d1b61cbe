package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusArchived  ExamStatus = "archived"
)

// Exam represents an exam entity.
type Exam struct {
	ID                    uuid.UUID  `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	AuthorID              int        `json:"authorId"`
	Duration              int        `json:"duration"` // minutes
	TotalQuestions        int        `json:"totalQuestions"`
	PassingScore          float64    `json:"passingScore"` // percent
	Status                ExamStatus `json:"status"`
	MaxAttempts           int        `json:"maxAttempts"` // 0 means unlimited
	AllowPreview          bool       `json:"allowPreview"`
	AllowMultipleAttempts bool       `json:"allowMultipleAttempts"`
	StartAt               *time.Time `json:"startAt,omitempty"`
	EndAt                 *time.Time `json:"endAt,omitempty"`
	Price                 int64      `json:"price"` // minor currency units, 0 is free
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// AllottedSeconds is the exam duration in seconds.
func (e *Exam) AllottedSeconds() int {
	if e.Duration <= 0 {
		return 0
	}
	return e.Duration * 60
}

// IsFree reports whether attempts need no paid enrollment.
func (e *Exam) IsFree() bool {
	return e.Price <= 0
}

// AttemptLimit returns the effective maximum attempts per user, 0 meaning unlimited.
func (e *Exam) AttemptLimit() int {
	if !e.AllowMultipleAttempts {
		return 1
	}
	return e.MaxAttempts
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title                 string     `json:"title" binding:"required,min=3,max=255"`
	Description           string     `json:"description" binding:"max=5000"`
	Duration              int        `json:"duration" binding:"required,min=1,max=600"`
	PassingScore          float64    `json:"passingScore" binding:"min=0,max=100"`
	MaxAttempts           int        `json:"maxAttempts" binding:"min=0,max=100"`
	AllowPreview          bool       `json:"allowPreview"`
	AllowMultipleAttempts bool       `json:"allowMultipleAttempts"`
	StartAt               *time.Time `json:"startAt" binding:"omitempty"`
	EndAt                 *time.Time `json:"endAt" binding:"omitempty,gtfield=StartAt"`
	Price                 int64      `json:"price" binding:"min=0"`
}

// UpdateExamRequest is the payload for updating a draft exam. Nil fields are left unchanged.
type UpdateExamRequest struct {
	Title                 *string    `json:"title" binding:"omitempty,min=3,max=255"`
	Description           *string    `json:"description" binding:"omitempty,max=5000"`
	Duration              *int       `json:"duration" binding:"omitempty,min=1,max=600"`
	PassingScore          *float64   `json:"passingScore" binding:"omitempty,min=0,max=100"`
	MaxAttempts           *int       `json:"maxAttempts" binding:"omitempty,min=0,max=100"`
	AllowPreview          *bool      `json:"allowPreview"`
	AllowMultipleAttempts *bool      `json:"allowMultipleAttempts"`
	StartAt               *time.Time `json:"startAt"`
	EndAt                 *time.Time `json:"endAt"`
	Price                 *int64     `json:"price" binding:"omitempty,min=0"`
}

// Apply copies the non-nil fields of the request onto e.
func (r *UpdateExamRequest) Apply(e *Exam) {
	if r.Title != nil {
		e.Title = *r.Title
	}
	if r.Description != nil {
		e.Description = *r.Description
	}
	if r.Duration != nil {
		e.Duration = *r.Duration
	}
	if r.PassingScore != nil {
		e.PassingScore = *r.PassingScore
	}
	if r.MaxAttempts != nil {
		e.MaxAttempts = *r.MaxAttempts
	}
	if r.AllowPreview != nil {
		e.AllowPreview = *r.AllowPreview
	}
	if r.AllowMultipleAttempts != nil {
		e.AllowMultipleAttempts = *r.AllowMultipleAttempts
	}
	if r.StartAt != nil {
		e.StartAt = r.StartAt
	}
	if r.EndAt != nil {
		e.EndAt = r.EndAt
	}
	if r.Price != nil {
		e.Price = *r.Price
	}
}

// ExamPaper is the cached student-facing view of a published exam.
type ExamPaper struct {
	ExamID    uuid.UUID            `json:"examId"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration"`
	Questions []QuestionForStudent `json:"questions"`
}
