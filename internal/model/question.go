package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType is the stored discriminator of a question variant.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeEssay          QuestionType = "essay"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeFillBlanks     QuestionType = "fill_blanks"
)

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"examId"`
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	Marks         float64      `json:"marks"`
	Order         int          `json:"order"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID    `json:"id"`
	Question string       `json:"question"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Blanks   int          `json:"blanks,omitempty"`
	Marks    float64      `json:"marks"`
	Order    int          `json:"order"`
}

// AddQuestionRequest is the payload for adding or updating a question.
type AddQuestionRequest struct {
	Question      string   `json:"question" binding:"required,min=1,max=5000"`
	Type          string   `json:"type" binding:"required,question_type"`
	Options       []string `json:"options" binding:"omitempty,max=10,dive,min=1,max=1000"`
	CorrectAnswer string   `json:"correctAnswer" binding:"max=2000"`
	Marks         float64  `json:"marks" binding:"required,gt=0,max=1000"`
}

// ReorderQuestionsRequest lists every question of an exam in its new display order.
type ReorderQuestionsRequest struct {
	QuestionIDs []uuid.UUID `json:"questionIds" binding:"required,min=1"`
}
