// Package grading models the question types as a closed set of variants and
// scores attempt answers against them.
package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/google/uuid"
)

// Variant is one of MultipleChoice, TrueFalse, ShortAnswer, FillBlanks or Essay.
// The set is closed; code switching on it handles every case.
type Variant interface {
	meta() Meta
}

// Meta carries the fields every variant shares.
type Meta struct {
	ID     uuid.UUID
	Prompt string
	Marks  float64
	Order  int
}

// MultipleChoice has a single correct option.
type MultipleChoice struct {
	Meta
	Options []string
	Correct int // option index
}

// TrueFalse is answered with a boolean.
type TrueFalse struct {
	Meta
	Correct bool
}

// ShortAnswer matches free text against accepted alternatives. With no accepted
// alternatives the answer goes to manual review.
type ShortAnswer struct {
	Meta
	Accepted []string
}

// FillBlanks has one or more blanks, each with accepted alternatives. Marks are
// split evenly across blanks.
type FillBlanks struct {
	Meta
	Blanks [][]string
}

// Essay is always graded manually.
type Essay struct {
	Meta
}

func (q MultipleChoice) meta() Meta { return q.Meta }
func (q TrueFalse) meta() Meta      { return q.Meta }
func (q ShortAnswer) meta() Meta    { return q.Meta }
func (q FillBlanks) meta() Meta     { return q.Meta }
func (q Essay) meta() Meta          { return q.Meta }

// MetaOf returns the shared fields of v.
func MetaOf(v Variant) Meta { return v.meta() }

// FromQuestion builds the variant for a stored question.
//
// CorrectAnswer encodings:
//   - multiple_choice: option text, letter ("C") or zero-based index ("2"),
//     tried in that order
//   - true_false: "true" or "false"
//   - short_answer: alternatives separated by "|"
//   - fill_blanks: blanks separated by ";", alternatives by "|"
func FromQuestion(q model.Question) (Variant, error) {
	meta := Meta{ID: q.ID, Prompt: q.Question, Marks: q.Marks, Order: q.Order}

	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %s: multiple choice needs at least 2 options", q.ID)
		}
		idx, ok := optionIndex(q.Options, q.CorrectAnswer)
		if !ok {
			return nil, fmt.Errorf("question %s: correct answer %q matches no option", q.ID, q.CorrectAnswer)
		}
		return MultipleChoice{Meta: meta, Options: q.Options, Correct: idx}, nil

	case model.QuestionTypeTrueFalse:
		v, err := strconv.ParseBool(strings.TrimSpace(q.CorrectAnswer))
		if err != nil {
			return nil, fmt.Errorf("question %s: true/false answer %q: %w", q.ID, q.CorrectAnswer, err)
		}
		return TrueFalse{Meta: meta, Correct: v}, nil

	case model.QuestionTypeShortAnswer:
		return ShortAnswer{Meta: meta, Accepted: splitAlternatives(q.CorrectAnswer)}, nil

	case model.QuestionTypeFillBlanks:
		var blanks [][]string
		for _, part := range strings.Split(q.CorrectAnswer, ";") {
			if alts := splitAlternatives(part); len(alts) > 0 {
				blanks = append(blanks, alts)
			}
		}
		if len(blanks) == 0 {
			return nil, fmt.Errorf("question %s: fill in the blanks needs at least one blank", q.ID)
		}
		return FillBlanks{Meta: meta, Blanks: blanks}, nil

	case model.QuestionTypeEssay:
		return Essay{Meta: meta}, nil

	default:
		return nil, fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
}

// Type returns the stored discriminator of v.
func Type(v Variant) model.QuestionType {
	switch v.(type) {
	case MultipleChoice:
		return model.QuestionTypeMultipleChoice
	case TrueFalse:
		return model.QuestionTypeTrueFalse
	case ShortAnswer:
		return model.QuestionTypeShortAnswer
	case FillBlanks:
		return model.QuestionTypeFillBlanks
	case Essay:
		return model.QuestionTypeEssay
	default:
		panic(fmt.Sprintf("grading: unhandled variant %T", v))
	}
}

// StudentView renders v without its answer key.
func StudentView(v Variant) model.QuestionForStudent {
	b := v.meta()
	out := model.QuestionForStudent{
		ID:       b.ID,
		Question: b.Prompt,
		Type:     Type(v),
		Marks:    b.Marks,
		Order:    b.Order,
	}

	switch q := v.(type) {
	case MultipleChoice:
		out.Options = q.Options
	case TrueFalse:
		out.Options = []string{"True", "False"}
	case FillBlanks:
		out.Blanks = len(q.Blanks)
	case ShortAnswer, Essay:
	default:
		panic(fmt.Sprintf("grading: unhandled variant %T", v))
	}
	return out
}

// ValidateQuestion reports whether q can be turned into a variant.
func ValidateQuestion(q model.Question) error {
	_, err := FromQuestion(q)
	return err
}

// optionIndex resolves a stored key or a string answer to an option. Option
// text wins over the letter and index forms, so numeric options such as
// "3", "4" are matched by value.
func optionIndex(options []string, s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), s) {
			return i, true
		}
	}
	if len(s) == 1 {
		if c := s[0] | 0x20; c >= 'a' && c <= 'z' {
			n := int(c - 'a')
			return n, n < len(options)
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0 && n < len(options)
	}
	return 0, false
}

func splitAlternatives(s string) []string {
	var out []string
	for _, alt := range strings.Split(s, "|") {
		if alt = strings.TrimSpace(alt); alt != "" {
			out = append(out, alt)
		}
	}
	return out
}
