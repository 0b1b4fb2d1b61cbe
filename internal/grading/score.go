package grading

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/examprep/examprep-backend/internal/model"
)

// Outcome is the result of scoring one answer.
type Outcome struct {
	Answered    bool
	Earned      float64
	NeedsReview bool
	Status      model.ItemStatus
}

// Score grades a raw answer against v. An empty or null answer is unanswered.
// Malformed answers score zero.
func Score(v Variant, answer json.RawMessage) Outcome {
	if isBlank(answer) {
		return Outcome{Status: model.ItemUnanswered}
	}

	switch q := v.(type) {
	case MultipleChoice:
		idx, ok := answerIndex(q.Options, answer)
		return binary(ok && idx == q.Correct, q.Marks)

	case TrueFalse:
		b, ok := answerBool(answer)
		return binary(ok && b == q.Correct, q.Marks)

	case ShortAnswer:
		text, ok := answerText(answer)
		if !ok {
			return binary(false, q.Marks)
		}
		if len(q.Accepted) == 0 {
			return Outcome{Answered: true, NeedsReview: true, Status: model.ItemPendingReview}
		}
		return binary(matchesAny(text, q.Accepted), q.Marks)

	case FillBlanks:
		parts, ok := answerList(answer)
		if !ok {
			return binary(false, q.Marks)
		}
		hits := 0
		for i, accepted := range q.Blanks {
			if i < len(parts) && matchesAny(parts[i], accepted) {
				hits++
			}
		}
		earned := round2(q.Marks * float64(hits) / float64(len(q.Blanks)))
		status := model.ItemWrong
		if hits == len(q.Blanks) {
			status = model.ItemCorrect
		}
		return Outcome{Answered: true, Earned: earned, Status: status}

	case Essay:
		return Outcome{Answered: true, NeedsReview: true, Status: model.ItemPendingReview}

	default:
		panic(fmt.Sprintf("grading: unhandled variant %T", v))
	}
}

func binary(correct bool, marks float64) Outcome {
	if correct {
		return Outcome{Answered: true, Earned: marks, Status: model.ItemCorrect}
	}
	return Outcome{Answered: true, Status: model.ItemWrong}
}

func isBlank(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""` || s == "[]"
}

// answerIndex accepts a JSON number as a zero-based index. A JSON string is
// resolved like a stored key, option text first.
func answerIndex(options []string, raw json.RawMessage) (int, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != math.Trunc(n) {
			return 0, false
		}
		i := int(n)
		return i, i >= 0 && i < len(options)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return optionIndex(options, s)
	}
	return 0, false
}

func answerBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		return v, err == nil
	}
	return false, false
}

func answerText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// answerList accepts an array of strings, or a single string for one blank.
func answerList(raw json.RawMessage) ([]string, bool) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	if s, ok := answerText(raw); ok {
		return []string{s}, true
	}
	return nil, false
}

func matchesAny(got string, accepted []string) bool {
	got = normalize(got)
	for _, a := range accepted {
		if normalize(a) == got {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
