package grading

import (
	"sort"

	"github.com/examprep/examprep-backend/internal/model"
)

// Summary is the graded state of a whole attempt.
type Summary struct {
	Score       float64
	TotalMarks  float64
	NeedsReview bool // some manually graded item has no award yet
	Items       []model.ResultItem
}

// Percentage is the score as a percent of total marks.
func (s Summary) Percentage() float64 {
	if s.TotalMarks <= 0 {
		return 0
	}
	return round2(s.Score / s.TotalMarks * 100)
}

// Grade scores answers against questions. awards supplies reviewer marks for
// manually graded items and is capped at each question's marks. Answers keyed by
// ids outside questions are ignored. Questions that cannot be graded still count
// towards TotalMarks but earn nothing.
func Grade(questions []model.Question, answers model.Answers, awards map[string]float64) Summary {
	ordered := make([]model.Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var sum Summary
	sum.Items = make([]model.ResultItem, 0, len(ordered))

	for _, q := range ordered {
		key := q.ID.String()
		answer := answers[key]
		item := model.ResultItem{
			QuestionID: q.ID,
			Order:      q.Order,
			Type:       q.Type,
			Question:   q.Question,
			Marks:      q.Marks,
		}
		if !isBlank(answer) {
			item.Answer = answer
		}
		if q.Type != model.QuestionTypeEssay {
			item.CorrectAnswer = q.CorrectAnswer
		}
		sum.TotalMarks += q.Marks

		v, err := FromQuestion(q)
		if err != nil {
			item.Status = model.ItemWrong
			if isBlank(answer) {
				item.Status = model.ItemUnanswered
			}
			sum.Items = append(sum.Items, item)
			continue
		}

		out := Score(v, answer)
		item.Earned = out.Earned
		item.Status = out.Status
		if out.NeedsReview {
			if award, ok := awards[key]; ok {
				item.Earned = round2(min(max(award, 0), q.Marks))
				item.Status = model.ItemReviewed
			} else {
				sum.NeedsReview = true
			}
		}
		sum.Score += item.Earned
		sum.Items = append(sum.Items, item)
	}

	sum.Score = round2(sum.Score)
	sum.TotalMarks = round2(sum.TotalMarks)
	return sum
}

// PendingReview lists the question ids that still await a reviewer award.
func PendingReview(s Summary) []string {
	var ids []string
	for _, it := range s.Items {
		if it.Status == model.ItemPendingReview {
			ids = append(ids, it.QuestionID.String())
		}
	}
	return ids
}
