package app

import (
	"slices"

	"quiz-proctor/internal/domain"
)

// ReviewItem is what a student sees for one question once results are released.
// Correct is nil for essays, which have no binary correctness.
type ReviewItem struct {
	QuestionKey   string                   `json:"questionKey"`
	Text          string                   `json:"text"`
	Type          domain.QuestionType      `json:"type"`
	Answer        string                   `json:"answer"`
	Correct       *bool                    `json:"correct,omitempty"`
	CorrectAnswer string                   `json:"correctAnswer,omitempty"`
	Rubric        []domain.RubricCriterion `json:"rubric,omitempty"`
	RubricScores  []float64                `json:"rubricScores,omitempty"`
	Earned        float64                  `json:"earned"`
	Max           float64                  `json:"max"`
}

// BuildReview recomputes correctness from the stored answers. The expected answer is only
// revealed for questions the student got wrong.
func BuildReview(quiz domain.Quiz, rec domain.SubmissionRecord) []ReviewItem {
	items := make([]ReviewItem, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		key := domain.QuestionKey(q, i)
		answer, answered := rec.Answers[key]
		item := ReviewItem{
			QuestionKey: key,
			Text:        q.Text,
			Type:        q.Type(),
			Answer:      answer,
			Max:         q.Score,
		}

		if essay, ok := q.Body.(domain.Essay); ok {
			item.Rubric = essay.Rubric
			item.RubricScores = slices.Clone(rec.RubricScores[key])
			item.Earned = essayEarned(essay, rec.RubricScores[key])
			items = append(items, item)
			continue
		}

		correct, _ := isCorrect(q, answer)
		correct = correct && answered
		item.Correct = &correct
		if correct {
			item.Earned = q.Score
		} else {
			item.CorrectAnswer = q.CorrectAnswer()
		}
		items = append(items, item)
	}
	return items
}

// StudentQuestion is a question stripped of its answer key.
type StudentQuestion struct {
	QuestionKey string                   `json:"questionKey"`
	Text        string                   `json:"text"`
	Type        domain.QuestionType      `json:"type"`
	Score       float64                  `json:"score"`
	Options     []string                 `json:"options,omitempty"`
	Rubric      []domain.RubricCriterion `json:"rubric,omitempty"`
}

// StudentView renders the quiz for an in-progress attempt without correct answers.
func StudentView(quiz domain.Quiz) []StudentQuestion {
	view := make([]StudentQuestion, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		sq := StudentQuestion{
			QuestionKey: domain.QuestionKey(q, i),
			Text:        q.Text,
			Type:        q.Type(),
			Score:       q.Score,
		}
		switch b := q.Body.(type) {
		case domain.MultipleChoice:
			sq.Options = b.Options
		case domain.TrueFalse:
			sq.Options = []string{"True", "False"}
		case domain.Essay:
			sq.Rubric = b.Rubric
		}
		view = append(view, sq)
	}
	return view
}
