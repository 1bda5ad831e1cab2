package app

import (
	"slices"

	"quiz-proctor/internal/domain"
)

// Score grades answers against the quiz. It never touches storage and always awards
// essays zero; essay credit only comes from rubric grading.
func Score(quiz domain.Quiz, answers map[string]string) domain.ScoreBreakdown {
	breakdown := domain.ScoreBreakdown{
		PerQuestion: make([]domain.QuestionScore, 0, len(quiz.Questions)),
	}
	for i, q := range quiz.Questions {
		key := domain.QuestionKey(q, i)
		var earned float64
		if answer, ok := answers[key]; ok {
			if correct, gradable := isCorrect(q, answer); gradable && correct {
				earned = q.Score
			}
		}
		breakdown.PerQuestion = append(breakdown.PerQuestion, domain.QuestionScore{
			QuestionKey: key,
			Earned:      earned,
			Max:         q.Score,
		})
		breakdown.Total += earned
		breakdown.Max += q.Score
	}
	return breakdown
}

// isCorrect reports binary correctness. gradable is false for essays.
func isCorrect(q domain.Question, answer string) (correct, gradable bool) {
	switch b := q.Body.(type) {
	case domain.MultipleChoice:
		return answer == b.CorrectOption, true
	case domain.TrueFalse:
		return answer == b.CorrectOption, true
	case domain.Identification:
		return slices.Contains(b.AcceptedAnswers(), domain.NormalizeAnswer(answer)), true
	default:
		return false, false
	}
}
