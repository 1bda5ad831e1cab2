package app

import (
	"fmt"

	"quiz-proctor/internal/domain"
)

// applyCriterionScore clamps points into [0, criterion max], stores it on the record and
// recomputes the record score from the stored answers.
func applyCriterionScore(quiz domain.Quiz, rec *domain.SubmissionRecord, questionKey string, criterion int, points float64) error {
	q, _, ok := quiz.QuestionByKey(questionKey)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionKey)
	}
	essay, ok := q.Body.(domain.Essay)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotEssayQuestion, questionKey)
	}
	if criterion < 0 || criterion >= len(essay.Rubric) {
		return fmt.Errorf("%w: %s[%d]", domain.ErrCriterionNotFound, questionKey, criterion)
	}

	if rec.RubricScores == nil {
		rec.RubricScores = make(map[string][]float64)
	}
	scores := rec.RubricScores[questionKey]
	if len(scores) < len(essay.Rubric) {
		grown := make([]float64, len(essay.Rubric))
		copy(grown, scores)
		scores = grown
	}
	scores[criterion] = clamp(points, 0, essay.Rubric[criterion].Points)
	rec.RubricScores[questionKey] = scores

	rec.Score = recomputeScore(quiz, *rec)
	return nil
}

// recomputeScore is the auto-graded total of the stored answers plus every essay's
// current criteria scores, bounded by the record's total.
func recomputeScore(quiz domain.Quiz, rec domain.SubmissionRecord) float64 {
	total := Score(quiz, rec.Answers).Total
	for i, q := range quiz.Questions {
		essay, ok := q.Body.(domain.Essay)
		if !ok {
			continue
		}
		total += essayEarned(essay, rec.RubricScores[domain.QuestionKey(q, i)])
	}
	return clamp(total, 0, rec.TotalScore)
}

// essayEarned sums criteria scores against the current rubric; rows beyond it are ignored.
func essayEarned(essay domain.Essay, scores []float64) float64 {
	var earned float64
	for i, s := range scores {
		if i >= len(essay.Rubric) {
			break
		}
		earned += clamp(s, 0, essay.Rubric[i].Points)
	}
	return earned
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
