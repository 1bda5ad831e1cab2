package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quiz-proctor/internal/app"
	"quiz-proctor/internal/domain"
)

func TestScoreAllCorrectEqualsMax(t *testing.T) {
	quiz := objectiveQuiz()
	answers := map[string]string{"q_mc": "Red", "q_tf": "True", "q_id": "grey"}

	got := app.Score(quiz, answers)
	require.Equal(t, 6.0, got.Max)
	require.Equal(t, got.Max, got.Total)
	require.Len(t, got.PerQuestion, 3)
}

func TestScoreEmptyAnswersIsZero(t *testing.T) {
	for name, quiz := range map[string]domain.Quiz{
		"objective": objectiveQuiz(),
		"essay":     gradedQuiz(),
	} {
		t.Run(name, func(t *testing.T) {
			got := app.Score(quiz, map[string]string{})
			require.Zero(t, got.Total)
			for _, q := range got.PerQuestion {
				require.Zero(t, q.Earned, q.QuestionKey)
			}
		})
	}
}

func TestScoreIdentificationIgnoresCaseAndSpace(t *testing.T) {
	quiz := objectiveQuiz()
	for _, answer := range []string{" Gray ", "gray", "GREY", "grey\t"} {
		got := app.Score(quiz, map[string]string{"q_id": answer})
		require.Equal(t, 3.0, got.Total, answer)
	}
	got := app.Score(quiz, map[string]string{"q_id": "gray or grey"})
	require.Zero(t, got.Total)
}

func TestScoreChoiceIsExact(t *testing.T) {
	quiz := objectiveQuiz()
	tests := map[string]struct {
		answers map[string]string
		want    float64
	}{
		"exact":         {answers: map[string]string{"q_mc": "Red", "q_tf": "True"}, want: 3},
		"lowercase":     {answers: map[string]string{"q_mc": "red", "q_tf": "true"}, want: 0},
		"padded":        {answers: map[string]string{"q_mc": " Red", "q_tf": "True "}, want: 0},
		"wrong options": {answers: map[string]string{"q_mc": "Pink", "q_tf": "False"}, want: 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.want, app.Score(quiz, tt.answers).Total)
		})
	}
}

func TestScoreNeverGradesEssays(t *testing.T) {
	quiz := gradedQuiz()
	quiz.Questions[1].Normalize()

	got := app.Score(quiz, map[string]string{"q_0": "B", "q_1": "a brilliant essay"})
	require.Equal(t, 1.0, got.Total)
	require.Equal(t, 6.0, got.Max)
	require.Equal(t, domain.QuestionScore{QuestionKey: "q_1", Earned: 0, Max: 5}, got.PerQuestion[1])
}
