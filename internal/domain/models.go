package domain

import (
	"strconv"
	"time"
)

// Quiz is an instructor-authored set of questions taken under a time limit.
// LastUpdated is bumped on every content edit and versions the submissions taken against it.
type Quiz struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Name            string     `json:"name" validate:"required"`
	DurationSeconds int        `json:"durationSeconds" validate:"gt=0"`
	Questions       []Question `json:"questions" validate:"min=1,dive"`
	LastUpdated     time.Time  `json:"lastUpdated"`
	IsDeleted       bool       `json:"isDeleted"`
}

// QuestionKey returns the stable answer key of the i-th question.
func (q Quiz) QuestionKey(i int) string {
	return QuestionKey(q.Questions[i], i)
}

// QuestionByKey finds a question by its answer key.
func (q Quiz) QuestionByKey(key string) (Question, int, bool) {
	for i := range q.Questions {
		if QuestionKey(q.Questions[i], i) == key {
			return q.Questions[i], i, true
		}
	}
	return Question{}, -1, false
}

// QuestionKey derives "q_<id>", falling back to the question's position when it has no id.
func QuestionKey(q Question, index int) string {
	if q.ID != "" {
		return "q_" + q.ID
	}
	return "q_" + strconv.Itoa(index)
}

// Student identifies the person taking an attempt.
type Student struct {
	ID   string
	Name string
}

// SubmissionRecord is the single stored outcome of a student's attempt at a quiz.
type SubmissionRecord struct {
	StudentID        string               `json:"studentId"`
	StudentName      string               `json:"studentName"`
	Answers          map[string]string    `json:"answers"`
	RubricScores     map[string][]float64 `json:"rubricScores,omitempty"`
	Score            float64              `json:"score"`
	TotalScore       float64              `json:"totalScore"`
	Violations       int                  `json:"violations"`
	TimeTakenSeconds int                  `json:"timeTaken"`
	IsReleased       bool                 `json:"isReleased"`
	QuizVersionTaken time.Time            `json:"quizVersionTaken"`
	SubmittedAt      time.Time            `json:"submittedAt"`
}

// Stale reports whether the quiz changed after this record was taken, which permits a retake.
func (r SubmissionRecord) Stale(quiz Quiz) bool {
	return quiz.LastUpdated.After(r.QuizVersionTaken)
}

// QuestionScore is the graded outcome of one question.
type QuestionScore struct {
	QuestionKey string  `json:"questionKey"`
	Earned      float64 `json:"earned"`
	Max         float64 `json:"max"`
}

// ScoreBreakdown is the per-question and aggregate result of grading a set of answers.
type ScoreBreakdown struct {
	PerQuestion []QuestionScore `json:"perQuestion"`
	Total       float64         `json:"total"`
	Max         float64         `json:"max"`
}

// HistoryEntry summarises one taken quiz for a student's history list.
type HistoryEntry struct {
	QuizID     string    `json:"quizId"`
	QuizTitle  string    `json:"quizTitle"`
	Score      float64   `json:"score"`
	TotalScore float64   `json:"totalScore"`
	DateTaken  time.Time `json:"dateTaken"`
	IsReleased bool      `json:"isReleased"`
}
