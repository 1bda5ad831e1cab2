package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz could not be found in the catalog.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAlreadySubmittedPending refuses a new attempt while the previous one awaits release.
	ErrAlreadySubmittedPending = errors.New("quiz already submitted, results pending release")
	// ErrAttemptInProgress refuses a second live attempt for the same student and quiz.
	ErrAttemptInProgress = errors.New("attempt already in progress")
	// ErrSubmissionNotFound is returned when no record exists for the student on the quiz.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrQuestionNotFound indicates a question key that is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotEssayQuestion is returned when rubric grading targets an auto-graded question.
	ErrNotEssayQuestion = errors.New("question is not an essay")
	// ErrCriterionNotFound indicates a rubric row index out of range.
	ErrCriterionNotFound = errors.New("rubric criterion not found")
	// ErrUnknownQuestionType is returned when decoding a question with an unsupported type.
	ErrUnknownQuestionType = errors.New("unknown question type")
	// ErrInvalidQuiz wraps catalog validation failures.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrStorage wraps persistence adapter and serialization failures.
	ErrStorage = errors.New("storage failure")
)
