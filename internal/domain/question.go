package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// QuestionType is the stored discriminator of a question variant.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "Multiple Choice"
	TypeTrueFalse      QuestionType = "True or False"
	TypeIdentification QuestionType = "Short Answer"
	TypeEssay          QuestionType = "Essay"
)

// Question is one item of a quiz. Body holds the variant-specific fields.
type Question struct {
	ID    string
	Text  string
	Score float64
	Body  QuestionBody
}

// QuestionBody is implemented only by the four variants in this package.
type QuestionBody interface {
	Type() QuestionType
	isQuestionBody()
}

// MultipleChoice is graded by exact match against CorrectOption.
type MultipleChoice struct {
	Options       []string
	CorrectOption string
}

// TrueFalse is graded by exact match against "True" or "False".
type TrueFalse struct {
	CorrectOption string
}

// Identification is free text graded against the accepted answers. Answer is authored
// as a single string with " or " between alternatives.
type Identification struct {
	Answer string
}

// Essay is never auto-graded; its score is the sum of its rubric points.
type Essay struct {
	Rubric []RubricCriterion
}

// RubricCriterion is one row of an essay rubric.
type RubricCriterion struct {
	Criteria string  `json:"criteria" yaml:"criteria"`
	Points   float64 `json:"points" yaml:"points"`
}

func (MultipleChoice) Type() QuestionType { return TypeMultipleChoice }
func (TrueFalse) Type() QuestionType      { return TypeTrueFalse }
func (Identification) Type() QuestionType { return TypeIdentification }
func (Essay) Type() QuestionType          { return TypeEssay }

func (MultipleChoice) isQuestionBody() {}
func (TrueFalse) isQuestionBody()      {}
func (Identification) isQuestionBody() {}
func (Essay) isQuestionBody()          {}

// AcceptedAnswers splits the authored answer on " or " and normalizes each alternative.
// An accepted answer that itself contains the word "or" cannot be expressed.
func (i Identification) AcceptedAnswers() []string {
	parts := strings.Split(NormalizeAnswer(i.Answer), " or ")
	accepted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			accepted = append(accepted, p)
		}
	}
	return accepted
}

// NormalizeAnswer trims and lowercases free-text answers.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RubricTotal sums the rubric points.
func (e Essay) RubricTotal() float64 {
	var total float64
	for _, r := range e.Rubric {
		total += r.Points
	}
	return total
}

// Type returns the variant discriminator, or "" when the body is missing.
func (q Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// Normalize restores the essay invariant score == sum(rubric points).
func (q *Question) Normalize() {
	if e, ok := q.Body.(Essay); ok {
		q.Score = e.RubricTotal()
	}
}

// CorrectAnswer renders the expected answer for review screens. Essays have none.
func (q Question) CorrectAnswer() string {
	switch b := q.Body.(type) {
	case MultipleChoice:
		return b.CorrectOption
	case TrueFalse:
		return b.CorrectOption
	case Identification:
		return b.Answer
	default:
		return ""
	}
}

// questionWire is the flat shape questions are stored and imported in.
type questionWire struct {
	ID      string            `json:"id,omitempty" yaml:"id,omitempty"`
	Text    string            `json:"text" yaml:"text"`
	Type    QuestionType      `json:"type" yaml:"type"`
	Score   float64           `json:"score" yaml:"score"`
	Options []string          `json:"options,omitempty" yaml:"options,omitempty"`
	Answer  string            `json:"answer,omitempty" yaml:"answer,omitempty"`
	Rubric  []RubricCriterion `json:"rubric,omitempty" yaml:"rubric,omitempty"`
}

func (q Question) toWire() questionWire {
	w := questionWire{ID: q.ID, Text: q.Text, Type: q.Type(), Score: q.Score}
	switch b := q.Body.(type) {
	case MultipleChoice:
		w.Options = b.Options
		w.Answer = b.CorrectOption
	case TrueFalse:
		w.Options = []string{"True", "False"}
		w.Answer = b.CorrectOption
	case Identification:
		w.Answer = b.Answer
	case Essay:
		w.Rubric = b.Rubric
	}
	return w
}

func (w questionWire) toQuestion() (Question, error) {
	q := Question{ID: w.ID, Text: w.Text, Score: w.Score}
	switch w.Type {
	case TypeMultipleChoice:
		q.Body = MultipleChoice{Options: w.Options, CorrectOption: w.Answer}
	case TypeTrueFalse:
		q.Body = TrueFalse{CorrectOption: w.Answer}
	case TypeIdentification:
		q.Body = Identification{Answer: w.Answer}
	case TypeEssay:
		q.Body = Essay{Rubric: w.Rubric}
	default:
		return Question{}, fmt.Errorf("%w: %q", ErrUnknownQuestionType, w.Type)
	}
	q.Normalize()
	return q, nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.toWire())
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := w.toQuestion()
	if err != nil {
		return err
	}
	*q = decoded
	return nil
}

func (q Question) MarshalYAML() (interface{}, error) {
	return q.toWire(), nil
}

func (q *Question) UnmarshalYAML(node *yaml.Node) error {
	var w questionWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	decoded, err := w.toQuestion()
	if err != nil {
		return err
	}
	*q = decoded
	return nil
}
