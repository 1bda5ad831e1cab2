package kvstore

import (
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"quiz-proctor/internal/domain"
)

const (
	quizzesKey         = "app_quizzes"
	joinedKeyPrefix    = "app_joined_quizzes_"
	maxJoinCodeRetries = 32
)

// Catalog stores quiz definitions as one JSON array under app_quizzes and each
// student's joined quiz ids under app_joined_quizzes_<studentId>.
type Catalog struct {
	adapter  Adapter
	validate *validator.Validate
	now      func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalog(adapter Adapter) *Catalog {
	return NewCatalogWithClock(adapter, time.Now)
}

// NewCatalogWithClock allows deterministic version stamps in tests.
func NewCatalogWithClock(adapter Adapter, now func() time.Time) *Catalog {
	v := validator.New()
	v.RegisterStructValidation(validateQuestion, domain.Question{})
	v.RegisterStructValidation(validateQuestionKeys, domain.Quiz{})
	return &Catalog{
		adapter:  adapter,
		validate: v,
		now:      now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create validates the quiz, assigns a fresh 6-digit join code and stamps its version.
func (c *Catalog) Create(quiz domain.Quiz) (domain.Quiz, error) {
	if err := c.prepare(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	err := updateJSON(c.adapter, quizzesKey, func(quizzes []domain.Quiz) ([]domain.Quiz, error) {
		id, err := c.uniqueJoinCode(quizzes)
		if err != nil {
			return nil, err
		}
		quiz.ID = id
		quiz.IsDeleted = false
		quiz.LastUpdated = c.now()
		return append(quizzes, quiz), nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// Update replaces a quiz's content and bumps LastUpdated, which makes earlier submissions stale.
func (c *Catalog) Update(id string, quiz domain.Quiz) (domain.Quiz, error) {
	if err := c.prepare(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	id = strings.TrimSpace(id)
	var updated domain.Quiz
	err := updateJSON(c.adapter, quizzesKey, func(quizzes []domain.Quiz) ([]domain.Quiz, error) {
		i := indexOf(quizzes, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, id)
		}
		prev := quizzes[i]
		quiz.ID = prev.ID
		if quiz.OwnerID == "" {
			quiz.OwnerID = prev.OwnerID
		}
		quiz.IsDeleted = prev.IsDeleted
		quiz.LastUpdated = c.now()
		if !quiz.LastUpdated.After(prev.LastUpdated) {
			quiz.LastUpdated = prev.LastUpdated.Add(time.Millisecond)
		}
		quizzes[i] = quiz
		updated = quiz
		return quizzes, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return updated, nil
}

// SoftDelete hides the quiz from listings and new attempts. Submissions are kept.
func (c *Catalog) SoftDelete(id string) error {
	id = strings.TrimSpace(id)
	return updateJSON(c.adapter, quizzesKey, func(quizzes []domain.Quiz) ([]domain.Quiz, error) {
		i := indexOf(quizzes, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, id)
		}
		quizzes[i].IsDeleted = true
		return quizzes, nil
	})
}

// FindQuizByID returns the quiz, including soft-deleted ones.
func (c *Catalog) FindQuizByID(id string) (domain.Quiz, error) {
	quizzes, err := c.all()
	if err != nil {
		return domain.Quiz{}, err
	}
	if i := indexOf(quizzes, strings.TrimSpace(id)); i >= 0 {
		return quizzes[i], nil
	}
	return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, id)
}

// List returns the live quizzes of an owner; an empty owner lists all of them.
func (c *Catalog) List(ownerID string) ([]domain.Quiz, error) {
	quizzes, err := c.all()
	if err != nil {
		return nil, err
	}
	live := make([]domain.Quiz, 0, len(quizzes))
	for _, q := range quizzes {
		if q.IsDeleted || (ownerID != "" && q.OwnerID != ownerID) {
			continue
		}
		live = append(live, q)
	}
	return live, nil
}

// Join appends quizID to the student's joined list once.
func (c *Catalog) Join(quizID, studentID string) error {
	return updateJSON(c.adapter, joinedKeyPrefix+studentID, func(joined []string) ([]string, error) {
		if slices.Contains(joined, quizID) {
			return joined, nil
		}
		return append(joined, quizID), nil
	})
}

func (c *Catalog) JoinedQuizzes(studentID string) ([]string, error) {
	var joined []string
	if err := loadJSON(c.adapter, joinedKeyPrefix+studentID, &joined); err != nil {
		return nil, err
	}
	return joined, nil
}

func (c *Catalog) all() ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	if err := loadJSON(c.adapter, quizzesKey, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

func (c *Catalog) prepare(quiz *domain.Quiz) error {
	for i := range quiz.Questions {
		quiz.Questions[i].Normalize()
	}
	if err := c.validate.Struct(quiz); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidQuiz, err)
	}
	return nil
}

func (c *Catalog) uniqueJoinCode(quizzes []domain.Quiz) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < maxJoinCodeRetries; i++ {
		id := strconv.Itoa(100000 + c.rnd.Intn(900000))
		if indexOf(quizzes, id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no free join code after %d tries", domain.ErrStorage, maxJoinCodeRetries)
}

func indexOf(quizzes []domain.Quiz, id string) int {
	for i := range quizzes {
		if quizzes[i].ID == id {
			return i
		}
	}
	return -1
}

// validateQuestionKeys rejects quizzes where two questions would share an answer slot,
// e.g. an explicit id "1" next to an id-less question at index 1.
func validateQuestionKeys(sl validator.StructLevel) {
	quiz := sl.Current().Interface().(domain.Quiz)
	seen := make(map[string]struct{}, len(quiz.Questions))
	for i := range quiz.Questions {
		key := quiz.QuestionKey(i)
		if _, dup := seen[key]; dup {
			sl.ReportError(quiz.Questions, "Questions", "Questions", "uniquekey", key)
			return
		}
		seen[key] = struct{}{}
	}
}

func validateQuestion(sl validator.StructLevel) {
	q := sl.Current().Interface().(domain.Question)
	if strings.TrimSpace(q.Text) == "" {
		sl.ReportError(q.Text, "Text", "Text", "required", "")
	}
	if q.Score < 0 {
		sl.ReportError(q.Score, "Score", "Score", "gte", "0")
	}
	switch b := q.Body.(type) {
	case domain.MultipleChoice:
		if len(b.Options) < 2 {
			sl.ReportError(b.Options, "Options", "Options", "min", "2")
		}
		if !slices.Contains(b.Options, b.CorrectOption) {
			sl.ReportError(b.CorrectOption, "Answer", "CorrectOption", "oneof", strings.Join(b.Options, " "))
		}
	case domain.TrueFalse:
		if b.CorrectOption != "True" && b.CorrectOption != "False" {
			sl.ReportError(b.CorrectOption, "Answer", "CorrectOption", "oneof", "True False")
		}
	case domain.Identification:
		if len(b.AcceptedAnswers()) == 0 {
			sl.ReportError(b.Answer, "Answer", "Answer", "required", "")
		}
	case domain.Essay:
		if len(b.Rubric) == 0 {
			sl.ReportError(b.Rubric, "Rubric", "Rubric", "min", "1")
		}
		for _, r := range b.Rubric {
			if strings.TrimSpace(r.Criteria) == "" || r.Points < 0 {
				sl.ReportError(b.Rubric, "Rubric", "Rubric", "rubric", "")
				break
			}
		}
	default:
		sl.ReportError(q.Body, "Body", "Body", "required", "")
	}
}
