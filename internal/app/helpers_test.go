package app_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-proctor/internal/app"
	"quiz-proctor/internal/domain"
	"quiz-proctor/internal/infra/kvstore"
	"quiz-proctor/internal/infra/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

type fakeSignal struct {
	mu       sync.Mutex
	onChange func(bool)
	stops    int
}

func (s *fakeSignal) Watch(fn func(bool)) func() {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.onChange = nil
		s.stops++
		s.mu.Unlock()
	}
}

func (s *fakeSignal) emit(hidden bool) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(hidden)
	}
}

func (s *fakeSignal) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onChange != nil
}

// flakyStore fails Replace while fail is set.
type flakyStore struct {
	*kvstore.SubmissionStore
	fail atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Replace(quizID string, rec domain.SubmissionRecord) error {
	if s.fail.Load() {
		return errDiskFull
	}
	return s.SubmissionStore.Replace(quizID, rec)
}

type fixture struct {
	clock   *clock
	catalog *kvstore.Catalog
	records *flakyStore
	service *app.QuizService
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	c := newClock()
	store := memory.NewStore()
	f := &fixture{
		clock:   c,
		catalog: kvstore.NewCatalogWithClock(store, c.Now),
		records: &flakyStore{SubmissionStore: kvstore.NewSubmissionStore(store)},
	}
	opts = append([]app.Option{app.WithClock(c.Now)}, opts...)
	f.service = app.NewQuizService(f.catalog, f.records, opts...)
	return f
}

func (f *fixture) create(t *testing.T, quiz domain.Quiz) domain.Quiz {
	t.Helper()
	created, err := f.catalog.Create(quiz)
	require.NoError(t, err)
	return created
}

func (f *fixture) start(t *testing.T, quizID, studentID string) *app.Attempt {
	t.Helper()
	a, err := f.service.StartAttempt(quizID, domain.Student{ID: studentID, Name: "Student " + studentID})
	require.NoError(t, err)
	return a
}

// gradedQuiz is one multiple choice question worth 1 and one essay with a single
// five-point criterion. Keys are q_0 and q_1.
func gradedQuiz() domain.Quiz {
	return domain.Quiz{
		Name:            "Midterm",
		OwnerID:         "prof",
		DurationSeconds: 60,
		Questions: []domain.Question{
			{Text: "Pick B", Score: 1, Body: domain.MultipleChoice{Options: []string{"A", "B", "C"}, CorrectOption: "B"}},
			{Text: "Explain", Body: domain.Essay{Rubric: []domain.RubricCriterion{{Criteria: "Clarity", Points: 5}}}},
		},
	}
}

func objectiveQuiz() domain.Quiz {
	return domain.Quiz{
		Name:            "Colors",
		DurationSeconds: 30,
		Questions: []domain.Question{
			{ID: "mc", Text: "Primary?", Score: 2, Body: domain.MultipleChoice{Options: []string{"Red", "Pink"}, CorrectOption: "Red"}},
			{ID: "tf", Text: "Sky is blue", Score: 1, Body: domain.TrueFalse{CorrectOption: "True"}},
			{ID: "id", Text: "Mix of black and white", Score: 3, Body: domain.Identification{Answer: "Gray or Grey"}},
		},
	}
}

func collect(ch <-chan app.Notice) []app.Notice {
	var out []app.Notice
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

func kinds(notices []app.Notice) []app.NoticeKind {
	out := make([]app.NoticeKind, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Kind)
	}
	return out
}
