package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quiz-proctor/internal/domain"
	"quiz-proctor/internal/telemetry"
)

// Catalog resolves quiz definitions and the quizzes a student has joined.
type Catalog interface {
	FindQuizByID(id string) (domain.Quiz, error)
	Join(quizID, studentID string) error
	JoinedQuizzes(studentID string) ([]string, error)
}

// SubmissionRepository abstracts the per-quiz list of submission records.
type SubmissionRepository interface {
	List(quizID string) ([]domain.SubmissionRecord, error)
	FindByStudent(quizID, studentID string) (domain.SubmissionRecord, bool, error)
	// Replace drops the student's previous record and appends rec.
	Replace(quizID string, rec domain.SubmissionRecord) error
	RemoveStudent(quizID, studentID string) error
	// Modify runs a read-modify-write over the whole list of a quiz.
	Modify(quizID string, fn func([]domain.SubmissionRecord) ([]domain.SubmissionRecord, error)) error
}

// AttemptRegistry keeps at most one live attempt per key.
type AttemptRegistry interface {
	// Claim registers a for key. It reports false when another attempt is still live.
	Claim(key string, a *Attempt) bool
	// Release drops key if it is still held by a.
	Release(key string, a *Attempt)
}

// QuizService contains the quiz-taking and grading use cases.
type QuizService struct {
	catalog     Catalog
	submissions SubmissionRepository
	registry    AttemptRegistry
	policy      Policy
	now         func() time.Time
	newID       func() string
	log         zerolog.Logger
	metrics     *telemetry.Metrics
}

// Option customises a QuizService.
type Option func(*QuizService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func WithPolicy(p Policy) Option {
	return func(s *QuizService) { s.policy = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *QuizService) { s.log = l }
}

// WithRegistry enables the single-live-attempt guard used by OpenAttempt.
func WithRegistry(r AttemptRegistry) Option {
	return func(s *QuizService) { s.registry = r }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *QuizService) { s.metrics = m }
}

func NewQuizService(catalog Catalog, submissions SubmissionRepository, opts ...Option) *QuizService {
	s := &QuizService{
		catalog:     catalog,
		submissions: submissions,
		policy:      DefaultPolicy,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "quiz_service").Logger()
	return s
}

// StartAttempt opens a session for the student. It returns an InProgress attempt for a
// first try or a retake, a Reviewing attempt when results are released, and
// ErrAlreadySubmittedPending while a same-version submission awaits release.
func (s *QuizService) StartAttempt(quizID string, student domain.Student) (*Attempt, error) {
	quiz, err := s.catalog.FindQuizByID(quizID)
	if err != nil {
		return nil, err
	}

	prior, found, err := s.submissions.FindByStudent(quiz.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("load prior submission: %w", err)
	}

	deps := s.attemptDeps()
	if found && !prior.Stale(quiz) {
		if !prior.IsReleased {
			s.metrics.PendingRefusal()
			return nil, domain.ErrAlreadySubmittedPending
		}
		return newReviewAttempt(s.newID(), quiz, student, prior, deps), nil
	}
	if quiz.IsDeleted {
		return nil, domain.ErrQuizNotFound
	}
	// taking a quiz by code counts as joining it, so the attempt shows up in history
	if err := s.catalog.Join(quiz.ID, student.ID); err != nil {
		return nil, fmt.Errorf("record join: %w", err)
	}
	if found {
		if err := s.submissions.RemoveStudent(quiz.ID, student.ID); err != nil {
			return nil, fmt.Errorf("discard stale submission: %w", err)
		}
		s.log.Info().Str("quiz", quiz.ID).Str("student", student.ID).
			Time("taken", prior.QuizVersionTaken).Time("current", quiz.LastUpdated).
			Msg("quiz changed since last attempt, retake allowed")
	}
	return newAttempt(s.newID(), quiz, student, deps), nil
}

// OpenAttempt is StartAttempt plus the registry guard: a second concurrent attempt by the
// same student on the same quiz fails with ErrAttemptInProgress. CloseAttempt must follow.
func (s *QuizService) OpenAttempt(quizID string, student domain.Student) (*Attempt, error) {
	a, err := s.StartAttempt(quizID, student)
	if err != nil {
		return nil, err
	}
	if s.registry == nil || a.Phase() != PhaseInProgress {
		return a, nil
	}
	if !s.registry.Claim(attemptKey(a.quiz.ID, student.ID), a) {
		a.Leave()
		return nil, domain.ErrAttemptInProgress
	}
	return a, nil
}

// CloseAttempt abandons a if it is still in progress and frees its registry slot.
func (s *QuizService) CloseAttempt(a *Attempt) {
	a.Leave()
	if s.registry != nil {
		s.registry.Release(attemptKey(a.quiz.ID, a.student.ID), a)
	}
}

func attemptKey(quizID, studentID string) string {
	return quizID + ":" + studentID
}

// GradeCriterion sets one essay criterion score, clamped to the criterion's points, and
// writes the recomputed record back immediately.
func (s *QuizService) GradeCriterion(quizID, studentID, questionKey string, criterion int, points float64) (domain.SubmissionRecord, error) {
	quiz, err := s.catalog.FindQuizByID(quizID)
	if err != nil {
		return domain.SubmissionRecord{}, err
	}

	var graded domain.SubmissionRecord
	err = s.submissions.Modify(quiz.ID, func(records []domain.SubmissionRecord) ([]domain.SubmissionRecord, error) {
		for i := range records {
			if records[i].StudentID != studentID {
				continue
			}
			if err := applyCriterionScore(quiz, &records[i], questionKey, criterion, points); err != nil {
				return nil, err
			}
			graded = records[i]
			return records, nil
		}
		return nil, fmt.Errorf("%w: quiz %s student %s", domain.ErrSubmissionNotFound, quiz.ID, studentID)
	})
	if err != nil {
		return domain.SubmissionRecord{}, err
	}

	s.metrics.RubricEdit()
	s.log.Info().Str("quiz", quiz.ID).Str("student", studentID).Str("question", questionKey).
		Int("criterion", criterion).Float64("score", graded.Score).Msg("rubric criterion graded")
	return graded, nil
}

// Release exposes results for every submission of the quiz. There is no per-student
// release and no way back.
func (s *QuizService) Release(quizID string) (int, error) {
	quiz, err := s.catalog.FindQuizByID(quizID)
	if err != nil {
		return 0, err
	}
	quizID = quiz.ID

	var released int
	err = s.submissions.Modify(quizID, func(records []domain.SubmissionRecord) ([]domain.SubmissionRecord, error) {
		released = 0
		for i := range records {
			if !records[i].IsReleased {
				released++
			}
			records[i].IsReleased = true
		}
		return records, nil
	})
	if err != nil {
		return 0, fmt.Errorf("release quiz %s: %w", quizID, err)
	}
	s.metrics.Released(released)
	s.log.Info().Str("quiz", quizID).Int("released", released).Msg("results released")
	return released, nil
}

// Results lists a quiz's submissions in submission order.
func (s *QuizService) Results(quizID string) ([]domain.SubmissionRecord, error) {
	records, err := s.submissions.List(quizID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SubmittedAt.Before(records[j].SubmittedAt)
	})
	return records, nil
}

// Join adds the quiz to the student's joined list.
func (s *QuizService) Join(quizID, studentID string) (domain.Quiz, error) {
	quiz, err := s.catalog.FindQuizByID(quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.IsDeleted {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err := s.catalog.Join(quiz.ID, studentID); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// HistoryFilter narrows a student's history. Month is a "YYYY-MM" prefix.
type HistoryFilter struct {
	Title string
	Month string
}

// History lists the student's taken quizzes, newest first.
func (s *QuizService) History(studentID string, filter HistoryFilter) ([]domain.HistoryEntry, error) {
	joined, err := s.catalog.JoinedQuizzes(studentID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.HistoryEntry, 0, len(joined))
	for _, quizID := range joined {
		rec, found, err := s.submissions.FindByStudent(quizID, studentID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		title := quizID
		quiz, err := s.catalog.FindQuizByID(quizID)
		switch {
		case err == nil:
			title = quiz.Name
		case !errors.Is(err, domain.ErrQuizNotFound):
			return nil, err
		}
		entry := domain.HistoryEntry{
			QuizID:     quizID,
			QuizTitle:  title,
			Score:      rec.Score,
			TotalScore: rec.TotalScore,
			DateTaken:  rec.SubmittedAt,
			IsReleased: rec.IsReleased,
		}
		if !filter.matches(entry) {
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DateTaken.After(entries[j].DateTaken)
	})
	return entries, nil
}

func (f HistoryFilter) matches(e domain.HistoryEntry) bool {
	if f.Title != "" && !strings.Contains(strings.ToLower(e.QuizTitle), strings.ToLower(f.Title)) {
		return false
	}
	if f.Month != "" && !strings.HasPrefix(e.DateTaken.Format("2006-01-02"), f.Month) {
		return false
	}
	return true
}

func (s *QuizService) attemptDeps() attemptDeps {
	return attemptDeps{
		policy:  s.policy,
		records: s.submissions,
		now:     s.now,
		log:     s.log,
		metrics: s.metrics,
	}
}
