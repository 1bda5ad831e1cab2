package app

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quiz-proctor/internal/domain"
	"quiz-proctor/internal/telemetry"
)

// Phase is the lifecycle stage of an attempt.
type Phase int

const (
	PhaseInProgress Phase = iota
	PhaseSubmitted
	PhaseReviewing
	// PhaseAbandoned is entered when the student leaves before submitting; nothing is written.
	PhaseAbandoned
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseSubmitted:
		return "submitted"
	case PhaseReviewing:
		return "reviewing"
	case PhaseAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SubmitReason says why an attempt ended.
type SubmitReason int

const (
	ReasonManual SubmitReason = iota
	ReasonTimeout
	ReasonViolationLimit
)

func (r SubmitReason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonTimeout:
		return "timeout"
	case ReasonViolationLimit:
		return "violation_limit"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// NoticeKind classifies side-channel notifications for the host UI.
type NoticeKind string

const (
	NoticeTick       NoticeKind = "tick"
	NoticeViolation  NoticeKind = "violation"
	NoticeWarning    NoticeKind = "warning"
	NoticeSubmitted  NoticeKind = "submitted"
	NoticeSaveFailed NoticeKind = "save_failed"
)

// Notice is pushed to subscribers on every observable change of an attempt.
type Notice struct {
	Kind             NoticeKind               `json:"kind"`
	SecondsRemaining int                      `json:"secondsRemaining"`
	Violations       int                      `json:"violations"`
	Reason           string                   `json:"reason,omitempty"`
	Record           *domain.SubmissionRecord `json:"record,omitempty"`
}

// Ticker delivers timer ticks. It mirrors the channel half of time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SuspensionSignal reports page visibility changes. Watch returns a func that detaches onChange.
type SuspensionSignal interface {
	Watch(onChange func(hidden bool)) (stop func())
}

// Policy holds the violation thresholds.
type Policy struct {
	ViolationWarning int
	ViolationLimit   int
}

// DefaultPolicy warns on the second hidden period and ends the attempt on the third.
var DefaultPolicy = Policy{ViolationWarning: 2, ViolationLimit: 3}

// SessionState is a point-in-time copy of an attempt.
type SessionState struct {
	AttemptID        string            `json:"attemptId"`
	QuizID           string            `json:"quizId"`
	Phase            string            `json:"phase"`
	Answers          map[string]string `json:"answers"`
	Violations       int               `json:"violations"`
	SecondsRemaining int               `json:"secondsRemaining"`
	SecondsElapsed   int               `json:"secondsElapsed"`
}

// Attempt is one student's single run at one quiz.
type Attempt struct {
	id      string
	quiz    domain.Quiz
	student domain.Student
	policy  Policy
	records SubmissionRepository
	now     func() time.Time
	log     zerolog.Logger
	metrics *telemetry.Metrics

	mu          sync.Mutex
	phase       Phase
	answers     map[string]string
	violations  int
	hidden      bool
	remaining   int
	elapsed     int
	record      *domain.SubmissionRecord
	persisted   bool
	running     bool
	done        chan struct{}
	doneOnce    sync.Once
	stopSignal  func()
	subscribers map[chan Notice]struct{}
}

func newAttempt(id string, quiz domain.Quiz, student domain.Student, deps attemptDeps) *Attempt {
	return &Attempt{
		id:          id,
		quiz:        quiz,
		student:     student,
		policy:      deps.policy,
		records:     deps.records,
		now:         deps.now,
		log:         deps.log.With().Str("attempt", id).Str("quiz", quiz.ID).Str("student", student.ID).Logger(),
		metrics:     deps.metrics,
		phase:       PhaseInProgress,
		answers:     make(map[string]string),
		remaining:   quiz.DurationSeconds,
		done:        make(chan struct{}),
		subscribers: make(map[chan Notice]struct{}),
	}
}

// newReviewAttempt restores a released record for read-only review. No timer runs.
func newReviewAttempt(id string, quiz domain.Quiz, student domain.Student, rec domain.SubmissionRecord, deps attemptDeps) *Attempt {
	a := newAttempt(id, quiz, student, deps)
	a.phase = PhaseReviewing
	a.answers = maps.Clone(rec.Answers)
	if a.answers == nil {
		a.answers = make(map[string]string)
	}
	a.violations = rec.Violations
	a.remaining = 0
	a.elapsed = rec.TimeTakenSeconds
	a.record = &rec
	a.persisted = true
	a.doneOnce.Do(func() { close(a.done) })
	return a
}

type attemptDeps struct {
	policy  Policy
	records SubmissionRepository
	now     func() time.Time
	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// ID returns the attempt id used for log correlation.
func (a *Attempt) ID() string { return a.id }

// Quiz returns the quiz definition the attempt runs against.
func (a *Attempt) Quiz() domain.Quiz { return a.quiz }

// Phase returns the current phase.
func (a *Attempt) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// State returns a snapshot of the attempt.
func (a *Attempt) State() SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return SessionState{
		AttemptID:        a.id,
		QuizID:           a.quiz.ID,
		Phase:            a.phase.String(),
		Answers:          maps.Clone(a.answers),
		Violations:       a.violations,
		SecondsRemaining: a.remaining,
		SecondsElapsed:   a.elapsed,
	}
}

// Record returns the built submission record, if the attempt has ended.
func (a *Attempt) Record() (domain.SubmissionRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.record == nil {
		return domain.SubmissionRecord{}, false
	}
	return *a.record, true
}

// Start runs the countdown on ticker and counts hidden periods reported by signal.
// Either may be nil; Tick and ReportVisibility can also be driven directly.
func (a *Attempt) Start(ticker Ticker, signal SuspensionSignal) {
	a.mu.Lock()
	if a.phase != PhaseInProgress || a.running {
		a.mu.Unlock()
		if ticker != nil {
			ticker.Stop()
		}
		return
	}
	a.running = true
	done := a.done
	a.mu.Unlock()

	if signal != nil {
		stop := signal.Watch(a.ReportVisibility)
		a.mu.Lock()
		if a.phase == PhaseInProgress {
			a.stopSignal = stop
			stop = nil
		}
		a.mu.Unlock()
		if stop != nil {
			stop()
		}
	}

	if ticker != nil {
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C():
					a.Tick()
				}
			}
		}()
	}
	a.log.Info().Int("duration", a.quiz.DurationSeconds).Msg("attempt started")
}

// Tick advances the countdown by one second and submits on timeout.
func (a *Attempt) Tick() {
	a.mu.Lock()
	if a.phase != PhaseInProgress {
		a.mu.Unlock()
		return
	}
	a.elapsed++
	if a.remaining > 0 {
		a.remaining--
	}
	if a.remaining == 0 {
		_, detach, err := a.submitLocked(ReasonTimeout)
		a.mu.Unlock()
		detach()
		a.logSaveError(err)
		return
	}
	a.broadcastLocked(a.noticeLocked(NoticeTick))
	a.mu.Unlock()
}

// ReportVisibility feeds one page-visibility observation. Only a visible→hidden edge counts
// as a violation, so a single hidden period counts once however long it lasts.
func (a *Attempt) ReportVisibility(hidden bool) {
	a.mu.Lock()
	if a.phase != PhaseInProgress || !hidden || a.hidden {
		a.hidden = hidden
		a.mu.Unlock()
		return
	}
	a.hidden = true
	a.violations++
	a.metrics.Violation()
	a.log.Warn().Int("violations", a.violations).Msg("page hidden during attempt")

	if a.violations >= a.policy.ViolationLimit {
		_, detach, err := a.submitLocked(ReasonViolationLimit)
		a.mu.Unlock()
		detach()
		a.logSaveError(err)
		return
	}
	kind := NoticeViolation
	if a.violations == a.policy.ViolationWarning {
		kind = NoticeWarning
	}
	a.broadcastLocked(a.noticeLocked(kind))
	a.mu.Unlock()
}

// SetAnswer records an answer. Once the attempt has left InProgress it is a silent no-op.
// Keys that do not belong to the quiz are ignored.
func (a *Attempt) SetAnswer(questionKey, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseInProgress {
		return
	}
	if _, _, ok := a.quiz.QuestionByKey(questionKey); !ok {
		a.log.Debug().Str("key", questionKey).Msg("answer for unknown question ignored")
		return
	}
	a.answers[questionKey] = value
}

// Submit ends the attempt. A second call has no effect and returns the existing record.
// A persistence failure still ends the attempt; the record is kept for RetryPersist.
func (a *Attempt) Submit(reason SubmitReason) (domain.SubmissionRecord, error) {
	a.mu.Lock()
	if a.phase != PhaseInProgress {
		var rec domain.SubmissionRecord
		if a.record != nil {
			rec = *a.record
		}
		detach := a.detachLocked()
		a.mu.Unlock()
		detach()
		return rec, nil
	}
	rec, detach, err := a.submitLocked(reason)
	a.mu.Unlock()
	detach()
	return rec, err
}

// RetryPersist writes a submitted record that previously failed to save.
func (a *Attempt) RetryPersist() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseSubmitted || a.persisted || a.record == nil {
		return nil
	}
	if err := a.persistLocked(); err != nil {
		return err
	}
	a.broadcastLocked(a.submittedNoticeLocked(""))
	return nil
}

// Leave abandons an in-progress attempt without writing anything.
func (a *Attempt) Leave() {
	a.mu.Lock()
	if a.phase == PhaseInProgress {
		a.phase = PhaseAbandoned
		a.log.Info().Msg("attempt abandoned")
	}
	detach := a.detachLocked()
	a.mu.Unlock()
	detach()
}

// Review returns the per-question review of a released record.
func (a *Attempt) Review() ([]ReviewItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseReviewing || a.record == nil {
		return nil, false
	}
	return BuildReview(a.quiz, *a.record), true
}

// Subscribe returns a channel of notices. The caller must invoke the returned cancel function.
func (a *Attempt) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, 8)

	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

func (a *Attempt) submitLocked(reason SubmitReason) (domain.SubmissionRecord, func(), error) {
	detach := a.detachLocked()

	breakdown := Score(a.quiz, a.answers)
	violations := a.violations
	if reason == ReasonViolationLimit {
		violations = a.policy.ViolationLimit
	}
	rec := domain.SubmissionRecord{
		StudentID:        a.student.ID,
		StudentName:      a.student.Name,
		Answers:          maps.Clone(a.answers),
		Score:            breakdown.Total,
		TotalScore:       breakdown.Max,
		Violations:       violations,
		TimeTakenSeconds: a.elapsed,
		IsReleased:       false,
		QuizVersionTaken: a.quiz.LastUpdated,
		SubmittedAt:      a.now(),
	}
	a.record = &rec
	a.phase = PhaseSubmitted
	a.violations = violations
	a.metrics.Submitted(reason.String())

	if err := a.persistLocked(); err != nil {
		notice := a.noticeLocked(NoticeSaveFailed)
		notice.Reason = reason.String()
		a.broadcastLocked(notice)
		return rec, detach, err
	}
	a.log.Info().
		Str("reason", reason.String()).
		Float64("score", rec.Score).
		Float64("total", rec.TotalScore).
		Int("violations", rec.Violations).
		Msg("attempt submitted")
	a.broadcastLocked(a.submittedNoticeLocked(reason.String()))
	return rec, detach, nil
}

func (a *Attempt) persistLocked() error {
	if err := a.records.Replace(a.quiz.ID, *a.record); err != nil {
		a.persisted = false
		return fmt.Errorf("save submission: %w", err)
	}
	a.persisted = true
	return nil
}

// detachLocked stops the timer goroutine and returns a func that removes the visibility
// listener. The func must run after a.mu is released.
func (a *Attempt) detachLocked() func() {
	a.doneOnce.Do(func() { close(a.done) })
	stop := a.stopSignal
	a.stopSignal = nil
	return func() {
		if stop != nil {
			stop()
		}
	}
}

func (a *Attempt) logSaveError(err error) {
	if err != nil {
		a.log.Error().Err(err).Msg("submission could not be saved")
	}
}

func (a *Attempt) noticeLocked(kind NoticeKind) Notice {
	return Notice{Kind: kind, SecondsRemaining: a.remaining, Violations: a.violations}
}

func (a *Attempt) submittedNoticeLocked(reason string) Notice {
	n := a.noticeLocked(NoticeSubmitted)
	n.Reason = reason
	rec := *a.record
	n.Record = &rec
	return n
}

func (a *Attempt) broadcastLocked(n Notice) {
	for ch := range a.subscribers {
		select {
		case ch <- n:
		default:
			// slow subscriber: drop its oldest notice to make room
			select {
			case <-ch:
			default:
			}
			ch <- n
		}
	}
}
