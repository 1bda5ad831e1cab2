package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-proctor/internal/app"
)

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")
	notices, cancel := a.Subscribe()
	defer cancel()

	a.SetAnswer("q_0", "B")
	first, err := a.Submit(app.ReasonManual)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := a.Submit(app.ReasonTimeout)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, app.PhaseSubmitted, a.Phase())
	require.Equal(t, []app.NoticeKind{app.NoticeSubmitted}, kinds(collect(notices)))

	records, err := f.records.List(quiz.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, first, records[0])
}

func TestSubmitBuildsRecord(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")

	a.SetAnswer("q_0", "B")
	a.Tick()
	a.Tick()
	rec, err := a.Submit(app.ReasonManual)
	require.NoError(t, err)

	require.Equal(t, "s1", rec.StudentID)
	require.Equal(t, "Student s1", rec.StudentName)
	require.Equal(t, map[string]string{"q_0": "B"}, rec.Answers)
	require.Equal(t, 1.0, rec.Score)
	require.Equal(t, 6.0, rec.TotalScore)
	require.Zero(t, rec.Violations)
	require.Equal(t, 2, rec.TimeTakenSeconds)
	require.False(t, rec.IsReleased)
	require.True(t, rec.QuizVersionTaken.Equal(quiz.LastUpdated))
	require.True(t, rec.SubmittedAt.Equal(f.clock.Now()))
}

func TestSetAnswerAfterSubmitIsNoop(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")

	a.SetAnswer("q_0", "A")
	a.SetAnswer("q_unknown", "x")
	require.Equal(t, map[string]string{"q_0": "A"}, a.State().Answers)

	_, err := a.Submit(app.ReasonManual)
	require.NoError(t, err)
	a.SetAnswer("q_0", "B")

	rec, ok := a.Record()
	require.True(t, ok)
	require.Equal(t, "A", rec.Answers["q_0"])
	require.Equal(t, "A", a.State().Answers["q_0"])
}

func TestViolationsAreEdgeTriggered(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")
	notices, cancel := a.Subscribe()
	defer cancel()

	// one long hidden period
	for i := 0; i < 5; i++ {
		a.ReportVisibility(true)
	}
	require.Equal(t, 1, a.State().Violations)

	a.ReportVisibility(false)
	a.ReportVisibility(false)
	a.ReportVisibility(true)
	require.Equal(t, 2, a.State().Violations)
	require.Equal(t, app.PhaseInProgress, a.Phase())

	a.ReportVisibility(false)
	a.ReportVisibility(true)
	require.Equal(t, app.PhaseSubmitted, a.Phase())

	got := collect(notices)
	require.Equal(t, []app.NoticeKind{app.NoticeViolation, app.NoticeWarning, app.NoticeSubmitted}, kinds(got))
	require.Equal(t, app.ReasonViolationLimit.String(), got[2].Reason)
	require.Equal(t, 3, got[2].Record.Violations)

	// hidden again after termination changes nothing
	a.ReportVisibility(false)
	a.ReportVisibility(true)
	require.Equal(t, 3, a.State().Violations)
}

func TestViolationLimitRecordsLimit(t *testing.T) {
	f := newFixture(t, app.WithPolicy(app.Policy{ViolationWarning: 1, ViolationLimit: 2}))
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")

	a.ReportVisibility(true)
	a.ReportVisibility(false)
	a.ReportVisibility(true)

	rec, ok := a.Record()
	require.True(t, ok)
	require.Equal(t, 2, rec.Violations)
}

func TestTimeoutSubmits(t *testing.T) {
	f := newFixture(t)
	quiz := gradedQuiz()
	quiz.DurationSeconds = 3
	quiz = f.create(t, quiz)
	a := f.start(t, quiz.ID, "s1")
	notices, cancel := a.Subscribe()
	defer cancel()

	a.Tick()
	a.Tick()
	require.Equal(t, 1, a.State().SecondsRemaining)
	a.Tick()
	require.Equal(t, app.PhaseSubmitted, a.Phase())

	// a straggling tick after termination is ignored
	a.Tick()
	state := a.State()
	require.Zero(t, state.SecondsRemaining)
	require.Equal(t, 3, state.SecondsElapsed)

	got := collect(notices)
	require.Equal(t, []app.NoticeKind{app.NoticeTick, app.NoticeTick, app.NoticeSubmitted}, kinds(got))
	require.Equal(t, "timeout", got[2].Reason)

	records, err := f.records.List(quiz.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 3, records[0].TimeTakenSeconds)
}

func TestStartDrivesTickerAndSignal(t *testing.T) {
	f := newFixture(t)
	quiz := gradedQuiz()
	quiz.DurationSeconds = 2
	quiz = f.create(t, quiz)
	a := f.start(t, quiz.ID, "s1")

	ticker := newManualTicker()
	signal := &fakeSignal{}
	a.Start(ticker, signal)
	require.True(t, signal.attached())

	signal.emit(true)
	require.Equal(t, 1, a.State().Violations)

	ticker.ch <- time.Time{}
	ticker.ch <- time.Time{}
	require.Eventually(t, func() bool { return a.Phase() == app.PhaseSubmitted }, time.Second, 5*time.Millisecond)
	require.Eventually(t, ticker.stopped.Load, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !signal.attached() }, time.Second, 5*time.Millisecond)
}

func TestSubmitDetachesSourcesEvenWhenAlreadySubmitted(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")

	signal := &fakeSignal{}
	ticker := newManualTicker()
	a.Start(ticker, signal)

	_, err := a.Submit(app.ReasonManual)
	require.NoError(t, err)
	_, err = a.Submit(app.ReasonManual)
	require.NoError(t, err)

	require.False(t, signal.attached())
	require.Equal(t, 1, signal.stops)
	require.Eventually(t, ticker.stopped.Load, time.Second, 5*time.Millisecond)
}

func TestLeaveWritesNothing(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")
	signal := &fakeSignal{}
	a.Start(nil, signal)

	a.SetAnswer("q_0", "B")
	a.Leave()

	require.Equal(t, app.PhaseAbandoned, a.Phase())
	require.False(t, signal.attached())
	_, err := a.Submit(app.ReasonManual)
	require.NoError(t, err)
	_, ok := a.Record()
	require.False(t, ok)

	records, err := f.records.List(quiz.ID)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSaveFailureKeepsRecordForRetry(t *testing.T) {
	f := newFixture(t)
	quiz := f.create(t, gradedQuiz())
	a := f.start(t, quiz.ID, "s1")
	notices, cancel := a.Subscribe()
	defer cancel()

	a.SetAnswer("q_0", "B")
	f.records.fail.Store(true)
	rec, err := a.Submit(app.ReasonManual)
	require.ErrorIs(t, err, errDiskFull)
	require.Equal(t, app.PhaseSubmitted, a.Phase())
	require.Equal(t, 1.0, rec.Score)

	// the attempt is over even though nothing was saved
	a.SetAnswer("q_0", "A")
	_, err = a.Submit(app.ReasonManual)
	require.NoError(t, err)

	require.ErrorIs(t, a.RetryPersist(), errDiskFull)
	f.records.fail.Store(false)
	require.NoError(t, a.RetryPersist())
	require.NoError(t, a.RetryPersist())

	stored, found, err := f.records.FindByStudent(quiz.ID, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, stored)
	require.Equal(t, []app.NoticeKind{app.NoticeSaveFailed, app.NoticeSubmitted}, kinds(collect(notices)))
}
