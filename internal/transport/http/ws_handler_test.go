package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"quiz-proctor/internal/app"
	"quiz-proctor/internal/domain"
	"quiz-proctor/internal/infra/kvstore"
	"quiz-proctor/internal/infra/memory"
)

type chanTicker struct {
	ch chan time.Time
}

func (t chanTicker) C() <-chan time.Time { return t.ch }
func (t chanTicker) Stop()               {}

type harness struct {
	server  *httptest.Server
	service *app.QuizService
	catalog *kvstore.Catalog
	records *kvstore.SubmissionStore
	ticks   chan time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	h := &harness{
		catalog: kvstore.NewCatalog(store),
		records: kvstore.NewSubmissionStore(store),
		ticks:   make(chan time.Time),
	}
	h.service = app.NewQuizService(h.catalog, h.records,
		app.WithRegistry(memory.NewAttemptRegistry()))
	handler := NewWSHandler(h.service, WithTicker(func(time.Duration) app.Ticker {
		return chanTicker{ch: h.ticks}
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) quiz(t *testing.T, duration int) domain.Quiz {
	t.Helper()
	quiz, err := h.catalog.Create(domain.Quiz{
		Name:            "Sample",
		DurationSeconds: duration,
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Score: 1, Body: domain.MultipleChoice{Options: []string{"3", "4", "5"}, CorrectOption: "4"}},
			{ID: "q2", Text: "Why?", Body: domain.Essay{Rubric: []domain.RubricCriterion{{Criteria: "Reasoning", Points: 2}}}},
		},
	})
	require.NoError(t, err)
	return quiz
}

func (h *harness) dial(t *testing.T, quizID, studentID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?quizId=" + quizID + "&studentId=" + studentID + "&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) json.RawMessage {
	t.Helper()
	var msg message
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, expect, msg.Type, string(msg.Payload))
	return msg.Payload
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func TestServeWSRequiresParams(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.server.URL + "/ws?quizId=123456")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttemptFlow(t *testing.T) {
	h := newHarness(t)
	quiz := h.quiz(t, 60)
	conn := h.dial(t, quiz.ID, "u1")

	var started startedPayload
	require.NoError(t, json.Unmarshal(readNext(t, conn, "started"), &started))
	require.Equal(t, "in_progress", started.State.Phase)
	require.Equal(t, 60, started.State.SecondsRemaining)
	require.Len(t, started.Questions, 2)
	require.Equal(t, []string{"3", "4", "5"}, started.Questions[0].Options)

	raw, err := json.Marshal(started.Questions)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"answer"`)
	require.NotContains(t, string(raw), `"correctOption"`)

	h.ticks <- time.Now()
	var tick app.Notice
	require.NoError(t, json.Unmarshal(readNext(t, conn, "tick"), &tick))
	require.Equal(t, 59, tick.SecondsRemaining)

	send(t, conn, "answer", map[string]string{"questionKey": "q_q1", "value": "4"})
	send(t, conn, "visibility", map[string]bool{"hidden": true})
	readNext(t, conn, "violation")
	send(t, conn, "visibility", map[string]bool{"hidden": false})
	send(t, conn, "state", nil)
	var state app.SessionState
	require.NoError(t, json.Unmarshal(readNext(t, conn, "state"), &state))
	require.Equal(t, map[string]string{"q_q1": "4"}, state.Answers)
	require.Equal(t, 1, state.Violations)

	send(t, conn, "submit", nil)
	var submitted app.Notice
	require.NoError(t, json.Unmarshal(readNext(t, conn, "submitted"), &submitted))
	require.Equal(t, "manual", submitted.Reason)
	require.NotNil(t, submitted.Record)
	require.Equal(t, 1.0, submitted.Record.Score)
	require.Equal(t, 3.0, submitted.Record.TotalScore)
	require.Equal(t, 1, submitted.Record.Violations)

	send(t, conn, "bogus", nil)
	readNext(t, conn, "error")
}

func TestViolationLimitEndsAttempt(t *testing.T) {
	h := newHarness(t)
	quiz := h.quiz(t, 60)
	conn := h.dial(t, quiz.ID, "u1")
	readNext(t, conn, "started")

	expect := []string{"violation", "warning", "submitted"}
	for _, want := range expect {
		send(t, conn, "visibility", map[string]bool{"hidden": true})
		send(t, conn, "visibility", map[string]bool{"hidden": false})
		readNext(t, conn, want)
	}

	rec, found, err := h.records.FindByStudent(quiz.ID, "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3, rec.Violations)
}

func TestPendingAndReview(t *testing.T) {
	h := newHarness(t)
	quiz := h.quiz(t, 60)

	conn := h.dial(t, quiz.ID, "u1")
	readNext(t, conn, "started")
	send(t, conn, "answer", map[string]string{"questionKey": "q_q1", "value": "3"})
	send(t, conn, "submit", nil)
	readNext(t, conn, "submitted")
	require.NoError(t, conn.Close())

	pending := h.dial(t, quiz.ID, "u1")
	readNext(t, pending, "pending")

	_, err := h.service.Release(quiz.ID)
	require.NoError(t, err)

	review := h.dial(t, quiz.ID, "u1")
	var payload reviewPayload
	require.NoError(t, json.Unmarshal(readNext(t, review, "review"), &payload))
	require.True(t, payload.Record.IsReleased)
	require.Len(t, payload.Items, 2)
	require.False(t, *payload.Items[0].Correct)
	require.Equal(t, "4", payload.Items[0].CorrectAnswer)
	require.Nil(t, payload.Items[1].Correct)
}

func TestSecondConnectionRefusedWhileLive(t *testing.T) {
	h := newHarness(t)
	quiz := h.quiz(t, 60)

	first := h.dial(t, quiz.ID, "u1")
	readNext(t, first, "started")

	second := h.dial(t, quiz.ID, "u1")
	var refused errorPayload
	require.NoError(t, json.Unmarshal(readNext(t, second, "error"), &refused))
	require.Equal(t, domain.ErrAttemptInProgress.Error(), refused.Message)

	// leaving abandons the attempt, so a new connection starts fresh
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		u := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?quizId=" + quiz.ID + "&studentId=u1&name=Alice"
		conn, _, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			return false
		}
		defer conn.Close()
		var msg message
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		return conn.ReadJSON(&msg) == nil && msg.Type == "started"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUnknownQuiz(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "000000", "u1")
	var payload errorPayload
	require.NoError(t, json.Unmarshal(readNext(t, conn, "error"), &payload))
	require.Contains(t, payload.Message, domain.ErrQuizNotFound.Error())
}
