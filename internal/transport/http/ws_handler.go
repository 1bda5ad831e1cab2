package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"quiz-proctor/internal/app"
	"quiz-proctor/internal/domain"
)

// WSHandler hosts one quiz attempt per websocket connection. The browser page reports
// answers and visibility changes; the server runs the countdown and pushes notices.
type WSHandler struct {
	service   *app.QuizService
	tick      time.Duration
	newTicker func(d time.Duration) app.Ticker
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

type WSOption func(*WSHandler)

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(fn func(d time.Duration) app.Ticker) WSOption {
	return func(h *WSHandler) { h.newTicker = fn }
}

func WithTick(d time.Duration) WSOption {
	return func(h *WSHandler) { h.tick = d }
}

func WithLogger(l zerolog.Logger) WSOption {
	return func(h *WSHandler) { h.log = l }
}

func NewWSHandler(service *app.QuizService, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		service:   service,
		tick:      time.Second,
		newTicker: app.NewTicker,
		log:       zerolog.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With().Str("component", "ws").Logger()
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionKey string `json:"questionKey"`
	Value       string `json:"value"`
}

type visibilityPayload struct {
	Hidden bool `json:"hidden"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type startedPayload struct {
	State           app.SessionState      `json:"state"`
	QuizName        string                `json:"quizName"`
	DurationSeconds int                   `json:"durationSeconds"`
	Questions       []app.StudentQuestion `json:"questions"`
}

type reviewPayload struct {
	Record domain.SubmissionRecord `json:"record"`
	Items  []app.ReviewItem        `json:"items"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the attempt until the client disconnects.
// Leaving before submitting abandons the attempt without writing a record.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	student := domain.Student{
		ID:   r.URL.Query().Get("studentId"),
		Name: r.URL.Query().Get("name"),
	}
	if quizID == "" || student.ID == "" || student.Name == "" {
		http.Error(w, "missing quizId, studentId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	attempt, err := h.service.OpenAttempt(quizID, student)
	switch {
	case errors.Is(err, domain.ErrAlreadySubmittedPending):
		_ = conn.WriteJSON(outboundMessage{Type: "pending", Payload: errorPayload{Message: err.Error()}})
		return
	case err != nil:
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.CloseAttempt(attempt)

	if attempt.Phase() == app.PhaseReviewing {
		rec, _ := attempt.Record()
		items, _ := attempt.Review()
		_ = conn.WriteJSON(outboundMessage{Type: "review", Payload: reviewPayload{Record: rec, Items: items}})
		return
	}

	notices, unsubscribe := attempt.Subscribe()
	defer unsubscribe()

	quiz := attempt.Quiz()
	if err := conn.WriteJSON(outboundMessage{Type: "started", Payload: startedPayload{
		State:           attempt.State(),
		QuizName:        quiz.Name,
		DurationSeconds: quiz.DurationSeconds,
		Questions:       app.StudentView(quiz),
	}}); err != nil {
		return
	}

	signal := &visibilitySignal{}
	attempt.Start(h.newTicker(h.tick), signal)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	replies := make(chan outboundMessage, 4)

	// single writer: gorilla connections allow one concurrent writer
	g.Go(func() error {
		for {
			var msg outboundMessage
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-notices:
				if !ok {
					return nil
				}
				msg = outboundMessage{Type: string(n.Kind), Payload: n}
			case msg = <-replies:
			}
			if err := conn.WriteJSON(msg); err != nil {
				_ = conn.Close()
				return err
			}
		}
	})

	reply := func(msg outboundMessage) {
		select {
		case replies <- msg:
		case <-ctx.Done():
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var p answerPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			attempt.SetAnswer(p.QuestionKey, p.Value)
		case "visibility":
			var p visibilityPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid visibility payload"}})
				continue
			}
			signal.emit(p.Hidden)
		case "submit":
			if _, err := attempt.Submit(app.ReasonManual); err != nil {
				h.log.Error().Err(err).Str("attempt", attempt.ID()).Msg("manual submit not saved")
			}
		case "retry":
			if err := attempt.RetryPersist(); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "state":
			reply(outboundMessage{Type: "state", Payload: attempt.State()})
		default:
			reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	cancel()
	if err := g.Wait(); err != nil {
		h.log.Debug().Err(err).Msg("ws write ended")
	}
}

// visibilitySignal is an app.SuspensionSignal fed by the client's visibility messages.
type visibilitySignal struct {
	mu       sync.Mutex
	onChange func(hidden bool)
}

func (s *visibilitySignal) Watch(onChange func(hidden bool)) func() {
	s.mu.Lock()
	s.onChange = onChange
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.onChange = nil
		s.mu.Unlock()
	}
}

func (s *visibilitySignal) emit(hidden bool) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(hidden)
	}
}
