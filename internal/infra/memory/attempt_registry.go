package memory

import (
	"sync"

	"quiz-proctor/internal/app"
)

// AttemptRegistry is an in-memory implementation of app.AttemptRegistry.
type AttemptRegistry struct {
	mu       sync.Mutex
	attempts map[string]*app.Attempt
}

func NewAttemptRegistry() *AttemptRegistry {
	return &AttemptRegistry{
		attempts: make(map[string]*app.Attempt),
	}
}

// Claim succeeds when the slot is free, held by a, or held by an attempt that already ended.
func (r *AttemptRegistry) Claim(key string, a *app.Attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.attempts[key]; ok && held != a && held.Phase() == app.PhaseInProgress {
		return false
	}
	r.attempts[key] = a
	return true
}

func (r *AttemptRegistry) Release(key string, a *app.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts[key] == a {
		delete(r.attempts, key)
	}
}
