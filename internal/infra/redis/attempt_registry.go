package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-proctor/internal/app"
)

// releaseScript deletes the liveness marker only if this attempt still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript pushes the marker expiry out only if this attempt still owns it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// AttemptRegistry guards live attempts across instances. Each claim sets a liveness
// marker with SETNX so a second server refuses the same student and quiz. The marker
// carries a short ttl and is refreshed while the attempt is in progress, so a crashed
// instance blocks re-entry for at most ttl.
type AttemptRegistry struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
	held   map[string]*claim
}

type claim struct {
	attempt *app.Attempt
	stop    chan struct{}
}

func NewAttemptRegistry(client *redis.Client, ttl time.Duration) *AttemptRegistry {
	return &AttemptRegistry{
		client: client,
		ttl:    ttl,
		held:   make(map[string]*claim),
	}
}

func (r *AttemptRegistry) Claim(key string, a *app.Attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.held[key]; ok {
		if c.attempt == a {
			return true
		}
		if c.attempt.Phase() == app.PhaseInProgress {
			return false
		}
		// ended attempt that was never released: reclaim its marker
		r.dropLocked(key, c)
	}
	set, err := r.client.SetNX(context.Background(), r.key(key), a.ID(), r.ttl).Result()
	if err != nil || !set {
		return false
	}
	c := &claim{attempt: a, stop: make(chan struct{})}
	r.held[key] = c
	go r.keepAlive(key, c)
	return true
}

func (r *AttemptRegistry) Release(key string, a *app.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.held[key]; ok && c.attempt == a {
		r.dropLocked(key, c)
	}
}

func (r *AttemptRegistry) dropLocked(key string, c *claim) {
	close(c.stop)
	delete(r.held, key)
	_ = releaseScript.Run(context.Background(), r.client, []string{r.key(key)}, c.attempt.ID()).Err()
}

func (r *AttemptRegistry) keepAlive(key string, c *claim) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		if c.attempt.Phase() != app.PhaseInProgress {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		_ = refreshScript.Run(ctx, r.client, []string{r.key(key)}, c.attempt.ID(), r.ttl.Milliseconds()).Err()
		cancel()
	}
}

func (r *AttemptRegistry) key(key string) string {
	return "quiz:attempt:" + key
}
