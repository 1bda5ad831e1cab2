package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 10

// Store is a Redis-backed string key-value store. Keys are namespaced with prefix so
// several deployments can share one database.
type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func NewStore(client *redis.Client, prefix string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Store{client: client, prefix: prefix, timeout: timeout}
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, s.key(key)).Err()
}

// Update is an optimistic WATCH/MULTI transaction, retried when another client
// writes the key in between. fn may therefore run more than once.
func (s *Store) Update(key string, fn func(current string, ok bool) (string, error)) error {
	ctx, cancel := s.ctx()
	defer cancel()
	k := s.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Result()
		ok := true
		if errors.Is(err, redis.Nil) {
			ok, err = false, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: gave up after %d conflicting writes", key, maxUpdateRetries)
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) key(key string) string {
	return s.prefix + key
}
