package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store keeps string key-value pairs in the kv_entries table.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewStore(pool *pgxpool.Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{pool: pool, timeout: timeout}
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select entry: %w", err)
	}
	return value, true, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, upsertStmt, key, value); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key=$1`, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

const upsertStmt = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`

// Update serialises writers on key with a transaction-scoped advisory lock, which also
// covers keys that do not exist yet, then reads, applies fn and upserts.
func (s *Store) Update(key string, fn func(current string, ok bool) (string, error)) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock entry: %w", err)
	}

	var current string
	ok := true
	err = tx.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key=$1 FOR UPDATE`, key).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		ok, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("select entry: %w", err)
	}

	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, upsertStmt, key, next); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return tx.Commit(ctx)
}
