package kvstore

import (
	"encoding/json"
	"fmt"

	"quiz-proctor/internal/domain"
)

// Adapter is a synchronous string-keyed store, the shape of browser local storage.
// Get reports ok=false for a missing key.
type Adapter interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Updater is implemented by adapters that can run a read-modify-write on one key atomically.
type Updater interface {
	Update(key string, fn func(current string, ok bool) (string, error)) error
}

// update prefers the adapter's atomic Updater and falls back to Get then Set.
func update(a Adapter, key string, fn func(current string, ok bool) (string, error)) error {
	if u, ok := a.(Updater); ok {
		var fnErr error
		err := u.Update(key, func(current string, ok bool) (string, error) {
			next, err := fn(current, ok)
			fnErr = err
			return next, err
		})
		if fnErr != nil {
			return fnErr
		}
		if err != nil {
			return storageErr("update", key, err)
		}
		return nil
	}
	current, ok, err := a.Get(key)
	if err != nil {
		return storageErr("get", key, err)
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	if err := a.Set(key, next); err != nil {
		return storageErr("set", key, err)
	}
	return nil
}

// loadJSON decodes key into v; a missing key leaves v untouched.
func loadJSON(a Adapter, key string, v any) error {
	raw, ok, err := a.Get(key)
	if err != nil {
		return storageErr("get", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return storageErr("decode", key, err)
	}
	return nil
}

// updateJSON runs fn on the decoded value of key and stores the result as JSON.
func updateJSON[T any](a Adapter, key string, fn func(T) (T, error)) error {
	return update(a, key, func(current string, ok bool) (string, error) {
		var v T
		if ok && current != "" {
			if err := json.Unmarshal([]byte(current), &v); err != nil {
				return "", storageErr("decode", key, err)
			}
		}
		next, err := fn(v)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return "", storageErr("encode", key, err)
		}
		return string(raw), nil
	})
}

func storageErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStorage, op, key, err)
}
