// Package kv is the key-value capability shared by history, settings and the
// identity cache.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAborted is returned when an UpdateFunc asks to leave the value untouched.
var ErrAborted = errors.New("kv: update aborted")

// UpdateFunc receives the current value (ok is false when the key is absent)
// and returns the new one. Returning ErrAborted skips the write.
type UpdateFunc func(old []byte, ok bool) ([]byte, error)

// Store is a byte-oriented key-value store. Update is an atomic
// read-modify-write scoped to one key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// GetJSON decodes the value at key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

func update(old []byte, ok bool, fn UpdateFunc) ([]byte, bool, error) {
	next, err := fn(old, ok)
	if errors.Is(err, ErrAborted) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}
