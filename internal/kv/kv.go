// Package kv provides the two storage tiers the client components mirror
// their state into: a tab-scoped in-memory tier and a cross-session Redis
// tier. Both are advisory caches, never authoritative.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Travelintrips/travelpage-sub004/internal/apperr"
	"github.com/Travelintrips/travelpage-sub004/internal/codec"
)

// Store is a string-keyed byte store with optional per-key TTL. A zero TTL
// means the key does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GetRecord reads key and decodes it into v. A missing key returns false with
// no error. An undecodable value returns an error wrapping
// apperr.ErrCacheCorrupt so the caller can delete it and treat it as a miss.
func GetRecord(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("s.Get: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := codec.Unmarshal(data, v); err != nil {
		return false, errors.Join(apperr.ErrCacheCorrupt, fmt.Errorf("key[%s]: %w", key, err))
	}

	return true, nil
}

// SetRecord encodes v and writes it under key.
func SetRecord(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec.Marshal: %w", err)
	}

	if err := s.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("s.Set: %w", err)
	}

	return nil
}
