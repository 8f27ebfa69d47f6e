// Package keystore provides the shared, TTL-aware key-value persistence used
// for signing-key material. Two backends exist: Redis for production (shared
// across processes) and an in-process memory store for development and tests.
package keystore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
// Absence is a normal outcome; callers treat it as "not yet generated" or
// "evicted", never as a transient failure.
var ErrNotFound = errors.New("keystore: key not found")

// Op is a single write inside a SetMany batch. TTL <= 0 means no expiry.
type Op struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Store is the persistence contract. SetMany must be atomic and isolated:
// a concurrent reader never observes a subset of the batch.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMany(ctx context.Context, ops []Op) error
	Close() error
}
