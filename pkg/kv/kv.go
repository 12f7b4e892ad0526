// Package kv is a small key-value store with colon-joined path keys and
// optional per-entry expiry. It backs the local voice cache.
//
// Two implementations are provided: Badger for on-disk persistence and
// Memory for tests and ephemeral use.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments.
const Separator = ":"

// Key is a hierarchical path such as Key{"voice", "leah"}.
// Segments must not contain Separator.
type Key []string

func (k Key) String() string {
	return strings.Join(k, Separator)
}

// ParseKey splits an encoded key back into segments.
func ParseKey(s string) Key {
	if s == "" {
		return nil
	}
	return strings.Split(s, Separator)
}

// scanPrefix returns the byte prefix matching all children of k.
// An empty key matches everything.
func scanPrefix(k Key) string {
	if len(k) == 0 {
		return ""
	}
	return k.String() + Separator
}

// Entry is a key-value pair yielded by Scan.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is implemented by Badger and Memory.
type Store interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key. A ttl of zero never expires.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key Key) error

	// Scan yields live entries below prefix in lexicographic key order.
	Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// DeletePrefix removes every entry below prefix.
	DeletePrefix(ctx context.Context, prefix Key) error

	Close() error
}
