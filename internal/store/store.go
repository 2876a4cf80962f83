// Package store is the key/value persistence adapter for session snapshots
// and results. Keys are opaque strings scoped by (testId, userId); no
// transactionality is assumed across keys.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Get for an absent key.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is the persistence contract the session engine writes through.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Scanner is implemented by backends that can enumerate keys by pattern.
// The sweeper uses it to find stranded sessions; the engine itself never
// needs it.
type Scanner interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// SessionKeyPattern matches every persisted session snapshot.
const SessionKeyPattern = "test_session_*"

// SessionKey returns the storage key for a session snapshot. The scheme is
// load-bearing: existing deployments have data under these exact keys.
func SessionKey(testID, userID string) string {
	return fmt.Sprintf("test_session_%s_%s", testID, userID)
}

// ResultKey returns the storage key for a final result.
func ResultKey(testID, userID string) string {
	return fmt.Sprintf("test_result_%s_%s", testID, userID)
}

// IsNotFound reports whether err is the adapter's absence condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
