package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key has no value. Absence
// is not a failure; callers fall back to defaults.
var ErrNotFound = errors.New("key not found")

// KV is the minimal persistent key-value contract the settings store
// runs on. Values are opaque documents; callers own the encoding.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
