package store

import (
	"context"
	"errors"
)

// KeyValueStore persists opaque string values by key.
type KeyValueStore interface {
	// Get returns ErrItemNotFound when key has never been set.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// Custom error types for clarity
var (
	ErrItemNotFound = errors.New("item does not exist")
)
