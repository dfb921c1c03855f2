/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package storage holds the key-value persistence and change notification
// backends shared by every game instance.
package storage

import "context"

//go:generate mockgen -package=mocks -destination=mocks/mock_storage.go github.com/Seednode/chungsuc/storage KV,Bus

// StorageError is a custom error type for storage backends
type StorageError string

// Error implements the error interface
func (e StorageError) Error() string {
	return string(e)
}

const (
	ErrNilConfig StorageError = "config cannot be nil"
	ErrNilClient StorageError = "redis client cannot be nil"
	ErrEmptyDir  StorageError = "storage directory cannot be empty"
	ErrEmptyKey  StorageError = "key cannot be empty"
)

// Change is the notification delivered to other instances after a key is
// written or removed. NewValue is empty on removal.
type Change struct {
	Key      string `json:"key"`
	NewValue string `json:"newValue,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// KV is a string key-value area, the server-side stand-in for a browser's
// per-origin local storage.
type KV interface {
	// Get returns the stored value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Delete removes key; removing a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// Bus delivers changes to every subscribed instance, at most once per
// publish, in publish order per publisher.
type Bus interface {
	// Publish sends a change to all current subscribers
	Publish(ctx context.Context, change Change) error

	// Subscribe returns a channel of changes that is closed once ctx is done
	Subscribe(ctx context.Context) (<-chan Change, error)
}
