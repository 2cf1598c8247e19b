// Package storage stages uploaded files between the preview and confirm
// steps of a two-step import: the preview run saves the raw upload under an
// opaque key, the confirm run reads it back and removes it.
package storage

import "context"

// Storage persists raw uploads under opaque keys
type Storage interface {
	// Save stores data under a new opaque key derived from name
	Save(ctx context.Context, name string, data []byte) (string, error)

	// Read returns the data stored under key
	Read(ctx context.Context, key string) ([]byte, error)

	// Remove deletes the data stored under key
	Remove(ctx context.Context, key string) error
}
