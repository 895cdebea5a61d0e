// Package storage defines where rendered blog artifacts are written.
package storage

import (
	"context"
	"errors"
)

// ErrDirNotEmpty is returned by RemoveDir when files remain in the directory.
var ErrDirNotEmpty = errors.New("storage: directory not empty")

// Provider is the interface for output artifact operations. Paths are
// slash-separated and relative to the output root.
type Provider interface {
	// Write atomically replaces the artifact at path.
	Write(ctx context.Context, path string, content []byte) error
	// List returns the names of the files directly inside dir. A missing
	// dir yields an empty list.
	List(ctx context.Context, dir string) ([]string, error)
	// Delete removes the artifact at path.
	Delete(ctx context.Context, path string) error
	// RemoveDir removes dir, which must be empty. A missing dir is not an error.
	RemoveDir(ctx context.Context, dir string) error
}
