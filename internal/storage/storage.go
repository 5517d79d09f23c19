// Package storage keeps rendered invoice documents.
package storage

import (
	"context"
	"io"

	"github.com/dukerupert/courtbill/internal"
)

// Storage is a flat key space of documents. Keys look like
// "<tenant id>/CLB-2026-000001.pdf".
type Storage interface {
	// Put stores content under key, replacing any previous version, and
	// returns the document URL.
	Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error)

	// Get opens a document. A missing key is ENOTFOUND and matches
	// ErrNotFound. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	URL(key string) string
	Exists(ctx context.Context, key string) (bool, error)
}

// NewStorage picks the backend named by cfg.Provider.
func NewStorage(cfg internal.StorageConfig) (Storage, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}
