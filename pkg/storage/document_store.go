// Package storage keeps cached documents, such as JSON-LD contexts, that the validator
// resolves locally instead of fetching them from the network.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// Document is a cached remote document.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
	// Source names where the body was loaded from (embedded path or file).
	Source   string
	LoadedAt time.Time
}

// DocumentStore exposes lookup and registration of cached documents keyed by URL.
type DocumentStore interface {
	Get(ctx context.Context, url string) (*Document, error)
	Put(ctx context.Context, doc *Document) error
	List(ctx context.Context) ([]string, error)
	Close() error
}
