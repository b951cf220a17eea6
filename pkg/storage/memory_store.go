package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryDocumentStore is an in-memory implementation of DocumentStore.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryDocumentStore creates a new MemoryDocumentStore.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs: make(map[string]*Document),
	}
}

// Get retrieves a copy of the document cached under url.
func (s *MemoryDocumentStore) Get(_ context.Context, url string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return cloneDocument(doc), nil
}

// Put caches doc under its URL, replacing any earlier entry.
func (s *MemoryDocumentStore) Put(_ context.Context, doc *Document) error {
	if doc == nil || doc.URL == "" {
		return errors.New("document requires a url")
	}

	stored := cloneDocument(doc)
	if stored.LoadedAt.IsZero() {
		stored.LoadedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.URL] = stored
	return nil
}

// List returns the cached URLs in sorted order.
func (s *MemoryDocumentStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.docs))
	for url := range s.docs {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

// Close is a no-op for memory store.
func (s *MemoryDocumentStore) Close() error {
	return nil
}

func cloneDocument(doc *Document) *Document {
	out := *doc
	out.Body = append([]byte(nil), doc.Body...)
	return &out
}
