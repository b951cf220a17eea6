package jsonld

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/piprate/json-gold/ld"

	"github.com/polisai/cx-policy-validator/pkg/storage"
)

//go:embed documents/*.jsonld
var embeddedDocuments embed.FS

// Well-known context URLs served from the embedded cache.
const (
	ODRLContextURL     = "https://w3id.org/catenax/2025/9/policy/odrl.jsonld"
	CXPolicyContextURL = "https://w3id.org/catenax/2025/9/policy/context.jsonld"
)

// Entry maps a document URL to the file holding its cached body. When FS is nil the
// path is read from the local filesystem.
type Entry struct {
	URL  string
	Path string
	FS   fs.FS
}

// Result reports the registration outcome of one entry.
type Result struct {
	URL string
	Err error
}

// DefaultEntries returns the embedded Catena-X contexts.
func DefaultEntries() []Entry {
	return []Entry{
		{URL: ODRLContextURL, Path: "documents/odrl.jsonld", FS: embeddedDocuments},
		{URL: CXPolicyContextURL, Path: "documents/context.jsonld", FS: embeddedDocuments},
	}
}

// RegisterCachedDocuments loads every entry into store. Failures are logged as
// warnings and reported per entry; they never stop the remaining entries.
func RegisterCachedDocuments(ctx context.Context, store storage.DocumentStore, entries []Entry, logger *slog.Logger) []Result {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		err := register(ctx, store, entry)
		if err != nil {
			logger.WarnContext(ctx, "cached document not registered", "url", entry.URL, "path", entry.Path, "error", err)
		} else {
			logger.DebugContext(ctx, "cached document registered", "url", entry.URL, "path", entry.Path)
		}
		results = append(results, Result{URL: entry.URL, Err: err})
	}
	return results
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func register(ctx context.Context, store storage.DocumentStore, entry Entry) error {
	if entry.URL == "" {
		return fmt.Errorf("entry for %s has no url", entry.Path)
	}

	var (
		body []byte
		err  error
	)
	if entry.FS != nil {
		body, err = fs.ReadFile(entry.FS, entry.Path)
	} else {
		body, err = os.ReadFile(entry.Path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", entry.Path, err)
	}

	if _, err := ld.DocumentFromReader(bytes.NewReader(body)); err != nil {
		return fmt.Errorf("parse %s: %w", entry.Path, err)
	}

	return store.Put(ctx, &storage.Document{
		URL:         entry.URL,
		ContentType: "application/ld+json",
		Body:        body,
		Source:      entry.Path,
	})
}
