package jsonld

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/polisai/cx-policy-validator/internal/governance"
	"github.com/polisai/cx-policy-validator/pkg/storage"
)

const (
	acceptHeader    = "application/ld+json, application/json;q=0.9"
	maxRemoteBytes  = 4 << 20
	defaultFetchTTL = 10 * time.Second
)

// Loader implements ld.DocumentLoader over a DocumentStore. Documents missing from
// the store are fetched remotely only when a fallback loader is configured.
type Loader struct {
	store  storage.DocumentStore
	remote *remoteFetcher
	logger *slog.Logger
}

// remoteFetcher downloads uncached documents, retrying transient failures.
type remoteFetcher struct {
	client *http.Client
	retry  *governance.RetryPolicy
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRemoteFallback allows fetching uncached documents with client. A nil retry
// policy disables retries. Fetched documents are added to the store.
func WithRemoteFallback(client *http.Client, retry *governance.RetryPolicy) LoaderOption {
	return func(l *Loader) {
		if client == nil {
			client = &http.Client{Timeout: defaultFetchTTL}
		}
		if retry == nil {
			retry = governance.NewRetryPolicy(governance.RetryConfig{MaxRetries: 0})
		}
		l.remote = &remoteFetcher{client: client, retry: retry}
	}
}

// WithLoaderLogger sets the logger used for cache misses.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader returns a loader backed by store.
func NewLoader(store storage.DocumentStore, opts ...LoaderOption) *Loader {
	l := &Loader{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDocument resolves u from the store, falling back to the network if allowed.
// Remote fetches are not bound to any request; use WithContext for that.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return l.load(context.Background(), u)
}

// WithContext returns a loader whose store lookups and remote fetches stop when ctx
// is done.
func (l *Loader) WithContext(ctx context.Context) ld.DocumentLoader {
	return &boundLoader{loader: l, ctx: ctx}
}

type boundLoader struct {
	loader *Loader
	ctx    context.Context
}

func (b *boundLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return b.loader.load(b.ctx, u)
}

func (l *Loader) load(ctx context.Context, u string) (*ld.RemoteDocument, error) {
	cached, err := l.store.Get(ctx, u)
	switch {
	case err == nil:
		doc, perr := ld.DocumentFromReader(bytes.NewReader(cached.Body))
		if perr != nil {
			return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Errorf("cached %s: %w", u, perr))
		}
		return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, err)
	}

	if l.remote == nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Sprintf("document %s is not cached and remote contexts are disabled", u))
	}

	l.logger.InfoContext(ctx, "fetching uncached JSON-LD document", "url", u)
	body, contentType, err := l.remote.fetch(ctx, u)
	if err != nil {
		l.logger.WarnContext(ctx, "remote JSON-LD document unavailable", "url", u, "error", err)
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Errorf("fetch %s: %w", u, err))
	}
	doc, err := ld.DocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Errorf("remote %s: %w", u, err))
	}

	if err := l.store.Put(ctx, &storage.Document{
		URL:         u,
		ContentType: contentType,
		Body:        body,
		Source:      u,
		LoadedAt:    time.Now(),
	}); err != nil {
		l.logger.WarnContext(ctx, "failed to cache remote JSON-LD document", "url", u, "error", err)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

func (f *remoteFetcher) fetch(ctx context.Context, u string) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
	)
	_, err := f.retry.Do(ctx, func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Accept", acceptHeader)

		resp, err := f.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
		if err != nil {
			return 0, err
		}
		body, contentType = data, resp.Header.Get("Content-Type")
		return resp.StatusCode, nil
	})
	return body, contentType, err
}
