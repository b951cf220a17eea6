package jsonld

import (
	"context"
	"fmt"

	"github.com/piprate/json-gold/ld"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// managementContext is the context bodies are compacted against. Its terms match the
// plain keys the schema and transformer read.
var managementContext = map[string]any{
	"@context": []any{
		ODRLContextURL,
		CXPolicyContextURL,
		map[string]any{
			"@vocab": domain.EDCNamespace,
			"edc":    domain.EDCNamespace,
			"tx":     domain.TXNamespace,
		},
	},
}

// Interceptor rewrites JSON-LD bodies into their compact management form.
type Interceptor struct {
	processor *ld.JsonLdProcessor
	loader    ld.DocumentLoader
}

// contextBinder is implemented by loaders that can tie their fetches to a request.
type contextBinder interface {
	WithContext(ctx context.Context) ld.DocumentLoader
}

// NewInterceptor returns an interceptor that resolves contexts with loader. When
// loader is a *Loader, remote fetches follow the context passed to Process.
func NewInterceptor(loader ld.DocumentLoader) *Interceptor {
	return &Interceptor{processor: ld.NewJsonLdProcessor(), loader: loader}
}

// Applies reports whether doc declares a JSON-LD context.
func (i *Interceptor) Applies(doc domain.StructuredDocument) bool {
	_, ok := doc["@context"]
	return ok
}

// Process returns doc unchanged when it has no @context. Otherwise it returns a new
// document expanded with the caller's context and compacted against the management
// context. The input is never modified.
func (i *Interceptor) Process(ctx context.Context, doc domain.StructuredDocument) (domain.StructuredDocument, error) {
	if doc == nil || !i.Applies(doc) {
		return doc, nil
	}

	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = i.loader
	if b, ok := i.loader.(contextBinder); ok {
		opts.DocumentLoader = b.WithContext(ctx)
	}
	opts.CompactArrays = true

	compacted, err := i.processor.Compact(deepCopy(map[string]any(doc)), deepCopy(managementContext), opts)
	if err != nil {
		return nil, &domain.InvalidRequestError{Problems: []string{fmt.Sprintf("invalid JSON-LD document: %v", err)}}
	}

	delete(compacted, "@context")
	return compacted, nil
}

func deepCopy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
