package schema

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

//go:embed schemas/*.json
var embedded embed.FS

const policyDefinitionSchema = "schemas/policy-definition.schema.json"

// Registry maps document types to compiled JSON schemas.
type Registry struct {
	schemas map[string]*jsonschema.Schema
	aliases map[string]string
}

// Option configures a Registry during construction.
type Option func(*registryBuilder) error

type registryBuilder struct {
	compiler *jsonschema.Compiler
	sources  map[string]string
	aliases  map[string]string
}

// WithSchema registers an additional schema document for documentType. Any aliases
// resolve to the same schema.
func WithSchema(documentType string, schemaJSON []byte, aliases ...string) Option {
	return func(b *registryBuilder) error {
		url := "mem://schemas/" + documentType + ".json"
		if err := b.compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
			return fmt.Errorf("add schema for %s: %w", documentType, err)
		}
		b.sources[documentType] = url
		for _, alias := range aliases {
			b.aliases[alias] = documentType
		}
		return nil
	}
}

// NewRegistry compiles the built-in policy definition schema plus any extra schemas.
func NewRegistry(opts ...Option) (*Registry, error) {
	data, err := embedded.ReadFile(policyDefinitionSchema)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	builder := &registryBuilder{
		compiler: compiler,
		sources:  map[string]string{},
		aliases:  map[string]string{},
	}

	all := append([]Option{
		WithSchema(domain.PolicyDefinitionType, data,
			"edc:"+domain.PolicyDefinitionType,
			domain.EDCNamespace+domain.PolicyDefinitionType,
		),
	}, opts...)
	for _, opt := range all {
		if err := opt(builder); err != nil {
			return nil, err
		}
	}

	reg := &Registry{
		schemas: make(map[string]*jsonschema.Schema, len(builder.sources)),
		aliases: builder.aliases,
	}
	for documentType, url := range builder.sources {
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", documentType, err)
		}
		reg.schemas[documentType] = compiled
	}

	return reg, nil
}

// Types returns the registered document types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate checks doc against the schema registered for documentType. A mismatch is
// reported as a *domain.ValidationFailureError listing every leaf violation.
func (r *Registry) Validate(documentType string, doc domain.StructuredDocument) error {
	key := documentType
	if canonical, ok := r.aliases[documentType]; ok {
		key = canonical
	}

	compiled, ok := r.schemas[key]
	if !ok {
		return &domain.ValidationFailureError{
			DocumentType: documentType,
			Violations: []Violation{{
				Message: fmt.Sprintf("no schema registered for type %s", documentType),
			}},
		}
	}
	if doc == nil {
		return &domain.ValidationFailureError{
			DocumentType: documentType,
			Violations:   []Violation{{Message: "document must be a JSON object"}},
		}
	}

	err := compiled.Validate(map[string]any(doc))
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &domain.ValidationFailureError{
			DocumentType: documentType,
			Violations:   []Violation{{Message: err.Error()}},
		}
	}

	return &domain.ValidationFailureError{
		DocumentType: documentType,
		Violations:   collectViolations(verr, doc),
	}
}

// Violation is re-exported for callers that only import this package.
type Violation = domain.Violation

// collectViolations flattens the error tree into its leaves, deduplicated and sorted
// by instance location.
func collectViolations(root *jsonschema.ValidationError, doc domain.StructuredDocument) []Violation {
	var leaves []*jsonschema.ValidationError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			leaves = append(leaves, e)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(root)

	seen := make(map[string]struct{}, len(leaves))
	violations := make([]Violation, 0, len(leaves))
	for _, leaf := range leaves {
		key := leaf.InstanceLocation + "\x00" + leaf.Message
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		value, _ := lookup(doc, leaf.InstanceLocation)
		violations = append(violations, Violation{
			Path:         leaf.InstanceLocation,
			Message:      leaf.Message,
			InvalidValue: value,
		})
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return violations
}

// lookup resolves a JSON pointer inside doc. Containers are not returned as invalid
// values since they would echo whole subtrees back to the caller.
func lookup(doc domain.StructuredDocument, pointer string) (any, bool) {
	if pointer == "" || pointer == "/" {
		return nil, false
	}

	var current any = map[string]any(doc)
	for _, token := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[token]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}

	switch current.(type) {
	case map[string]any, []any:
		return nil, false
	default:
		return current, true
	}
}
