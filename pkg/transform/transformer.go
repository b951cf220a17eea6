package transform

import (
	"errors"
	"fmt"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// Transformer converts documents within one transformation context.
type Transformer struct {
	scope *Scope
}

// New binds a transformer to the named context of registry.
func New(registry *Registry, context string) *Transformer {
	return &Transformer{scope: registry.ForContext(context)}
}

// NewManagement returns a transformer over a fresh registry holding the management
// API mappings.
func NewManagement() *Transformer {
	reg := NewRegistry()
	RegisterManagement(reg)
	return New(reg, ManagementContext)
}

// Context returns the name of the bound context.
func (t *Transformer) Context() string {
	return t.scope.Name()
}

// ToPolicyDefinition maps doc into the typed model. Every failure is reported as a
// *domain.InvalidRequestError listing all problems found.
func (t *Transformer) ToPolicyDefinition(doc domain.StructuredDocument) (*domain.PolicyDefinition, error) {
	if doc == nil {
		return nil, &domain.InvalidRequestError{Problems: []string{"document must be a JSON object"}}
	}
	def, err := Transform[*domain.PolicyDefinition](t.scope, map[string]any(doc))
	if err != nil {
		var ire *domain.InvalidRequestError
		if errors.As(err, &ire) {
			return nil, ire
		}
		return nil, &domain.InvalidRequestError{Problems: []string{err.Error()}}
	}
	return def, nil
}

// ToDocument maps a validation response to its wire document.
func (t *Transformer) ToDocument(resp domain.ValidationResponse) (domain.StructuredDocument, error) {
	doc, err := Transform[map[string]any](t.scope, resp)
	if err != nil {
		return nil, &domain.InternalError{Message: "transform validation response", Err: err}
	}
	if doc == nil {
		return nil, &domain.InternalError{Message: fmt.Sprintf("context %q produced an empty response document", t.scope.Name())}
	}
	return doc, nil
}
