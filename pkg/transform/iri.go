package transform

import (
	"strings"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// namespaces maps compact prefixes to the IRIs they abbreviate.
var namespaces = []struct {
	prefix string
	iri    string
}{
	{prefix: "odrl:", iri: domain.ODRLNamespace},
	{prefix: "edc:", iri: domain.EDCNamespace},
	{prefix: "cx-policy:", iri: domain.CXPolicyNamespace},
	{prefix: "tx:", iri: domain.TXNamespace},
}

// compactIRI strips any known namespace IRI or prefix from term.
func compactIRI(term string) string {
	for _, ns := range namespaces {
		if strings.HasPrefix(term, ns.iri) {
			return strings.TrimPrefix(term, ns.iri)
		}
		if strings.HasPrefix(term, ns.prefix) {
			return strings.TrimPrefix(term, ns.prefix)
		}
	}
	return term
}

// field returns the value stored under name in any of its accepted spellings.
func field(obj map[string]any, name string) (any, bool) {
	if v, ok := obj[name]; ok {
		return v, true
	}
	for _, ns := range namespaces {
		if v, ok := obj[ns.prefix+name]; ok {
			return v, true
		}
		if v, ok := obj[ns.iri+name]; ok {
			return v, true
		}
	}
	return nil, false
}

// unwrap reduces JSON-LD value forms to the plain value. A single element list becomes
// its element; {"@id": x} and {"@value": x} become x.
func unwrap(v any) any {
	for {
		switch node := v.(type) {
		case []any:
			if len(node) != 1 {
				return v
			}
			v = node[0]
		case map[string]any:
			if id, ok := node["@id"]; ok && keywordsOnly(node) {
				v = id
				continue
			}
			if value, ok := node["@value"]; ok {
				v = value
				continue
			}
			return v
		default:
			return v
		}
	}
}

// keywordsOnly reports whether every key of node is a JSON-LD keyword.
func keywordsOnly(node map[string]any) bool {
	for k := range node {
		if !strings.HasPrefix(k, "@") {
			return false
		}
	}
	return true
}

// asList accepts a single value wherever a list is allowed.
func asList(v any) []any {
	switch node := v.(type) {
	case nil:
		return nil
	case []any:
		return node
	default:
		return []any{node}
	}
}

// stringValue returns the string held by v after unwrapping, compacting known IRIs.
func stringValue(v any) (string, bool) {
	s, ok := unwrap(v).(string)
	if !ok {
		return "", false
	}
	return compactIRI(s), true
}
