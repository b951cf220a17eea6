package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

func decode(t *testing.T, raw string) domain.StructuredDocument {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestRegistry_ValidDocuments(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	cases := map[string]string{
		"minimal":          `{"@type":"PolicyDefinition","policy":{"permission":[{"action":"use"}]}}`,
		"no type":          `{"policy":{}}`,
		"single rule":      `{"@id":"p-1","policy":{"permission":{"action":"use"}}}`,
		"prefixed type":    `{"@type":"edc:PolicyDefinition","policy":{"prohibition":[]}}`,
		"iri type":         `{"@type":"https://w3id.org/edc/v0.0.1/ns/PolicyDefinition","policy":{}}`,
		"action reference": `{"policy":{"permission":[{"action":{"@id":"odrl:use"}}]}}`,
		"constraints": `{"policy":{"permission":[{"action":"use","constraint":[
			{"leftOperand":"Membership","operator":"eq","rightOperand":"active"}]}]}}`,
		"logical constraint": `{"policy":{"permission":[{"action":"use","constraint":{"and":[
			{"leftOperand":"Membership","operator":"eq","rightOperand":"active"}]}}]}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, reg.Validate(domain.PolicyDefinitionType, decode(t, raw)))
		})
	}
}

func TestRegistry_MissingPolicy(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Validate(domain.PolicyDefinitionType, decode(t, `{"@type":"PolicyDefinition"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidationFailure))

	var vf *domain.ValidationFailureError
	require.ErrorAs(t, err, &vf)
	require.NotEmpty(t, vf.Violations)
	assert.Contains(t, vf.Violations[0].Message, "policy")
}

func TestRegistry_InvalidShapes(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	cases := map[string]struct {
		raw  string
		path string
	}{
		"policy not object": {`{"policy":"use"}`, "/policy"},
		"wrong type":        {`{"@type":"Asset","policy":{}}`, "/@type"},
		"numeric action":    {`{"policy":{"permission":[{"action":42}]}}`, "/policy/permission"},
		"rule not object":   {`{"policy":{"permission":["use"]}}`, "/policy/permission"},
		"empty id":          {`{"@id":"","policy":{}}`, "/@id"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := reg.Validate(domain.PolicyDefinitionType, decode(t, tc.raw))
			var vf *domain.ValidationFailureError
			require.ErrorAs(t, err, &vf)

			found := false
			for _, v := range vf.Violations {
				if len(v.Path) >= len(tc.path) && v.Path[:len(tc.path)] == tc.path {
					found = true
				}
			}
			assert.True(t, found, "expected a violation under %s, got %v", tc.path, vf.Violations)
		})
	}
}

func TestRegistry_InvalidValueIsReported(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Validate(domain.PolicyDefinitionType, decode(t, `{"@id":"","policy":{}}`))
	var vf *domain.ValidationFailureError
	require.ErrorAs(t, err, &vf)
	require.Len(t, vf.Violations, 1)
	assert.Equal(t, "/@id", vf.Violations[0].Path)
	assert.Equal(t, "", vf.Violations[0].InvalidValue)
}

func TestRegistry_UnknownType(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Validate("Asset", decode(t, `{"policy":{}}`))
	assert.ErrorIs(t, err, domain.ErrValidationFailure)
}

func TestRegistry_NilDocument(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Validate(domain.PolicyDefinitionType, nil), domain.ErrValidationFailure)
}

func TestRegistry_ExtraSchema(t *testing.T) {
	reg, err := NewRegistry(WithSchema("Asset", []byte(`{"type":"object","required":["properties"]}`), "edc:Asset"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Asset", domain.PolicyDefinitionType}, reg.Types())
	assert.NoError(t, reg.Validate("edc:Asset", decode(t, `{"properties":{}}`)))
	assert.Error(t, reg.Validate("Asset", decode(t, `{}`)))
}

func TestLookup(t *testing.T) {
	doc := decode(t, `{"a":{"b":[1,{"c":"x"}]},"d~e":{"f/g":true}}`)

	v, ok := lookup(doc, "/a/b/1/c")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = lookup(doc, "/d~0e/f~1g")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = lookup(doc, "/a/b")
	assert.False(t, ok, "containers are not reported")

	_, ok = lookup(doc, "/a/b/9")
	assert.False(t, ok)

	_, ok = lookup(doc, "")
	assert.False(t, ok)
}
