package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

const smallVocabulary = `
actions:
  use:
    rule_kinds: [permission]
operators: [eq]
logical_operators: [and]
left_operands:
  Membership:
    operators: [eq]
    scopes: [use.permission]
    values: [active]
`

func customPolicy() *domain.Policy {
	return &domain.Policy{Permissions: []domain.Rule{{
		Kind:   domain.RuleKindPermission,
		Action: "use",
		Constraints: []domain.Constraint{
			domain.AtomicConstraint{LeftOperand: "Region", Operator: "eq", RightOperand: []any{"eu"}},
		},
	}}}
}

func TestSource_Paths(t *testing.T) {
	assert.Empty(t, Source{}.Paths())
	assert.Equal(t, []string{"v.yaml", "rules"}, Source{VocabularyFile: "v.yaml", RulesDir: "rules"}.Paths())
}

func TestReloadableValidator_Reload(t *testing.T) {
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocabulary.yaml")
	require.NoError(t, os.WriteFile(vocabPath, []byte(smallVocabulary), 0o600))

	ctx := context.Background()
	r, err := NewReloadableValidator(ctx, Source{VocabularyFile: vocabPath}, nil)
	require.NoError(t, err)
	before := r.Current()

	outcome, err := r.Validate(ctx, customPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"unsupported left operand: Region"}, outcome.Messages)

	extended := smallVocabulary + `
  Region:
    operators: [eq]
    scopes: [use.permission]
`
	require.NoError(t, os.WriteFile(vocabPath, []byte(extended), 0o600))
	require.NoError(t, r.Reload(ctx))
	assert.Equal(t, uint64(1), r.Generation())
	assert.NotSame(t, before, r.Current())

	outcome, err = r.Validate(ctx, customPolicy())
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)

	// The validator captured before the reload keeps its own rules.
	outcome, err = before.Validate(ctx, customPolicy())
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded)
}

func TestReloadableValidator_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocabulary.yaml")
	require.NoError(t, os.WriteFile(vocabPath, []byte(smallVocabulary), 0o600))

	ctx := context.Background()
	r, err := NewReloadableValidator(ctx, Source{VocabularyFile: vocabPath}, nil)
	require.NoError(t, err)
	current := r.Current()

	require.NoError(t, os.WriteFile(vocabPath, []byte("actions: ["), 0o600))
	assert.Error(t, r.Reload(ctx))
	assert.Same(t, current, r.Current())
	assert.Zero(t, r.Generation())
}

func TestReloadableValidator_RulesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deny.rego"), []byte(`package cxpolicy

violations contains violation if {
	some r in input.rules
	r.action == "access"
	violation := {"location": r.location, "message": "access policies are managed elsewhere"}
}
`), 0o600))

	ctx := context.Background()
	r, err := NewReloadableValidator(ctx, Source{RulesDir: dir}, nil)
	require.NoError(t, err)

	outcome, err := r.Validate(ctx, &domain.Policy{Permissions: []domain.Rule{{Kind: domain.RuleKindPermission, Action: "access"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"access policies are managed elsewhere"}, outcome.Messages)
}

func TestNewReloadableValidator_BadSource(t *testing.T) {
	_, err := NewReloadableValidator(context.Background(), Source{VocabularyFile: filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	assert.Error(t, err)
}
