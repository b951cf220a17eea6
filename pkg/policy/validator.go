package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// Validator checks typed policies against the Catena-X vocabulary. It is safe for
// concurrent use.
type Validator struct {
	engine     *Engine
	vocabulary *Vocabulary
	vocabInput map[string]any
	logger     *slog.Logger
}

type validatorOptions struct {
	vocabulary *Vocabulary
	modules    map[string]string
	logger     *slog.Logger
}

// Option configures a Validator.
type Option func(*validatorOptions)

// WithVocabulary replaces the embedded vocabulary.
func WithVocabulary(v *Vocabulary) Option {
	return func(o *validatorOptions) { o.vocabulary = v }
}

// WithModules adds Rego modules next to the built-in rules. Modules must declare
// package cxpolicy and may add entries to violations.
func WithModules(modules map[string]string) Option {
	return func(o *validatorOptions) {
		for name, src := range modules {
			o.modules[name] = src
		}
	}
}

// WithLogger sets the logger used for evaluation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *validatorOptions) { o.logger = l }
}

// NewValidator compiles the rule modules and prepares the vocabulary.
func NewValidator(ctx context.Context, opts ...Option) (*Validator, error) {
	builtin, err := BuiltinModules()
	if err != nil {
		return nil, fmt.Errorf("read built-in rules: %w", err)
	}

	o := validatorOptions{modules: builtin, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.vocabulary == nil {
		o.vocabulary, err = DefaultVocabulary()
		if err != nil {
			return nil, fmt.Errorf("load default vocabulary: %w", err)
		}
	}

	engine, err := NewEngine(ctx, EngineOptions{Entrypoint: defaultEntrypoint, Modules: o.modules})
	if err != nil {
		return nil, err
	}

	return &Validator{
		engine:     engine,
		vocabulary: o.vocabulary,
		vocabInput: o.vocabulary.input(),
		logger:     o.logger,
	}, nil
}

// Vocabulary returns the vocabulary the validator checks against.
func (v *Validator) Vocabulary() *Vocabulary {
	return v.vocabulary
}

// Modules returns the names of the loaded rule modules.
func (v *Validator) Modules() []string {
	return v.engine.Modules()
}

// Validate evaluates p and returns every violation found. A returned error means the
// rule engine failed, not that the policy is invalid.
func (v *Validator) Validate(ctx context.Context, p *domain.Policy) (domain.ValidationOutcome, error) {
	if p == nil {
		return domain.ValidationOutcome{}, errors.New("validate policy: nil policy")
	}

	rules, constraints := flatten(p)
	input := map[string]any{
		"vocabulary":  v.vocabInput,
		"rules":       rules,
		"constraints": constraints,
	}

	value, err := v.engine.Eval(ctx, input)
	if err != nil {
		return domain.ValidationOutcome{}, fmt.Errorf("evaluate policy rules: %w", err)
	}

	findings, err := parseFindings(value)
	if err != nil {
		return domain.ValidationOutcome{}, err
	}
	if len(findings) == 0 {
		return domain.Valid(), nil
	}

	v.logger.DebugContext(ctx, "policy violations found", "count", len(findings))
	return domain.Invalid(messages(findings)...), nil
}

type finding struct {
	location []int
	message  string
}

func parseFindings(value any) ([]finding, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("policy rules: unexpected result type %T", value)
	}

	findings := make([]finding, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("policy rules: unexpected violation type %T", item)
		}
		msg, ok := obj["message"].(string)
		if !ok || msg == "" {
			return nil, errors.New("policy rules: violation without message")
		}
		loc, err := parseLocation(obj["location"])
		if err != nil {
			return nil, err
		}
		findings = append(findings, finding{location: loc, message: msg})
	}
	return findings, nil
}

func parseLocation(value any) ([]int, error) {
	if value == nil {
		return policyLocation, nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("policy rules: location must be an array, got %T", value)
	}
	loc := make([]int, len(raw))
	for i, part := range raw {
		switch n := part.(type) {
		case json.Number:
			v, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("policy rules: location: %w", err)
			}
			loc[i] = int(v)
		case float64:
			loc[i] = int(n)
		case int:
			loc[i] = n
		default:
			return nil, fmt.Errorf("policy rules: location element must be a number, got %T", part)
		}
	}
	return loc, nil
}

// messages orders findings by location then text and drops repeated messages.
func messages(findings []finding) []string {
	sort.SliceStable(findings, func(i, j int) bool {
		if c := compareLocations(findings[i].location, findings[j].location); c != 0 {
			return c < 0
		}
		return findings[i].message < findings[j].message
	})

	seen := make(map[string]struct{}, len(findings))
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		if _, dup := seen[f.message]; dup {
			continue
		}
		seen[f.message] = struct{}{}
		out = append(out, f.message)
	}
	return out
}

func compareLocations(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
