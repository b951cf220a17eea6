package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// ValueTypeInteger marks left operands whose right operand must be a whole number.
const ValueTypeInteger = "integer"

// Vocabulary lists the terms a policy may use.
type Vocabulary struct {
	Actions             map[string]ActionSpec      `yaml:"actions"`
	Operators           []string                   `yaml:"operators"`
	LogicalOperators    []string                   `yaml:"logical_operators"`
	MultiValueOperators []string                   `yaml:"multi_value_operators"`
	LeftOperands        map[string]LeftOperandSpec `yaml:"left_operands"`
}

// ActionSpec lists the rule kinds an action may appear in.
type ActionSpec struct {
	RuleKinds []string `yaml:"rule_kinds"`
}

// LeftOperandSpec describes the constraints a left operand accepts.
type LeftOperandSpec struct {
	Operators []string `yaml:"operators"`
	// Scopes are "<action>.<rule kind>" pairs such as "use.permission".
	Scopes    []string `yaml:"scopes"`
	ValueType string   `yaml:"value_type"`
	Values    []string `yaml:"values"`
	Pattern   string   `yaml:"pattern"`
}

// DefaultVocabulary returns the embedded Catena-X vocabulary.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// LoadVocabulary reads a vocabulary from a YAML file. The file replaces the embedded
// vocabulary entirely.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	vocab, err := ParseVocabulary(data)
	if err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

// ParseVocabulary decodes and validates a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var vocab Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := vocab.Validate(); err != nil {
		return nil, err
	}
	return &vocab, nil
}

// Validate checks the vocabulary for internal consistency.
func (v *Vocabulary) Validate() error {
	var errs []error

	if len(v.Actions) == 0 {
		errs = append(errs, errors.New("at least one action is required"))
	}
	for name, action := range v.Actions {
		for _, kind := range action.RuleKinds {
			if !validRuleKind(kind) {
				errs = append(errs, fmt.Errorf("action %s: unknown rule kind %q", name, kind))
			}
		}
	}

	operators := toSet(v.Operators)
	for _, op := range v.MultiValueOperators {
		if _, ok := operators[op]; !ok {
			errs = append(errs, fmt.Errorf("multi value operator %s is not a declared operator", op))
		}
	}

	for _, name := range v.LeftOperandNames() {
		operand := v.LeftOperands[name]
		if len(operand.Operators) == 0 {
			errs = append(errs, fmt.Errorf("left operand %s: at least one operator is required", name))
		}
		for _, op := range operand.Operators {
			if _, ok := operators[op]; !ok {
				errs = append(errs, fmt.Errorf("left operand %s: operator %s is not declared", name, op))
			}
		}
		for _, scope := range operand.Scopes {
			if err := v.checkScope(scope); err != nil {
				errs = append(errs, fmt.Errorf("left operand %s: %w", name, err))
			}
		}
		switch operand.ValueType {
		case "", "string", ValueTypeInteger:
		default:
			errs = append(errs, fmt.Errorf("left operand %s: unknown value type %q", name, operand.ValueType))
		}
		if operand.Pattern != "" {
			if _, err := regexp.Compile(operand.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("left operand %s: invalid pattern: %w", name, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (v *Vocabulary) checkScope(scope string) error {
	action, kind, ok := strings.Cut(scope, ".")
	if !ok {
		return fmt.Errorf("scope %q must be <action>.<rule kind>", scope)
	}
	def, known := v.Actions[action]
	if !known {
		return fmt.Errorf("scope %q names unknown action %s", scope, action)
	}
	for _, allowed := range def.RuleKinds {
		if allowed == kind {
			return nil
		}
	}
	return fmt.Errorf("scope %q names rule kind %s which action %s does not allow", scope, kind, action)
}

// ActionNames returns the declared actions in sorted order.
func (v *Vocabulary) ActionNames() []string {
	names := make([]string, 0, len(v.Actions))
	for name := range v.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LeftOperandNames returns the declared left operands in sorted order.
func (v *Vocabulary) LeftOperandNames() []string {
	names := make([]string, 0, len(v.LeftOperands))
	for name := range v.LeftOperands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LeftOperandsFor returns the left operands usable in the given action and rule kind.
func (v *Vocabulary) LeftOperandsFor(action string, kind domain.RuleKind) []string {
	scope := action + "." + string(kind)
	var names []string
	for _, name := range v.LeftOperandNames() {
		for _, s := range v.LeftOperands[name].Scopes {
			if s == scope {
				names = append(names, name)
				break
			}
		}
	}
	return names
}

// input renders the vocabulary in the shape the rule modules read. Every list is
// non-nil so the rules never see null.
func (v *Vocabulary) input() map[string]any {
	actions := make(map[string]any, len(v.Actions))
	for name, def := range v.Actions {
		actions[name] = map[string]any{"rule_kinds": anyList(def.RuleKinds)}
	}

	leftOperands := make(map[string]any, len(v.LeftOperands))
	for name, operand := range v.LeftOperands {
		leftOperands[name] = map[string]any{
			"operators":  anyList(operand.Operators),
			"scopes":     anyList(operand.Scopes),
			"value_type": operand.ValueType,
			"values":     anyList(operand.Values),
			"pattern":    operand.Pattern,
		}
	}

	return map[string]any{
		"actions":               actions,
		"operators":             anyList(v.Operators),
		"logical_operators":     anyList(v.LogicalOperators),
		"multi_value_operators": anyList(v.MultiValueOperators),
		"left_operands":         leftOperands,
	}
}

func validRuleKind(kind string) bool {
	for _, k := range domain.RuleKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func anyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
