package policy

import "github.com/polisai/cx-policy-validator/pkg/domain"

// policyLocation sorts before every rule location.
var policyLocation = []int{-1}

// flatten renders p as flat rule and constraint entries. Locations are
// [rule kind index, rule index, constraint index, nested index...] so that sorting by
// location yields document order.
func flatten(p *domain.Policy) (rules, constraints []any) {
	rules = []any{}
	constraints = []any{}

	for ki, kind := range domain.RuleKinds {
		for ri, rule := range p.Rules(kind) {
			loc := []int{ki, ri}
			rules = append(rules, map[string]any{
				"location": locationValue(loc),
				"kind":     string(kind),
				"action":   rule.Action,
			})
			for ci, c := range rule.Constraints {
				constraints = flattenConstraint(constraints, c, rule, kind, append(append([]int{}, loc...), ci))
			}
		}
	}
	return rules, constraints
}

func flattenConstraint(out []any, c domain.Constraint, rule domain.Rule, kind domain.RuleKind, loc []int) []any {
	entry := map[string]any{
		"location": locationValue(loc),
		"kind":     string(kind),
		"action":   rule.Action,
	}

	switch typed := c.(type) {
	case domain.AtomicConstraint:
		right := make([]any, len(typed.RightOperand))
		copy(right, typed.RightOperand)
		entry["type"] = "atomic"
		entry["left_operand"] = typed.LeftOperand
		entry["operator"] = typed.Operator
		entry["right_operand"] = right
		entry["right_operand_list"] = typed.RightOperandList
		return append(out, entry)
	case domain.LogicalConstraint:
		entry["type"] = "logical"
		entry["operator"] = typed.Operator
		out = append(out, entry)
		for i, nested := range typed.Constraints {
			out = flattenConstraint(out, nested, rule, kind, append(append([]int{}, loc...), i))
		}
		return out
	default:
		return out
	}
}

func locationValue(loc []int) []any {
	out := make([]any, len(loc))
	for i, v := range loc {
		out[i] = v
	}
	return out
}
