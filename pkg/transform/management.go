package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// ManagementContext is the transformation context used by the management API.
const ManagementContext = "management-api"

var logicalOperators = []string{"and", "or", "xone", "andSequence"}

// RegisterManagement installs the management API mappings into r.
func RegisterManagement(r *Registry) {
	doc := TypeOf[map[string]any]()
	r.Register(ManagementContext, doc, TypeOf[*domain.PolicyDefinition](), policyDefinitionFromDocument)
	r.Register(ManagementContext, doc, TypeOf[*domain.Policy](), policyFromDocument)
	r.Register(ManagementContext, doc, TypeOf[*domain.Rule](), ruleFromDocument)
	r.Register(ManagementContext, doc, TypeOf[domain.Constraint](), constraintFromDocument)
	r.Register(ManagementContext, TypeOf[domain.ValidationResponse](), doc, documentFromResponse)
}

// problems collects every mapping problem of one document, prefixed by location.
type problems struct {
	list []string
}

func (p *problems) add(path, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if path != "" {
		msg = path + ": " + msg
	}
	p.list = append(p.list, msg)
}

// merge absorbs a nested InvalidRequestError. Any other error is returned unchanged.
func (p *problems) merge(path string, err error) error {
	var ire *domain.InvalidRequestError
	if !errors.As(err, &ire) {
		return err
	}
	for _, problem := range ire.Problems {
		p.list = append(p.list, nest(path, problem))
	}
	return nil
}

// nest prefixes problem with path. Problems that already carry a location are joined
// with a dot, bare messages with a colon.
func nest(path, problem string) string {
	if path == "" {
		return problem
	}
	if idx := strings.Index(problem, ": "); idx > 0 && !strings.Contains(problem[:idx], " ") {
		return path + "." + problem
	}
	return path + ": " + problem
}

func (p *problems) err() error {
	if len(p.list) == 0 {
		return nil
	}
	return &domain.InvalidRequestError{Problems: p.list}
}

func policyDefinitionFromDocument(input any, scope *Scope) (any, error) {
	obj := input.(map[string]any)
	var probs problems

	def := &domain.PolicyDefinition{}
	if raw, ok := obj["@id"]; ok {
		id, isString := unwrap(raw).(string)
		if !isString || id == "" {
			probs.add("@id", "must be a non-empty string")
		}
		def.ID = id
	} else {
		def.ID = uuid.NewString()
	}

	rawPolicy, ok := field(obj, "policy")
	if !ok {
		probs.add("", "policy is required")
		return nil, probs.err()
	}
	policyObj, ok := unwrap(rawPolicy).(map[string]any)
	if !ok {
		probs.add("policy", "must be an object")
		return nil, probs.err()
	}
	policy, err := Transform[*domain.Policy](scope, policyObj)
	if err != nil {
		if err := probs.merge("policy", err); err != nil {
			return nil, err
		}
	} else {
		def.Policy = *policy
	}

	if raw, ok := field(obj, "privateProperties"); ok {
		props, isObject := unwrap(raw).(map[string]any)
		if !isObject {
			probs.add("privateProperties", "must be an object")
		} else {
			def.PrivateProperties = make(map[string]any, len(props))
			for k, v := range props {
				def.PrivateProperties[k] = v
			}
		}
	}

	if err := probs.err(); err != nil {
		return nil, err
	}
	return def, nil
}

func policyFromDocument(input any, scope *Scope) (any, error) {
	obj := input.(map[string]any)
	var probs problems

	policy := &domain.Policy{Type: domain.PolicyTypeSet}
	if raw, ok := obj["@type"]; ok {
		name, isString := stringValue(raw)
		switch domain.PolicyType(name) {
		case domain.PolicyTypeSet, domain.PolicyTypeOffer, domain.PolicyTypeAgreement:
			policy.Type = domain.PolicyType(name)
		default:
			if !isString {
				probs.add("@type", "must be a string")
			} else {
				probs.add("@type", "must be one of Set, Offer, Agreement, got %s", name)
			}
		}
	}

	for _, party := range []struct {
		name string
		dst  *string
	}{
		{"assigner", &policy.Assigner},
		{"assignee", &policy.Assignee},
		{"target", &policy.Target},
	} {
		raw, ok := field(obj, party.name)
		if !ok {
			continue
		}
		value, isString := stringValue(raw)
		if !isString {
			probs.add(party.name, "must be a string or an @id reference")
			continue
		}
		*party.dst = value
	}

	if raw, ok := field(obj, "profile"); ok {
		for i, item := range asList(raw) {
			value, isString := stringValue(item)
			if !isString {
				probs.add(fmt.Sprintf("profile[%d]", i), "must be a string or an @id reference")
				continue
			}
			policy.Profiles = append(policy.Profiles, value)
		}
	}

	for _, kind := range domain.RuleKinds {
		raw, ok := field(obj, string(kind))
		if !ok {
			continue
		}
		for i, item := range asList(raw) {
			path := fmt.Sprintf("%s[%d]", kind, i)
			ruleObj, isObject := item.(map[string]any)
			if !isObject {
				probs.add(path, "must be an object")
				continue
			}
			rule, err := Transform[*domain.Rule](scope, ruleObj)
			if err != nil {
				if err := probs.merge(path, err); err != nil {
					return nil, err
				}
				continue
			}
			rule.Kind = kind
			switch kind {
			case domain.RuleKindPermission:
				policy.Permissions = append(policy.Permissions, *rule)
			case domain.RuleKindProhibition:
				policy.Prohibitions = append(policy.Prohibitions, *rule)
			case domain.RuleKindObligation:
				policy.Obligations = append(policy.Obligations, *rule)
			}
		}
	}

	if err := probs.err(); err != nil {
		return nil, err
	}
	return policy, nil
}

func ruleFromDocument(input any, scope *Scope) (any, error) {
	obj := input.(map[string]any)
	var probs problems

	rule := &domain.Rule{}
	raw, ok := field(obj, "action")
	switch {
	case !ok:
		probs.add("action", "is required")
	default:
		action, isString := stringValue(raw)
		if !isString {
			probs.add("action", "must be a string or an @id reference")
		}
		rule.Action = action
	}

	if raw, ok := field(obj, "target"); ok {
		target, isString := stringValue(raw)
		if !isString {
			probs.add("target", "must be a string or an @id reference")
		}
		rule.Target = target
	}

	if raw, ok := field(obj, "constraint"); ok {
		constraints, err := constraintList(asList(raw), scope, "constraint", &probs)
		if err != nil {
			return nil, err
		}
		rule.Constraints = constraints
	}

	if err := probs.err(); err != nil {
		return nil, err
	}
	return rule, nil
}

func constraintList(items []any, scope *Scope, path string, probs *problems) ([]domain.Constraint, error) {
	constraints := make([]domain.Constraint, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		obj, ok := item.(map[string]any)
		if !ok {
			probs.add(itemPath, "must be an object")
			continue
		}
		c, err := Transform[domain.Constraint](scope, obj)
		if err != nil {
			if err := probs.merge(itemPath, err); err != nil {
				return nil, err
			}
			continue
		}
		constraints = append(constraints, c)
	}
	return constraints, nil
}

func constraintFromDocument(input any, scope *Scope) (any, error) {
	obj := input.(map[string]any)
	var probs problems

	var logical []string
	for _, op := range logicalOperators {
		if _, ok := field(obj, op); ok {
			logical = append(logical, op)
		}
	}

	switch {
	case len(logical) > 1:
		probs.add("", "constraint combines logical operators %s", strings.Join(logical, ", "))
	case len(logical) == 1:
		op := logical[0]
		raw, _ := field(obj, op)
		nested, err := constraintList(asList(raw), scope, op, &probs)
		if err != nil {
			return nil, err
		}
		if err := probs.err(); err != nil {
			return nil, err
		}
		return domain.LogicalConstraint{Operator: op, Constraints: nested}, nil
	default:
		atomic, ok := atomicConstraint(obj, &probs)
		if ok {
			return atomic, nil
		}
	}
	return nil, probs.err()
}

func atomicConstraint(obj map[string]any, probs *problems) (domain.AtomicConstraint, bool) {
	rawLeft, hasLeft := field(obj, "leftOperand")
	rawOp, hasOp := field(obj, "operator")
	rawRight, hasRight := field(obj, "rightOperand")
	if !hasLeft && !hasOp && !hasRight {
		probs.add("", "constraint must be atomic (leftOperand, operator, rightOperand) or logical (%s)",
			strings.Join(logicalOperators, ", "))
		return domain.AtomicConstraint{}, false
	}

	var c domain.AtomicConstraint
	before := len(probs.list)

	if !hasLeft {
		probs.add("leftOperand", "is required")
	} else if left, ok := stringValue(rawLeft); ok {
		c.LeftOperand = left
	} else {
		probs.add("leftOperand", "must be a string or an @id reference")
	}

	if !hasOp {
		probs.add("operator", "is required")
	} else if op, ok := stringValue(rawOp); ok {
		c.Operator = op
	} else {
		probs.add("operator", "must be a string or an @id reference")
	}

	if !hasRight {
		probs.add("rightOperand", "is required")
	} else {
		_, c.RightOperandList = rawRight.([]any)
		for i, item := range asList(rawRight) {
			value := unwrap(item)
			switch v := value.(type) {
			case string:
				c.RightOperand = append(c.RightOperand, compactIRI(v))
			case float64, bool:
				c.RightOperand = append(c.RightOperand, v)
			default:
				probs.add(fmt.Sprintf("rightOperand[%d]", i), "must be a string, number or boolean")
			}
		}
		if len(asList(rawRight)) == 0 {
			probs.add("rightOperand", "must not be empty")
		}
	}

	return c, len(probs.list) == before
}

func documentFromResponse(input any, _ *Scope) (any, error) {
	resp := input.(domain.ValidationResponse)
	messages := make([]any, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, m)
	}
	return map[string]any{
		"isValid":  resp.IsValid,
		"messages": messages,
	}, nil
}
