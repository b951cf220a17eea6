package domain

// StructuredDocument is an untyped JSON tree as received from the caller.
type StructuredDocument = map[string]any

// Document type identifiers and namespaces used by the management API.
const (
	PolicyDefinitionType = "PolicyDefinition"

	EDCNamespace      = "https://w3id.org/edc/v0.0.1/ns/"
	ODRLNamespace     = "http://www.w3.org/ns/odrl/2/"
	CXPolicyNamespace = "https://w3id.org/catenax/2025/9/policy/"
	TXNamespace       = "https://w3id.org/tractusx/v0.0.1/ns/"
)

// PolicyType is the ODRL policy subclass.
type PolicyType string

const (
	PolicyTypeSet       PolicyType = "Set"
	PolicyTypeOffer     PolicyType = "Offer"
	PolicyTypeAgreement PolicyType = "Agreement"
)

// RuleKind distinguishes the three ODRL rule collections.
type RuleKind string

const (
	RuleKindPermission  RuleKind = "permission"
	RuleKindProhibition RuleKind = "prohibition"
	RuleKindObligation  RuleKind = "obligation"
)

// RuleKinds lists the rule collections in document order.
var RuleKinds = []RuleKind{RuleKindPermission, RuleKindProhibition, RuleKindObligation}

// PolicyDefinition wraps a policy with the identifier it is registered under.
type PolicyDefinition struct {
	ID                string
	Policy            Policy
	PrivateProperties map[string]any
}

// Policy is the typed ODRL policy.
type Policy struct {
	Type         PolicyType
	Assigner     string
	Assignee     string
	Target       string
	Profiles     []string
	Permissions  []Rule
	Prohibitions []Rule
	Obligations  []Rule
}

// Rules returns the rules of the given kind.
func (p *Policy) Rules(kind RuleKind) []Rule {
	switch kind {
	case RuleKindPermission:
		return p.Permissions
	case RuleKindProhibition:
		return p.Prohibitions
	case RuleKindObligation:
		return p.Obligations
	default:
		return nil
	}
}

// Rule is a permission, prohibition or obligation.
type Rule struct {
	Kind        RuleKind
	Action      string
	Target      string
	Constraints []Constraint
}

// Constraint is either an AtomicConstraint or a LogicalConstraint.
type Constraint interface {
	isConstraint()
}

// AtomicConstraint compares a left operand with one or more right operand values.
type AtomicConstraint struct {
	LeftOperand  string
	Operator     string
	RightOperand []any
	// RightOperandList records whether the right operand was supplied as a list.
	RightOperandList bool
}

// LogicalConstraint combines nested constraints with and/or/xone/andSequence.
type LogicalConstraint struct {
	Operator    string
	Constraints []Constraint
}

func (AtomicConstraint) isConstraint()  {}
func (LogicalConstraint) isConstraint() {}
