// Package domain defines the core types of the policy definition validator.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. It holds:
//
// - the typed policy model (PolicyDefinition, Policy, Rule, Constraint)
// - the validation result shapes (ValidationOutcome, ValidationResponse)
// - the error taxonomy shared by the pipeline and the HTTP surface
//
// Other packages (schema, transform, policy, pipeline, api) depend on these types.
// The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
