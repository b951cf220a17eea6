// Package policy performs semantic validation of typed ODRL policies against the
// Catena-X policy vocabulary.
//
// Checks are written in Rego and evaluated with an embedded OPA engine. The typed
// policy is flattened into rule and constraint entries carrying their location, and
// the vocabulary travels alongside in the evaluation input. Every violation is
// reported; messages are ordered by location and deduplicated before they reach the
// caller. A ReloadableValidator rebuilds the engine when the vocabulary file or an
// extra rule directory changes, without interrupting in-flight evaluations.
package policy
