// Package pipeline runs a policy definition through schema validation,
// transformation and semantic validation, and maps each failure to its category.
//
// Semantic invalidity is an answer, not an error: it is captured in the response with
// isValid=false. Schema failures, transformation failures and internal failures are
// terminal and returned as *StageError values naming the stage that failed.
package pipeline
