// Package transform converts between wire documents and the typed policy model.
//
// Transformations are registered per context (for example "management-api") and are
// looked up by input and target type. A Transformer binds one context at construction
// time and exposes the two conversions the validation pipeline needs.
package transform
