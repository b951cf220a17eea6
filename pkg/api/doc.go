// Package api serves the policy definition validation pipeline over HTTP.
//
// The validation endpoint accepts a PolicyDefinition body and answers 200 with
// {"isValid", "messages"} when the document could be checked, 400 with an error list
// when it fails the schema or cannot be mapped into the policy model, and 500 with a
// generic message otherwise. Bodies declaring an @context are compacted by the
// configured interceptor before validation.
package api
