// Package schema checks structured documents against the JSON schema registered for
// their declared document type.
//
// Schemas are compiled once when the registry is built and are read-only afterwards,
// so a single Registry can be shared by every request.
package schema
