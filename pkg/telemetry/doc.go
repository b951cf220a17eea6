// Package telemetry wires OpenTelemetry exporters and meters for the policy validator.
//
// It centralises trace provider setup, applies service resource attributes, and offers
// enrichment helpers that attach policy and validation metadata to spans so operators
// can correlate rejected definitions with the requests that carried them.
package telemetry
