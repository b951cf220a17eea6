package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// RecordPolicyDefinition annotates span with the shape of the transformed definition.
// Redactions apply to the identifier so operators can hash or drop it.
func RecordPolicyDefinition(span trace.Span, def *domain.PolicyDefinition, redactions []Redaction) {
	if def == nil || !span.IsRecording() {
		return
	}

	span.SetAttributes(RedactAttributes(redactions, []attribute.KeyValue{
		attribute.String("policy.id", def.ID),
		attribute.String("policy.type", string(def.Policy.Type)),
		attribute.Int("policy.permissions", len(def.Policy.Permissions)),
		attribute.Int("policy.prohibitions", len(def.Policy.Prohibitions)),
		attribute.Int("policy.obligations", len(def.Policy.Obligations)),
	})...)
}

// RecordOutcome attaches the semantic result to span.
func RecordOutcome(span trace.Span, outcome domain.ValidationOutcome) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.Bool("policy.valid", outcome.Succeeded),
		attribute.Int("policy.violations", len(outcome.Messages)),
	)

	if !outcome.Succeeded {
		span.AddEvent("policy.rejected")
	}
}
