package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

// writeErrors renders the error list, tagging each entry with the trace id when the
// request is sampled.
func writeErrors(w http.ResponseWriter, r *http.Request, status int, details []domain.ErrorDetail) {
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		for i := range details {
			details[i].TraceID = sc.TraceID().String()
		}
	}
	writeJSON(w, status, details)
}
