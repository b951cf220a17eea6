package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/polisai/cx-policy-validator/pkg/domain"
	"github.com/polisai/cx-policy-validator/pkg/telemetry"
)

// handleValidate decodes the body, runs the optional JSON-LD interceptor and the
// pipeline, and renders either the response document or an error list.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger
	if id, ok := RequestIDFromContext(ctx); ok {
		logger = logger.With("request_id", id)
	}

	doc, status, err := s.decode(w, r)
	if err != nil {
		s.recordResult(telemetry.OutcomeInvalidRequest)
		logger.DebugContext(ctx, "request body rejected", "error", err)
		writeErrors(w, r, status, []domain.ErrorDetail{{
			Message: err.Error(),
			Type:    domain.ErrorTypeInvalidRequest,
		}})
		return
	}

	if s.interceptor != nil {
		doc, err = s.interceptor.Process(ctx, doc)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}

	out, err := s.pipeline.Validate(ctx, doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if valid, _ := out["isValid"].(bool); valid {
		s.recordResult(telemetry.OutcomeValid)
	} else {
		s.recordResult(telemetry.OutcomeInvalid)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (domain.StructuredDocument, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("read request body: %w", err)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("request body is not valid JSON: %w", err)
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, http.StatusBadRequest, errors.New("request body must be a JSON object")
	}
	return doc, http.StatusOK, nil
}

// fail maps a pipeline or interceptor error onto the HTTP error contract.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.ErrorType(err) {
	case domain.ErrorTypeValidationFailure:
		s.recordResult(telemetry.OutcomeValidationFailure)
		writeErrors(w, r, http.StatusBadRequest, validationDetails(err))
	case domain.ErrorTypeInvalidRequest:
		s.recordResult(telemetry.OutcomeInvalidRequest)
		writeErrors(w, r, http.StatusBadRequest, invalidRequestDetails(err))
	default:
		s.recordResult(telemetry.OutcomeInternalError)
		s.logger.ErrorContext(r.Context(), "policy definition validation failed", "error", err)
		writeErrors(w, r, http.StatusInternalServerError, []domain.ErrorDetail{{
			Message: "an internal error occurred while validating the policy definition",
			Type:    domain.ErrorTypeInternal,
		}})
	}
}

func (s *Server) recordResult(result string) {
	if s.metrics != nil {
		s.metrics.RecordValidation(result)
	}
}

func validationDetails(err error) []domain.ErrorDetail {
	var vf *domain.ValidationFailureError
	if !errors.As(err, &vf) || len(vf.Violations) == 0 {
		return []domain.ErrorDetail{{Message: err.Error(), Type: domain.ErrorTypeValidationFailure}}
	}

	details := make([]domain.ErrorDetail, 0, len(vf.Violations))
	for _, v := range vf.Violations {
		details = append(details, domain.ErrorDetail{
			Message:      v.Message,
			Type:         domain.ErrorTypeValidationFailure,
			Path:         v.Path,
			InvalidValue: v.InvalidValue,
		})
	}
	return details
}

func invalidRequestDetails(err error) []domain.ErrorDetail {
	var ir *domain.InvalidRequestError
	if !errors.As(err, &ir) || len(ir.Problems) == 0 {
		return []domain.ErrorDetail{{Message: err.Error(), Type: domain.ErrorTypeInvalidRequest}}
	}

	details := make([]domain.ErrorDetail, 0, len(ir.Problems))
	for _, p := range ir.Problems {
		details = append(details, domain.ErrorDetail{Message: p, Type: domain.ErrorTypeInvalidRequest})
	}
	return details
}
