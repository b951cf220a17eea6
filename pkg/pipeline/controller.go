package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cx-policy-validator/pkg/domain"
	"github.com/polisai/cx-policy-validator/pkg/telemetry"
)

// SchemaValidator checks a document against the schema of its type.
type SchemaValidator interface {
	Validate(documentType string, doc domain.StructuredDocument) error
}

// Transformer maps documents into the typed model and responses back into documents.
type Transformer interface {
	ToPolicyDefinition(doc domain.StructuredDocument) (*domain.PolicyDefinition, error)
	ToDocument(resp domain.ValidationResponse) (domain.StructuredDocument, error)
}

// SemanticValidator checks a typed policy against the vocabulary.
type SemanticValidator interface {
	Validate(ctx context.Context, p *domain.Policy) (domain.ValidationOutcome, error)
}

// Controller runs the validation stages. It holds no per-request state and is safe
// for concurrent use.
type Controller struct {
	schema       SchemaValidator
	transformer  Transformer
	validator    SemanticValidator
	documentType string
	logger       *slog.Logger
	tracer       trace.Tracer
	redactions   []telemetry.Redaction
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Controller) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRedactions applies attribute redactions to span enrichment.
func WithRedactions(r []telemetry.Redaction) Option {
	return func(c *Controller) { c.redactions = append([]telemetry.Redaction(nil), r...) }
}

// WithDocumentType overrides the document type whose schema is checked.
func WithDocumentType(documentType string) Option {
	return func(c *Controller) {
		if documentType != "" {
			c.documentType = documentType
		}
	}
}

const tracerName = "github.com/polisai/cx-policy-validator/pkg/pipeline"

// New constructs a controller from its collaborators.
func New(schema SchemaValidator, transformer Transformer, validator SemanticValidator, opts ...Option) (*Controller, error) {
	if schema == nil || transformer == nil || validator == nil {
		return nil, errors.New("pipeline requires a schema validator, a transformer and a semantic validator")
	}

	c := &Controller{
		schema:       schema,
		transformer:  transformer,
		validator:    validator,
		documentType: domain.PolicyDefinitionType,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Validate runs every stage and returns the response document.
func (c *Controller) Validate(ctx context.Context, doc domain.StructuredDocument) (domain.StructuredDocument, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.validate", trace.WithAttributes(
		attribute.String("document.type", c.documentType),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.evaluate(ctx, doc)
	if err != nil {
		c.finish(ctx, span, start, resp, err)
		return nil, err
	}

	var out domain.StructuredDocument
	err = c.stage(ctx, StageResponded, func(context.Context) error {
		var terr error
		out, terr = c.transformer.ToDocument(resp)
		if terr != nil {
			return asInternal("transform validation response", terr)
		}
		return nil
	})
	c.finish(ctx, span, start, resp, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Evaluate runs the schema, transformation and semantic stages and returns the
// response before it is rendered as a document.
func (c *Controller) Evaluate(ctx context.Context, doc domain.StructuredDocument) (domain.ValidationResponse, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.evaluate", trace.WithAttributes(
		attribute.String("document.type", c.documentType),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.evaluate(ctx, doc)
	c.finish(ctx, span, start, resp, err)
	return resp, err
}

func (c *Controller) evaluate(ctx context.Context, doc domain.StructuredDocument) (domain.ValidationResponse, error) {
	c.logger.DebugContext(ctx, "policy definition received", "stage", StageReceived, "document_type", c.documentType)

	err := c.stage(ctx, StageSchemaChecked, func(context.Context) error {
		if verr := c.schema.Validate(c.documentType, doc); verr != nil {
			if errors.Is(verr, domain.ErrValidationFailure) {
				return verr
			}
			return asInternal("schema validation", verr)
		}
		return nil
	})
	if err != nil {
		return domain.ValidationResponse{}, err
	}

	var def *domain.PolicyDefinition
	err = c.stage(ctx, StageTransformed, func(ctx context.Context) error {
		var terr error
		def, terr = c.transformer.ToPolicyDefinition(doc)
		if terr != nil {
			if errors.Is(terr, domain.ErrInvalidRequest) {
				return terr
			}
			return &domain.InvalidRequestError{Problems: []string{terr.Error()}}
		}
		if def == nil {
			return &domain.InvalidRequestError{Problems: []string{"document did not produce a policy definition"}}
		}
		telemetry.RecordPolicyDefinition(trace.SpanFromContext(ctx), def, c.redactions)
		return nil
	})
	if err != nil {
		return domain.ValidationResponse{}, err
	}

	var outcome domain.ValidationOutcome
	err = c.stage(ctx, StageSemanticallyChecked, func(ctx context.Context) error {
		var verr error
		outcome, verr = c.validator.Validate(ctx, &def.Policy)
		if verr != nil {
			return asInternal("semantic validation", verr)
		}
		if !outcome.Succeeded && len(outcome.Messages) == 0 {
			return asInternal("semantic validation", errors.New("failed outcome without messages"))
		}
		telemetry.RecordOutcome(trace.SpanFromContext(ctx), outcome)
		return nil
	})
	if err != nil {
		return domain.ValidationResponse{}, err
	}

	c.logger.DebugContext(ctx, "policy definition checked",
		"policy_id", def.ID,
		"valid", outcome.Succeeded,
		"messages", len(outcome.Messages),
	)
	return domain.ResponseFromOutcome(outcome), nil
}

// stage runs fn inside a span, records its latency and wraps failures in a StageError.
func (c *Controller) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	telemetry.RecordStage(ctx, telemetry.StageMetrics{
		Stage:    string(stage),
		Duration: time.Since(start),
		Failed:   err != nil,
	})
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, domain.ErrorType(err))
	if errors.Is(err, domain.ErrInternal) {
		c.logger.ErrorContext(ctx, "validation pipeline failed", "stage", stage, "error", err)
	} else {
		c.logger.DebugContext(ctx, "validation pipeline rejected document", "stage", stage, "error", err)
	}
	return &StageError{Stage: stage, Err: err}
}

func (c *Controller) finish(ctx context.Context, span trace.Span, start time.Time, resp domain.ValidationResponse, err error) {
	outcome, failedStage := classify(resp, err)
	telemetry.RecordValidation(ctx, telemetry.ValidationMetrics{
		DocumentType: c.documentType,
		Outcome:      outcome,
		FailedStage:  failedStage,
		Duration:     time.Since(start),
		Messages:     len(resp.Messages),
	})
	telemetry.RecordValidationEvent(span, outcome, failedStage, len(resp.Messages))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}
}

func classify(resp domain.ValidationResponse, err error) (outcome string, failedStage string) {
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			failedStage = string(se.Stage)
		}
		switch domain.ErrorType(err) {
		case domain.ErrorTypeValidationFailure:
			return telemetry.OutcomeValidationFailure, failedStage
		case domain.ErrorTypeInvalidRequest:
			return telemetry.OutcomeInvalidRequest, failedStage
		default:
			return telemetry.OutcomeInternalError, failedStage
		}
	}
	if resp.IsValid {
		return telemetry.OutcomeValid, ""
	}
	return telemetry.OutcomeInvalid, ""
}

func asInternal(message string, err error) error {
	if errors.Is(err, domain.ErrInternal) {
		return err
	}
	return &domain.InternalError{Message: message, Err: err}
}
