package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polisai/cx-policy-validator/internal/governance"
	"github.com/polisai/cx-policy-validator/pkg/config"
	"github.com/polisai/cx-policy-validator/pkg/jsonld"
	"github.com/polisai/cx-policy-validator/pkg/logging"
	"github.com/polisai/cx-policy-validator/pkg/pipeline"
	"github.com/polisai/cx-policy-validator/pkg/policy"
	"github.com/polisai/cx-policy-validator/pkg/schema"
	"github.com/polisai/cx-policy-validator/pkg/storage"
	"github.com/polisai/cx-policy-validator/pkg/telemetry"
	"github.com/polisai/cx-policy-validator/pkg/transform"
)

const remoteContextTimeout = 10 * time.Second

// components are the collaborators shared by the serve and validate commands.
type components struct {
	controller  *pipeline.Controller
	validator   *policy.ReloadableValidator
	source      policy.Source
	interceptor *jsonld.Interceptor
	documents   storage.DocumentStore
	cached      []jsonld.Result
}

func (c *components) Close() error {
	if c.documents != nil {
		return c.documents.Close()
	}
	return nil
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

// buildComponents wires schema registry, transformer, semantic validator, pipeline
// controller and the optional JSON-LD interceptor from cfg.
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	registry, err := schema.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}

	transforms := transform.NewRegistry()
	transform.RegisterManagement(transforms)
	if !transforms.HasContext(cfg.Validation.TransformerContext) {
		return nil, fmt.Errorf("unknown transformer context %q", cfg.Validation.TransformerContext)
	}
	transformer := transform.New(transforms, cfg.Validation.TransformerContext)

	source := policy.Source{
		VocabularyFile: cfg.Validation.VocabularyFile,
		RulesDir:       cfg.Validation.RulesDir,
	}
	validator, err := policy.NewReloadableValidator(ctx, source, logging.Component(logger, "policy"))
	if err != nil {
		return nil, fmt.Errorf("policy validator: %w", err)
	}

	controller, err := pipeline.New(registry, transformer, validator,
		pipeline.WithLogger(logging.Component(logger, "pipeline")),
		pipeline.WithDocumentType(cfg.Validation.DocumentType),
		pipeline.WithRedactions(redactions(cfg.Telemetry.Redactions)),
	)
	if err != nil {
		return nil, err
	}

	c := &components{
		controller: controller,
		validator:  validator,
		source:     source,
	}

	if cfg.JSONLD.Enabled {
		store := storage.NewMemoryDocumentStore()
		entries := jsonld.DefaultEntries()
		for _, doc := range cfg.JSONLD.Documents {
			entries = append(entries, jsonld.Entry{URL: doc.URL, Path: doc.File})
		}
		jsonldLogger := logging.Component(logger, "jsonld")
		c.cached = jsonld.RegisterCachedDocuments(ctx, store, entries, jsonldLogger)

		loaderOpts := []jsonld.LoaderOption{jsonld.WithLoaderLogger(jsonldLogger)}
		if cfg.JSONLD.AllowRemoteContexts {
			retry := governance.DefaultRetryConfig()
			retry.MaxRetries = cfg.JSONLD.RemoteRetries
			loaderOpts = append(loaderOpts, jsonld.WithRemoteFallback(
				&http.Client{Timeout: remoteContextTimeout},
				governance.NewRetryPolicy(retry),
			))
		}
		c.documents = store
		c.interceptor = jsonld.NewInterceptor(jsonld.NewLoader(store, loaderOpts...))
	}

	return c, nil
}

func redactions(cfg []config.RedactionConfig) []telemetry.Redaction {
	out := make([]telemetry.Redaction, 0, len(cfg))
	for _, r := range cfg {
		out = append(out, telemetry.Redaction{Attribute: r.Attribute, Strategy: r.Strategy})
	}
	return out
}
