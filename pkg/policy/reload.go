package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// Source names the files a validator is built from. Empty fields select the embedded
// defaults.
type Source struct {
	VocabularyFile string
	RulesDir       string
}

// Paths returns the filesystem locations whose changes require a rebuild.
func (s Source) Paths() []string {
	var paths []string
	if s.VocabularyFile != "" {
		paths = append(paths, s.VocabularyFile)
	}
	if s.RulesDir != "" {
		paths = append(paths, s.RulesDir)
	}
	return paths
}

// Build constructs a validator from the source.
func (s Source) Build(ctx context.Context, logger *slog.Logger) (*Validator, error) {
	opts := []Option{WithLogger(logger)}

	if s.VocabularyFile != "" {
		vocab, err := LoadVocabulary(s.VocabularyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithVocabulary(vocab))
	}
	if s.RulesDir != "" {
		modules, err := LoadModules(s.RulesDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithModules(modules))
	}

	return NewValidator(ctx, opts...)
}

// ReloadableValidator serves validations from the most recently built validator.
// Reload swaps the validator atomically; evaluations already running keep the
// validator they started with.
type ReloadableValidator struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Validator]
	// reloads serializes rebuilds so that the last one to finish wins deterministically.
	reloads sync.Mutex
	count   atomic.Uint64
}

// NewReloadableValidator builds the initial validator from source.
func NewReloadableValidator(ctx context.Context, source Source, logger *slog.Logger) (*ReloadableValidator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	initial, err := source.Build(ctx, logger)
	if err != nil {
		return nil, err
	}

	r := &ReloadableValidator{source: source, logger: logger}
	r.current.Store(initial)
	return r, nil
}

// Validate delegates to the current validator.
func (r *ReloadableValidator) Validate(ctx context.Context, p *domain.Policy) (domain.ValidationOutcome, error) {
	return r.Current().Validate(ctx, p)
}

// Current returns the validator in use.
func (r *ReloadableValidator) Current() *Validator {
	return r.current.Load()
}

// Generation counts successful reloads.
func (r *ReloadableValidator) Generation() uint64 {
	return r.count.Load()
}

// Reload rebuilds the validator from its source. On failure the previous validator
// stays in place and the error is returned.
func (r *ReloadableValidator) Reload(ctx context.Context) error {
	r.reloads.Lock()
	defer r.reloads.Unlock()

	next, err := r.source.Build(ctx, r.logger)
	if err != nil {
		r.logger.Warn("policy rules reload failed; keeping previous rules", "error", err)
		return fmt.Errorf("reload policy rules: %w", err)
	}
	if next == nil {
		return errors.New("reload policy rules: empty validator")
	}

	r.current.Store(next)
	gen := r.count.Add(1)
	r.logger.Info("policy rules reloaded",
		"generation", gen,
		"modules", len(next.Modules()),
		"left_operands", len(next.Vocabulary().LeftOperands),
	)
	return nil
}
