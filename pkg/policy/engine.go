package policy

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed rules/*.rego
var builtinRules embed.FS

// EngineOptions control OPA engine construction.
type EngineOptions struct {
	// Entrypoint is the default decision path (e.g. "cxpolicy/violations").
	Entrypoint string
	// Modules contains the Rego modules that should be loaded into the engine.
	Modules map[string]string
}

// Engine evaluates Rego modules using an embedded OPA instance. Prepared queries are
// compiled once per entrypoint and shared by concurrent evaluations.
type Engine struct {
	modules       map[string]string
	moduleOrder   []string
	parsedModules map[string]*ast.Module
	entrypoint    string
	queries       map[string]*rego.PreparedEvalQuery
	mu            sync.RWMutex
}

const defaultEntrypoint = "cxpolicy/violations"

// NewEngine constructs an Engine for the supplied modules and entrypoint.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	if len(opts.Modules) == 0 {
		return nil, errors.New("policy engine requires at least one rego module")
	}

	moduleCopy := make(map[string]string, len(opts.Modules))
	moduleOrder := make([]string, 0, len(opts.Modules))
	for name, src := range opts.Modules {
		moduleCopy[name] = src
		moduleOrder = append(moduleOrder, name)
	}
	sort.Strings(moduleOrder)

	parsedModules := make(map[string]*ast.Module, len(moduleCopy))
	for _, name := range moduleOrder {
		module, err := ast.ParseModuleWithOpts(name, moduleCopy[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsedModules[name] = module
	}

	engine := &Engine{
		modules:       moduleCopy,
		moduleOrder:   moduleOrder,
		parsedModules: parsedModules,
		entrypoint:    entry,
		queries:       make(map[string]*rego.PreparedEvalQuery),
	}

	// Warm the default entrypoint to surface compile errors early.
	if _, err := engine.getPreparedQuery(ctx, entry); err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return engine, nil
}

// Eval evaluates the default entrypoint against input and returns the value of the
// first expression, or nil when the entrypoint is undefined.
func (e *Engine) Eval(ctx context.Context, input map[string]any) (any, error) {
	return e.EvalEntrypoint(ctx, e.entrypoint, input)
}

// EvalEntrypoint evaluates entry against input.
func (e *Engine) EvalEntrypoint(ctx context.Context, entry string, input map[string]any) (any, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, errors.New("policy engine requires an entrypoint")
	}

	prepared, err := e.getPreparedQuery(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("prepare query: %w", err)
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("opa evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	return results[0].Expressions[0].Value, nil
}

// Modules returns the loaded module names in evaluation order.
func (e *Engine) Modules() []string {
	return append([]string(nil), e.moduleOrder...)
}

// Close releases underlying OPA resources.
func (e *Engine) Close(_ context.Context) error {
	return nil
}

func (e *Engine) getPreparedQuery(ctx context.Context, entry string) (*rego.PreparedEvalQuery, error) {
	e.mu.RLock()
	if prepared, ok := e.queries[entry]; ok {
		e.mu.RUnlock()
		return prepared, nil
	}
	e.mu.RUnlock()

	query := "data." + strings.ReplaceAll(entry, "/", ".")

	opts := make([]func(*rego.Rego), 0, len(e.parsedModules)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range e.moduleOrder {
		opts = append(opts, rego.ParsedModule(e.parsedModules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Another goroutine may have already prepared the query; respect first entry.
	if existing, ok := e.queries[entry]; ok {
		return existing, nil
	}

	e.queries[entry] = &prepared
	return &prepared, nil
}

// BuiltinModules returns the embedded rule modules keyed by file name.
func BuiltinModules() (map[string]string, error) {
	return readModules(builtinRules, "rules")
}

// LoadModules reads every *.rego file in dir. Names are prefixed with the directory so
// they never collide with the built-in modules.
func LoadModules(dir string) (map[string]string, error) {
	modules, err := readModules(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("load rego modules from %s: %w", dir, err)
	}
	out := make(map[string]string, len(modules))
	for name, src := range modules {
		out[filepath.Join(dir, name)] = src
	}
	return out, nil
}

func readModules(fsys fs.FS, dir string) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
