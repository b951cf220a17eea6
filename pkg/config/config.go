// Package config provides configuration structures and loading logic for the validator service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load and the per-section Validate methods.
const (
	DefaultAddress            = ":8080"
	DefaultBasePath           = "/management"
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultShutdownTimeout    = 15 * time.Second
	DefaultMaxBodyBytes       = 1 << 20
	DefaultServiceName        = "cx-policy-validator"
	DefaultTransformerContext = "management-api"
	DefaultDocumentType       = "PolicyDefinition"
	DefaultRemoteRetries      = 2
)

// Config holds the global configuration for the validator.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Validation ValidationConfig `yaml:"validation"`
	JSONLD     JSONLDConfig     `yaml:"jsonld"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address         string          `yaml:"address"`
	BasePath        string          `yaml:"base_path"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	TLS             TLSConfig       `yaml:"tls"`
}

// TLSConfig enables HTTPS on the listener. Paths must be absolute.
type TLSConfig struct {
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	ClientCAFile string `yaml:"client_ca_file"`
	// Watch reloads the certificate pair when the files change.
	Watch bool `yaml:"watch"`
}

// Enabled reports whether the listener serves TLS.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// RateLimitConfig throttles validation requests per client address. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Enabled reports whether requests are throttled.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// CORSConfig lists the origins allowed to call the validation endpoint from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Insecure     bool              `yaml:"insecure"`
	ServiceName  string            `yaml:"service_name"`
	Environment  string            `yaml:"environment"`
	Redactions   []RedactionConfig `yaml:"redactions,omitempty"`
}

// RedactionConfig names a span attribute and how it is scrubbed.
type RedactionConfig struct {
	Attribute string `yaml:"attribute"`
	Strategy  string `yaml:"strategy"`
}

// ValidationConfig selects the transformer context and the rule set used for
// semantic validation.
type ValidationConfig struct {
	DocumentType       string `yaml:"document_type"`
	TransformerContext string `yaml:"transformer_context"`
	VocabularyFile     string `yaml:"vocabulary_file"`
	RulesDir           string `yaml:"rules_dir"`
	Watch              bool   `yaml:"watch"`
}

// JSONLDConfig controls the JSON-LD interceptor and its document cache.
type JSONLDConfig struct {
	Enabled             bool             `yaml:"enabled"`
	AllowRemoteContexts bool             `yaml:"allow_remote_contexts"`
	RemoteRetries       int              `yaml:"remote_retries"`
	Documents           []DocumentConfig `yaml:"documents,omitempty"`
}

// DocumentConfig maps a context URL to a local file served from the cache.
type DocumentConfig struct {
	URL  string `yaml:"url"`
	File string `yaml:"file"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultAddress,
			BasePath:        DefaultBasePath,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Validation: ValidationConfig{
			DocumentType:       DefaultDocumentType,
			TransformerContext: DefaultTransformerContext,
		},
		JSONLD: JSONLDConfig{
			Enabled:       true,
			RemoteRetries: DefaultRemoteRetries,
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("CXV_ADDRESS"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("CXV_BASE_PATH"); val != "" {
		cfg.Server.BasePath = val
	}
	if val := os.Getenv("CXV_CORS_ORIGINS"); val != "" {
		cfg.Server.CORS.AllowedOrigins = splitList(val)
	}
	if val := os.Getenv("CXV_SHUTDOWN_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("CXV_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}
	if val := os.Getenv("CXV_TLS_CERT_FILE"); val != "" {
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("CXV_TLS_KEY_FILE"); val != "" {
		cfg.Server.TLS.KeyFile = val
	}
	if val := os.Getenv("CXV_TLS_CLIENT_CA_FILE"); val != "" {
		cfg.Server.TLS.ClientCAFile = val
	}
	if val := os.Getenv("CXV_RATE_LIMIT_RPS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("CXV_RATE_LIMIT_RPS: %w", err)
		}
		cfg.Server.RateLimit.RequestsPerSecond = n
	}

	if val := os.Getenv("CXV_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("CXV_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("CXV_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("CXV_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("CXV_SERVICE_NAME"); val != "" {
		cfg.Telemetry.ServiceName = val
	}
	if val := os.Getenv("CXV_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("CXV_TRANSFORMER_CONTEXT"); val != "" {
		cfg.Validation.TransformerContext = val
	}
	if val := os.Getenv("CXV_VOCABULARY_FILE"); val != "" {
		cfg.Validation.VocabularyFile = val
	}
	if val := os.Getenv("CXV_RULES_DIR"); val != "" {
		cfg.Validation.RulesDir = val
	}
	if val := os.Getenv("CXV_WATCH"); val != "" {
		cfg.Validation.Watch = val == "true"
	}

	if val := os.Getenv("CXV_JSONLD_ENABLED"); val != "" {
		cfg.JSONLD.Enabled = val == "true"
	}
	if val := os.Getenv("CXV_JSONLD_ALLOW_REMOTE"); val != "" {
		cfg.JSONLD.AllowRemoteContexts = val == "true"
	}
	if val := os.Getenv("CXV_JSONLD_REMOTE_RETRIES"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("CXV_JSONLD_REMOTE_RETRIES: %w", err)
		}
		cfg.JSONLD.RemoteRetries = n
	}

	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration: %w", err)
	}

	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation configuration: %w", err)
	}

	if err := c.JSONLD.Validate(); err != nil {
		return fmt.Errorf("jsonld configuration: %w", err)
	}

	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = DefaultAddress
	}

	// Base path is normalised to a leading slash without a trailing one; "/" means root.
	base := strings.TrimSpace(c.BasePath)
	if base == "" {
		base = DefaultBasePath
	}
	if !strings.HasPrefix(base, "/") {
		return fmt.Errorf("base_path %q must start with /", c.BasePath)
	}
	if strings.ContainsAny(base, "{}?#") {
		return fmt.Errorf("base_path %q contains reserved characters", c.BasePath)
	}
	c.BasePath = strings.TrimRight(base, "/")

	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}

	for i, origin := range c.CORS.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("cors allowed origin %d is empty", i)
		}
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls requires both cert_file and key_file")
	}
	if !c.TLS.Enabled() && (c.TLS.ClientCAFile != "" || c.TLS.Watch) {
		return fmt.Errorf("tls client_ca_file and watch require cert_file and key_file")
	}

	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "":
		c.Format = "json"
	case "json", "text":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: json, text", c.Format)
	}

	return nil
}

// Validate performs validation of telemetry configuration
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = DefaultServiceName
	}

	for i := range c.Redactions {
		r := &c.Redactions[i]
		if strings.TrimSpace(r.Attribute) == "" {
			return fmt.Errorf("redaction %d: attribute is required", i)
		}
		r.Strategy = strings.ToLower(strings.TrimSpace(r.Strategy))
		switch r.Strategy {
		case "":
			r.Strategy = "drop"
		case "drop", "mask", "hash", "replace":
		default:
			return fmt.Errorf("redaction %d: unknown strategy %q", i, r.Strategy)
		}
	}

	return nil
}

// Validate performs validation of the semantic validation configuration
func (c *ValidationConfig) Validate() error {
	if strings.TrimSpace(c.DocumentType) == "" {
		c.DocumentType = DefaultDocumentType
	}
	if strings.TrimSpace(c.TransformerContext) == "" {
		c.TransformerContext = DefaultTransformerContext
	}
	if c.Watch && c.VocabularyFile == "" && c.RulesDir == "" {
		return fmt.Errorf("watch requires vocabulary_file or rules_dir")
	}
	return nil
}

// Validate performs validation of the JSON-LD configuration
func (c *JSONLDConfig) Validate() error {
	if c.RemoteRetries < 0 {
		return fmt.Errorf("remote_retries must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Documents))
	for i, doc := range c.Documents {
		if strings.TrimSpace(doc.URL) == "" {
			return fmt.Errorf("document %d: url is required", i)
		}
		if strings.TrimSpace(doc.File) == "" {
			return fmt.Errorf("document %d (%s): file is required", i, doc.URL)
		}
		if _, dup := seen[doc.URL]; dup {
			return fmt.Errorf("document %d: duplicate url %q", i, doc.URL)
		}
		seen[doc.URL] = struct{}{}
	}
	return nil
}
