// Package config provides a standardized way to load, validate, and access application configuration.
// It supports loading configuration from environment variables, files (JSON/YAML), and explicit overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/pkg/mediator"
	"github.com/mcncl/mediator-abort/pkg/requestabort"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Mediator  MediatorConfig  `json:"mediator" yaml:"mediator"`
	PubSub    PubSubConfig    `json:"pubsub" yaml:"pubsub"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// ServerConfig holds HTTP server related configuration
type ServerConfig struct {
	Port           int      `json:"port" yaml:"port"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	LogFormat      string   `json:"log_format" yaml:"log_format"`
	MaxRequestSize int      `json:"max_request_size" yaml:"max_request_size"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	ReadTimeout    Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout    Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// MediatorConfig holds dispatch related configuration
type MediatorConfig struct {
	// Lifetime of the wrapped mediator: transient, scoped or singleton.
	Lifetime string `json:"lifetime" yaml:"lifetime"`
	// PublishStrategy for notification handlers: sequential or parallel.
	PublishStrategy string `json:"publish_strategy" yaml:"publish_strategy"`
	// RateLimit is the sustained number of dispatches per second; 0 disables it.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `json:"rate_burst" yaml:"rate_burst"`
}

// PubSubConfig holds Google Cloud Pub/Sub forwarding configuration.
// Forwarding is enabled when both ProjectID and TopicID are set.
type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	TopicID         string `json:"topic_id" yaml:"topic_id"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// Enabled reports whether notifications are forwarded to Pub/Sub.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicID != ""
}

// TelemetryConfig holds OpenTelemetry tracing configuration
type TelemetryConfig struct {
	EnableTracing      bool    `json:"enable_tracing" yaml:"enable_tracing"`
	ServiceName        string  `json:"service_name" yaml:"service_name"`
	Environment        string  `json:"environment" yaml:"environment"`
	OTLPEndpoint       string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	TraceSamplingRatio float64 `json:"trace_sampling_ratio" yaml:"trace_sampling_ratio"`
}

// Duration is a time.Duration that reads either whole seconds (30) or a
// duration string ("1m30s") from JSON, YAML and the environment.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

// MarshalJSON writes d as a duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a number of seconds or a duration string
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
		return nil
	case string:
		parsed, err := parseDuration(val)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// UnmarshalYAML accepts a number of seconds or a duration string
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8888,
			LogLevel:       "info",
			LogFormat:      "json",
			MaxRequestSize: 1 * 1024 * 1024, // 1 MB
			RequestTimeout: Duration(30 * time.Second),
			ReadTimeout:    Duration(5 * time.Second),
			WriteTimeout:   Duration(60 * time.Second),
			IdleTimeout:    Duration(120 * time.Second),
		},
		Mediator: MediatorConfig{
			Lifetime:        "transient",
			PublishStrategy: "sequential",
			RateLimit:       0,
			RateBurst:       10,
		},
		Telemetry: TelemetryConfig{
			EnableTracing:      false,
			ServiceName:        "mediatord",
			Environment:        "development",
			OTLPEndpoint:       "localhost:4317",
			TraceSamplingRatio: 0.1,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return errors.NewValidationError("Server.Port must be between 1024 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if _, ok := validLogLevels[strings.ToLower(c.Server.LogLevel)]; !ok {
		return errors.NewValidationError("Server.LogLevel must be one of: debug, info, warn, error")
	}
	switch c.Server.LogFormat {
	case "json", "text", "dev":
	default:
		return errors.NewValidationError("Server.LogFormat must be one of: json, text, dev")
	}
	if c.Server.RequestTimeout < 0 {
		return errors.NewValidationError("Server.RequestTimeout cannot be negative")
	}

	if _, err := requestabort.ParseLifetime(c.Mediator.Lifetime); err != nil {
		return errors.NewValidationError("Mediator.Lifetime must be one of: transient, scoped, singleton")
	}
	if _, err := mediator.ParsePublishStrategy(c.Mediator.PublishStrategy); err != nil {
		return errors.NewValidationError("Mediator.PublishStrategy must be one of: sequential, parallel")
	}
	if c.Mediator.RateLimit < 0 {
		return errors.NewValidationError("Mediator.RateLimit cannot be negative")
	}
	if c.Mediator.RateLimit > 0 && c.Mediator.RateBurst < 1 {
		return errors.NewValidationError("Mediator.RateBurst must be at least 1 when rate limiting is enabled")
	}

	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicID == "") {
		return errors.NewValidationError("PubSub.ProjectID and PubSub.TopicID must be set together")
	}

	if c.Telemetry.EnableTracing {
		if c.Telemetry.OTLPEndpoint == "" {
			return errors.NewValidationError("Telemetry.OTLPEndpoint is required when tracing is enabled")
		}
		if c.Telemetry.TraceSamplingRatio < 0 || c.Telemetry.TraceSamplingRatio > 1 {
			return errors.NewValidationError("Telemetry.TraceSamplingRatio must be between 0 and 1")
		}
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables on top of the defaults
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overwrites fields of cfg for every variable that is set and parses.
func applyEnv(cfg *Config) {
	// Server
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Server.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Server.LogFormat = val
	}
	if val := os.Getenv("MAX_REQUEST_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			cfg.Server.MaxRequestSize = size
		}
	}
	for env, target := range map[string]*Duration{
		"REQUEST_TIMEOUT": &cfg.Server.RequestTimeout,
		"READ_TIMEOUT":    &cfg.Server.ReadTimeout,
		"WRITE_TIMEOUT":   &cfg.Server.WriteTimeout,
		"IDLE_TIMEOUT":    &cfg.Server.IdleTimeout,
	} {
		if val := os.Getenv(env); val != "" {
			if d, err := parseDuration(val); err == nil && d > 0 {
				*target = d
			}
		}
	}

	// Mediator
	if val := os.Getenv("MEDIATOR_LIFETIME"); val != "" {
		cfg.Mediator.Lifetime = strings.ToLower(val)
	}
	if val := os.Getenv("MEDIATOR_PUBLISH_STRATEGY"); val != "" {
		cfg.Mediator.PublishStrategy = strings.ToLower(val)
	}
	if val := os.Getenv("MEDIATOR_RATE_LIMIT"); val != "" {
		if limit, err := strconv.ParseFloat(val, 64); err == nil && limit >= 0 {
			cfg.Mediator.RateLimit = limit
		}
	}
	if val := os.Getenv("MEDIATOR_RATE_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			cfg.Mediator.RateBurst = burst
		}
	}

	// Pub/Sub
	if val := os.Getenv("PROJECT_ID"); val != "" {
		cfg.PubSub.ProjectID = val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		cfg.PubSub.TopicID = val
	}
	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		cfg.PubSub.CredentialsFile = val
	}

	// Telemetry
	if val := os.Getenv("ENABLE_TRACING"); val != "" {
		cfg.Telemetry.EnableTracing = strings.ToLower(val) == "true" || val == "1"
	}
	if val := os.Getenv("OTEL_SERVICE_NAME"); val != "" {
		cfg.Telemetry.ServiceName = val
	}
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}
	if val := os.Getenv("OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("TRACE_SAMPLING_RATIO"); val != "" {
		if ratio, err := strconv.ParseFloat(val, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.Telemetry.TraceSamplingRatio = ratio
		}
	}
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse JSON config file")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse YAML config file")
		}
	default:
		return nil, errors.NewValidationError("unsupported config file format: " + ext)
	}

	return cfg, nil
}

// MergeConfigs merges two configurations, with non-zero values of the second taking precedence
func MergeConfigs(base, override *Config) *Config {
	result := *base

	if override == nil {
		return &result
	}

	// Server config
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.LogLevel != "" {
		result.Server.LogLevel = override.Server.LogLevel
	}
	if override.Server.LogFormat != "" {
		result.Server.LogFormat = override.Server.LogFormat
	}
	if override.Server.MaxRequestSize != 0 {
		result.Server.MaxRequestSize = override.Server.MaxRequestSize
	}
	if override.Server.RequestTimeout != 0 {
		result.Server.RequestTimeout = override.Server.RequestTimeout
	}
	if override.Server.ReadTimeout != 0 {
		result.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if override.Server.WriteTimeout != 0 {
		result.Server.WriteTimeout = override.Server.WriteTimeout
	}
	if override.Server.IdleTimeout != 0 {
		result.Server.IdleTimeout = override.Server.IdleTimeout
	}

	// Mediator config
	if override.Mediator.Lifetime != "" {
		result.Mediator.Lifetime = override.Mediator.Lifetime
	}
	if override.Mediator.PublishStrategy != "" {
		result.Mediator.PublishStrategy = override.Mediator.PublishStrategy
	}
	if override.Mediator.RateLimit != 0 {
		result.Mediator.RateLimit = override.Mediator.RateLimit
	}
	if override.Mediator.RateBurst != 0 {
		result.Mediator.RateBurst = override.Mediator.RateBurst
	}

	// Pub/Sub config
	if override.PubSub.ProjectID != "" {
		result.PubSub.ProjectID = override.PubSub.ProjectID
	}
	if override.PubSub.TopicID != "" {
		result.PubSub.TopicID = override.PubSub.TopicID
	}
	if override.PubSub.CredentialsFile != "" {
		result.PubSub.CredentialsFile = override.PubSub.CredentialsFile
	}

	// Telemetry config
	// We need to explicitly check booleans
	if override.Telemetry.EnableTracing {
		result.Telemetry.EnableTracing = true
	}
	if override.Telemetry.ServiceName != "" {
		result.Telemetry.ServiceName = override.Telemetry.ServiceName
	}
	if override.Telemetry.Environment != "" {
		result.Telemetry.Environment = override.Telemetry.Environment
	}
	if override.Telemetry.OTLPEndpoint != "" {
		result.Telemetry.OTLPEndpoint = override.Telemetry.OTLPEndpoint
	}
	if override.Telemetry.TraceSamplingRatio != 0 {
		result.Telemetry.TraceSamplingRatio = override.Telemetry.TraceSamplingRatio
	}

	return &result
}

// Load loads the configuration from multiple sources with the following precedence:
// 1. Override (highest precedence)
// 2. Environment variables
// 3. Config file
// 4. Default values (lowest precedence)
func Load(configFile string, override *Config) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		fileCfg, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = MergeConfigs(cfg, fileCfg)
	}

	applyEnv(cfg)

	if override != nil {
		cfg = MergeConfigs(cfg, override)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String returns a string representation of the configuration
// with sensitive fields masked
func (c *Config) String() string {
	copy := *c

	if copy.PubSub.CredentialsFile != "" {
		copy.PubSub.CredentialsFile = "********"
	}

	bytes, err := json.MarshalIndent(copy, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error marshaling config: %v", err)
	}

	return string(bytes)
}
