// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM    LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Graph  GraphConfig     `mapstructure:"graph" yaml:"graph"`
	Ingest IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	Query  QueryConfig     `mapstructure:"query" yaml:"query"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// Router tier keys. The llm.models map is keyed by tier, so env bindings
// like llm.models.fast.api_key land on the entry the router actually reads.
const (
	TierKeyFast     = "fast"
	TierKeyPowerful = "powerful"
)

// ModelFor resolves the model config for a router tier. A tier entry that
// names no model inherits the tier's default model name; a missing entry
// yields a bare Gemini config for that default.
func (c LLMRouterConfig) ModelFor(tier string) LLMModelConfig {
	m := c.Models[tier]
	if m.Model == "" {
		switch tier {
		case TierKeyFast:
			m.Model = c.DefaultFastModel
		case TierKeyPowerful:
			m.Model = c.DefaultPowerfulModel
		default:
			m.Model = tier
		}
	}
	if m.Provider == "" {
		m.Provider = ProviderGemini
	}
	return m
}

// GraphConfig selects and locates the knowledge-graph backend.
type GraphConfig struct {
	// Backend is "memory" or "nornic".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the data directory for the embedded graph database. Ignored by
	// the memory backend.
	Path string `mapstructure:"path" yaml:"path"`
	// SnapshotPath is where graph export/import reads and writes JSON.
	SnapshotPath string `mapstructure:"snapshot_path" yaml:"snapshot_path"`
}

// IngestConfig tunes transcript and diagram ingestion.
type IngestConfig struct {
	BatchSize     int `mapstructure:"batch_size" yaml:"batch_size"`
	SnippetLength int `mapstructure:"snippet_length" yaml:"snippet_length"`
}

// QueryConfig tunes the query engine.
type QueryConfig struct {
	DefaultLimit    int `mapstructure:"default_limit" yaml:"default_limit"`
	MaxMermaidNodes int `mapstructure:"max_mermaid_nodes" yaml:"max_mermaid_nodes"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "planopticon")
	v.SetDefault("logger.log_file", "planopticon.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")

	// -- Graph --
	v.SetDefault("graph.backend", "memory")
	v.SetDefault("graph.path", "")
	v.SetDefault("graph.snapshot_path", "knowledge_graph.json")

	// -- Ingest --
	v.SetDefault("ingest.batch_size", 10)
	v.SetDefault("ingest.snippet_length", 100)

	// -- Query --
	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.max_mermaid_nodes", 30)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.models.fast.api_key", "PLANOPTICON_LLM_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("llm.models.powerful.api_key", "PLANOPTICON_LLM_API_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case "memory", "nornic":
	default:
		return fmt.Errorf("graph.backend must be 'memory' or 'nornic', got %q", c.Graph.Backend)
	}
	if c.Graph.Backend == "nornic" && c.Graph.Path == "" {
		return fmt.Errorf("graph.path is required when graph.backend is 'nornic'")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be a positive integer")
	}
	if c.Ingest.SnippetLength <= 0 {
		return fmt.Errorf("ingest.snippet_length must be a positive integer")
	}
	if c.Query.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be a positive integer")
	}
	if c.Query.MaxMermaidNodes <= 0 {
		return fmt.Errorf("query.max_mermaid_nodes must be a positive integer")
	}
	return nil
}

// StorePath returns the graph data directory when the embedded backend is
// selected, or "" for the in-memory backend.
func (c *Config) StorePath() string {
	if c.Graph.Backend == "nornic" {
		return c.Graph.Path
	}
	return ""
}
