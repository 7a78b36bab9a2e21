package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the vecrag service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	LLM          LLMConfig          `yaml:"llm"`
	Rerank       RerankConfig       `yaml:"rerank"`
	Grading      GradingConfig      `yaml:"grading"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Partition    PartitionConfig    `yaml:"partition"`
	Trace        TraceConfig        `yaml:"trace"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	IndexName        string   `yaml:"index_name"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// LLMConfig holds the OpenAI-compatible embedding and chat settings.
type LLMConfig struct {
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	QueryInstruction    string  `yaml:"query_instruction"`
	ChatModel           string  `yaml:"chat_model"`
	Temperature         float32 `yaml:"temperature"`
	EmbeddingCacheTTL   int     `yaml:"embedding_cache_ttl_sec"`
}

// RerankConfig holds DocumentScorer settings.
type RerankConfig struct {
	Mode           string `yaml:"mode"` // keyword, dedicated, llm-judge, auto
	CacheSize      int    `yaml:"cache_size"`
	CacheTTLSec    int    `yaml:"cache_ttl_sec"`
	PoolSize       int    `yaml:"pool_size"`
	BatchTimeoutMs int    `yaml:"batch_timeout_ms"`
}

// GradingConfig holds the RetrievalGrader thresholds.
type GradingConfig struct {
	CorrectThreshold   float64 `yaml:"correct_threshold"`
	IncorrectThreshold float64 `yaml:"incorrect_threshold"`
}

// OrchestratorConfig bounds the retrieve/grade/rewrite loop.
type OrchestratorConfig struct {
	MaxIterations       int     `yaml:"max_iterations"`       // bounds rewrite/fallback cycles
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // early-exit level
	TopK                int     `yaml:"top_k"`
	HyDEEnabled         bool    `yaml:"hyde_enabled"`
	FallbackConsumes    *bool   `yaml:"fallback_consumes_iteration"` // default true
	PartitionFanout     bool    `yaml:"partition_fanout"`
	MaxQueryLength      int     `yaml:"max_query_length"`
	GenerationTimeoutMs int     `yaml:"generation_timeout_ms"`
}

// FallbackConsumesIteration reports whether a fallback retrieval counts toward MaxIterations.
func (o OrchestratorConfig) FallbackConsumesIteration() bool {
	return o.FallbackConsumes == nil || *o.FallbackConsumes
}

// PartitionConfig holds corpus partitioning settings.
type PartitionConfig struct {
	Count     int    `yaml:"count"` // corpus shard count
	Algorithm string `yaml:"algorithm"`
}

// TraceConfig holds reasoning trace retention settings.
type TraceConfig struct {
	Enabled   *bool `yaml:"enabled"` // default true
	CacheSize int   `yaml:"cache_size"`
	TTLSec    int   `yaml:"ttl_sec"`
}

// IsEnabled reports whether tracing is on. Unset means enabled.
func (t TraceConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.IndexName == "" {
		c.Database.IndexName = "vecrag:docs:idx"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "vecrag:"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.ChatModel == "" {
		c.LLM.ChatModel = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingCacheTTL <= 0 {
		c.LLM.EmbeddingCacheTTL = 7 * 24 * 3600
	}
	if c.Rerank.Mode == "" {
		c.Rerank.Mode = "auto"
	}
	if c.Rerank.CacheSize <= 0 {
		c.Rerank.CacheSize = 10000
	}
	if c.Rerank.CacheTTLSec <= 0 {
		c.Rerank.CacheTTLSec = 600
	}
	if c.Rerank.PoolSize <= 0 {
		c.Rerank.PoolSize = 16
	}
	if c.Rerank.BatchTimeoutMs <= 0 {
		c.Rerank.BatchTimeoutMs = 5000
	}
	if c.Grading.CorrectThreshold == 0 && c.Grading.IncorrectThreshold == 0 {
		c.Grading.CorrectThreshold = 0.7
		c.Grading.IncorrectThreshold = 0.3
	}
	if c.Orchestrator.MaxIterations <= 0 {
		c.Orchestrator.MaxIterations = 3
	}
	if c.Orchestrator.ConfidenceThreshold <= 0 {
		c.Orchestrator.ConfidenceThreshold = 0.8
	}
	if c.Orchestrator.TopK <= 0 {
		c.Orchestrator.TopK = 8
	}
	if c.Orchestrator.MaxQueryLength <= 0 {
		c.Orchestrator.MaxQueryLength = 4096
	}
	if c.Orchestrator.GenerationTimeoutMs <= 0 {
		c.Orchestrator.GenerationTimeoutMs = 60000
	}
	if c.Partition.Count <= 0 {
		c.Partition.Count = 16
	}
	if c.Partition.Algorithm == "" {
		c.Partition.Algorithm = "sha256"
	}
	if c.Trace.CacheSize <= 0 {
		c.Trace.CacheSize = 1000
	}
	if c.Trace.TTLSec <= 0 {
		c.Trace.TTLSec = 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Rerank.Mode {
	case "keyword", "dedicated", "llm-judge", "auto":
		// ok
	default:
		return fmt.Errorf(
			"rerank.mode must be one of keyword, dedicated, llm-judge, auto, got %q", c.Rerank.Mode,
		)
	}
	g := c.Grading
	if g.IncorrectThreshold < 0 || g.CorrectThreshold > 1 || g.IncorrectThreshold > g.CorrectThreshold {
		return fmt.Errorf(
			"grading thresholds must satisfy 0 <= incorrect <= correct <= 1, got incorrect=%g correct=%g",
			g.IncorrectThreshold, g.CorrectThreshold,
		)
	}
	if c.Orchestrator.ConfidenceThreshold > 1 {
		return fmt.Errorf("orchestrator.confidence_threshold must be <= 1, got %g", c.Orchestrator.ConfidenceThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
