package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	envPrefix = "SQL_AGENT_"
	appName   = "sql-agent"

	defaultOllamaURL = "http://localhost:11434"
	defaultRegion    = "us-east-1"

	// noDefaultTag is a tag nothing declares, so an env pass using it only
	// applies variables that are actually set
	noDefaultTag = "envNoDefault"
)

// Config represents the application configuration
type Config struct {
	Store     StoreConfig     `json:"store"`
	Embedding EmbeddingConfig `json:"embedding"`
	LLM       LLMConfig       `json:"llm"`
	Source    SourceConfig    `json:"source"`
	Agent     AgentConfig     `json:"agent"`
	History   HistoryConfig   `json:"history"`
	Cache     CacheConfig     `json:"cache"`
	Logging   LoggingConfig   `json:"logging"`
	Debug     DebugConfig     `json:"debug"`
}

// StoreConfig selects and tunes the vector store backend
type StoreConfig struct {
	Backend         string `json:"backend"            env:"STORE_BACKEND"        envDefault:"duckdb"` // memory, duckdb, sqlite, postgres, qdrant
	Path            string `json:"path"               env:"DB_PATH"              envDefault:"~/.config/sql-agent/schemas.db"`
	Collection      string `json:"collection"         env:"COLLECTION"           envDefault:"database_schemas"`
	PostgresDSN     string `json:"postgres_dsn"       env:"PG_DSN"`
	QdrantHost      string `json:"qdrant_host"        env:"QDRANT_HOST"          envDefault:"localhost"`
	QdrantPort      int    `json:"qdrant_port"        env:"QDRANT_PORT"          envDefault:"6334"`
	MaxConnections  int    `json:"max_connections"    env:"DB_MAX_CONNECTIONS"   envDefault:"10"`
	MaxIdleConns    int    `json:"max_idle_conns"     env:"DB_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime string `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	QueryTimeout    string `json:"query_timeout"      env:"DB_QUERY_TIMEOUT"     envDefault:"30s"`
}

// EmbeddingConfig configures how schema text is turned into vectors
type EmbeddingConfig struct {
	Provider   string `json:"provider"   env:"EMBEDDING_PROVIDER"   envDefault:"ollama"` // ollama, hash
	Model      string `json:"model"      env:"EMBEDDING_MODEL"      envDefault:"nomic-embed-text"`
	BaseURL    string `json:"base_url"   env:"EMBEDDING_BASE_URL"   envDefault:"http://localhost:11434"`
	Dimensions int    `json:"dimensions" env:"EMBEDDING_DIMENSIONS" envDefault:"768"`
	Timeout    string `json:"timeout"    env:"EMBEDDING_TIMEOUT"    envDefault:"30s"`
	Cache      bool   `json:"cache"      env:"EMBEDDING_CACHE"      envDefault:"true"`
}

// LLMConfig configures the text generation backend
type LLMConfig struct {
	Provider   string `json:"provider"    env:"LLM_PROVIDER"    envDefault:"ollama"` // openai, anthropic, ollama, bedrock
	Model      string `json:"model"       env:"LLM_MODEL"`
	APIKey     string `json:"api_key"     env:"LLM_API_KEY"`
	BaseURL    string `json:"base_url"    env:"LLM_BASE_URL"`
	MaxTokens  int    `json:"max_tokens"  env:"LLM_MAX_TOKENS"  envDefault:"2000"`
	Timeout    string `json:"timeout"     env:"LLM_TIMEOUT"     envDefault:"60s"`
	Region     string `json:"region"      env:"LLM_REGION"      envDefault:"us-east-1"`
	BedrockAPI string `json:"bedrock_api" env:"LLM_BEDROCK_API" envDefault:"auto"` // auto, converse, invoke
}

// SourceConfig locates the schema definition files
type SourceConfig struct {
	Type       string `json:"type"         env:"SOURCE_TYPE"   envDefault:"dir"` // dir, s3, github
	Directory  string `json:"directory"    env:"SCHEMAS_DIR"   envDefault:"schemas"`
	S3Endpoint string `json:"s3_endpoint"  env:"S3_ENDPOINT"   envDefault:"s3.amazonaws.com"`
	S3Region   string `json:"s3_region"    env:"S3_REGION"`
	S3Bucket   string `json:"s3_bucket"    env:"S3_BUCKET"`
	S3Prefix   string `json:"s3_prefix"    env:"S3_PREFIX"`
	S3UseSSL   bool   `json:"s3_use_ssl"   env:"S3_USE_SSL"    envDefault:"true"`
	S3KeyID    string `json:"-"            env:"S3_ACCESS_KEY_ID"`
	S3Secret   string `json:"-"            env:"S3_SECRET_ACCESS_KEY"`
	GitHubRepo string `json:"github_repo"  env:"GITHUB_REPO"` // owner/name
	GitHubPath string `json:"github_path"  env:"GITHUB_PATH"   envDefault:"schemas"`
	GitHubRef  string `json:"github_ref"   env:"GITHUB_REF"`
}

// AgentConfig tunes retrieval for query generation
type AgentConfig struct {
	TopK    int  `json:"top_k"   env:"TOP_K"   envDefault:"5"`
	Explain bool `json:"explain" env:"EXPLAIN" envDefault:"false"`
}

// HistoryConfig controls multi-turn conversation context
type HistoryConfig struct {
	Enabled   bool `json:"enabled"    env:"HISTORY_ENABLED"    envDefault:"true"`
	MaxStored int  `json:"max_stored" env:"HISTORY_MAX_STORED" envDefault:"10"`
	InPrompt  int  `json:"in_prompt"  env:"HISTORY_IN_PROMPT"  envDefault:"3"`
	Summarize bool `json:"summarize"  env:"HISTORY_SUMMARIZE"  envDefault:"true"`
}

// CacheConfig represents the embedding cache configuration
type CacheConfig struct {
	Directory string `json:"directory"   env:"CACHE_DIR"         envDefault:"~/.cache/sql-agent"`
	MaxSizeMB int    `json:"max_size_mb" env:"CACHE_MAX_SIZE_MB" envDefault:"100"`
	TTLHours  int    `json:"ttl_hours"   env:"CACHE_TTL_HOURS"   envDefault:"720"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      env:"LOG_LEVEL"      envDefault:"warn"`   // debug, info, warn, error
	Format    string `json:"format"     env:"LOG_FORMAT"     envDefault:"text"`   // text, json
	Output    string `json:"output"     env:"LOG_OUTPUT"     envDefault:"stderr"` // stdout, stderr, file
	File      string `json:"file"       env:"LOG_FILE"       envDefault:"~/.config/sql-agent/logs/app.log"`
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled     bool `json:"enabled"      env:"DEBUG"              envDefault:"false"`
	MetricsPort int  `json:"metrics_port" env:"DEBUG_METRICS_PORT" envDefault:"9090"`
	Verbose     bool `json:"verbose"      env:"VERBOSE"            envDefault:"false"`
}

// providerCredentials are read from the conventional, unprefixed variables
// each provider's own tooling uses
type providerCredentials struct {
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	OllamaHost   string `env:"OLLAMA_HOST"`
	AWSRegion    string `env:"AWS_REGION"`
}

// DefaultConfig returns the configuration with only declared defaults applied
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = env.ParseWithOptions(cfg, env.Options{
		Prefix:      envPrefix,
		Environment: map[string]string{},
	})

	return cfg
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence from lowest to highest: defaults, config file, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	return LoadConfigFrom("", flagOverrides)
}

// LoadConfigFrom is LoadConfigWithOverrides reading an explicit config file.
// An explicit path must exist; an empty path falls back to the default location.
func LoadConfigFrom(path string, flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	configPath := getConfigPath()
	if path != "" {
		configPath = ExpandPath(path)
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile overlays the keys present in a JSON file onto config
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides applies only the variables that are set, leaving
// file and default values in place for the rest
func applyEnvironmentOverrides(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:              envPrefix,
		DefaultValueTagName: noDefaultTag,
	}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	var creds providerCredentials
	if err := env.Parse(&creds); err != nil {
		return fmt.Errorf("failed to parse provider credentials: %w", err)
	}

	applyCredentials(config, creds)

	return nil
}

func applyCredentials(config *Config, creds providerCredentials) {
	if config.LLM.APIKey == "" {
		switch config.LLM.Provider {
		case "openai":
			config.LLM.APIKey = creds.OpenAIKey
		case "anthropic":
			config.LLM.APIKey = creds.AnthropicKey
		}
	}

	if creds.OllamaHost != "" {
		if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
			config.LLM.BaseURL = creds.OllamaHost
		}

		if config.Embedding.BaseURL == defaultOllamaURL {
			config.Embedding.BaseURL = creds.OllamaHost
		}
	}

	if creds.AWSRegion != "" && config.LLM.Region == defaultRegion {
		config.LLM.Region = creds.AWSRegion
	}
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Store.Path = str
			}
		case "backend":
			if str, ok := value.(string); ok && str != "" {
				config.Store.Backend = str
			}
		case "schemas-dir":
			if str, ok := value.(string); ok && str != "" {
				config.Source.Directory = str
			}
		case "llm-provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "embedding-provider":
			if str, ok := value.(string); ok && str != "" {
				config.Embedding.Provider = str
			}
		case "top-k":
			if n, ok := value.(int); ok && n != 0 {
				config.Agent.TopK = n
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "verbose":
			if b, ok := value.(bool); ok && b {
				config.Debug.Verbose = true
			}
		case "debug":
			if b, ok := value.(bool); ok && b {
				config.Debug.Enabled = true
			}
		default:
			return fmt.Errorf("unknown flag override: %s", key)
		}
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	value = strings.ToLower(value)
	for _, a := range allowed {
		if value == a {
			return true
		}
	}

	return false
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	if !oneOf(config.Logging.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	if !oneOf(config.Logging.Format, "text", "json") {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	if !oneOf(config.Logging.Output, "stdout", "stderr", "file") {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	if !oneOf(config.Store.Backend, "memory", "duckdb", "sqlite", "postgres", "qdrant") {
		return fmt.Errorf(
			"invalid store backend: %s (must be memory, duckdb, sqlite, postgres, or qdrant)",
			config.Store.Backend,
		)
	}

	if strings.EqualFold(config.Store.Backend, "postgres") && config.Store.PostgresDSN == "" {
		return fmt.Errorf("postgres backend requires %sPG_DSN", envPrefix)
	}

	if !oneOf(config.Embedding.Provider, "ollama", "hash") {
		return fmt.Errorf("invalid embedding provider: %s (must be ollama or hash)", config.Embedding.Provider)
	}

	if config.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive: %d", config.Embedding.Dimensions)
	}

	if !oneOf(config.LLM.Provider, "openai", "anthropic", "ollama", "bedrock") {
		return fmt.Errorf(
			"invalid llm provider: %s (must be openai, anthropic, ollama, or bedrock)",
			config.LLM.Provider,
		)
	}

	if !oneOf(config.LLM.BedrockAPI, "auto", "converse", "invoke") {
		return fmt.Errorf("invalid bedrock api mode: %s (must be auto, converse, or invoke)", config.LLM.BedrockAPI)
	}

	switch strings.ToLower(config.Source.Type) {
	case "dir":
		if config.Source.Directory == "" {
			return fmt.Errorf("schema directory is required for the dir source")
		}
	case "s3":
		if config.Source.S3Bucket == "" {
			return fmt.Errorf("s3 source requires %sS3_BUCKET", envPrefix)
		}
	case "github":
		if strings.Count(config.Source.GitHubRepo, "/") != 1 {
			return fmt.Errorf("github source requires %sGITHUB_REPO as owner/name, got %q",
				envPrefix, config.Source.GitHubRepo)
		}
	default:
		return fmt.Errorf("invalid source type: %s (must be dir, s3, or github)", config.Source.Type)
	}

	durations := map[string]string{
		"database query timeout":     config.Store.QueryTimeout,
		"database conn max lifetime": config.Store.ConnMaxLifetime,
		"database conn max idle":     config.Store.ConnMaxIdleTime,
		"embedding timeout":          config.Embedding.Timeout,
		"llm timeout":                config.LLM.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Store.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Store.MaxConnections,
		)
	}

	if config.Agent.TopK <= 0 {
		return fmt.Errorf("top_k must be positive: %d", config.Agent.TopK)
	}

	if config.History.MaxStored <= 0 {
		return fmt.Errorf("history max_stored must be positive: %d", config.History.MaxStored)
	}

	if config.History.InPrompt < 0 {
		return fmt.Errorf("history in_prompt must not be negative: %d", config.History.InPrompt)
	}

	return nil
}

// Duration parses a validated duration field, falling back to def
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}

	return d
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv(envPrefix + "CONFIG"); configPath != "" {
		return ExpandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Store.Path = ExpandPath(c.Store.Path)
	c.Source.Directory = ExpandPath(c.Source.Directory)
	c.Cache.Directory = ExpandPath(c.Cache.Directory)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", appName)
	}

	return filepath.Join(homeDir, ".config", appName)
}

// EnsureDirectories creates the directories the configured backends write to
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Cache.Directory}

	if oneOf(c.Store.Backend, "duckdb", "sqlite") {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}

	if strings.EqualFold(c.Logging.Output, "file") {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
