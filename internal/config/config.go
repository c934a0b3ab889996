// Package config loads the kubesage configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	ListenAddr   string   `yaml:"listen_addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	APIKeyEnv    string   `yaml:"api_key_env"`
}

// AgentConfig holds the conversation loop settings.
type AgentConfig struct {
	Model       string   `yaml:"model"`
	MaxRounds   int      `yaml:"max_rounds"`
	MaxTokens   int      `yaml:"max_tokens"`
	TokenBudget int      `yaml:"token_budget"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// MemoryConfig holds the history retention settings.
type MemoryConfig struct {
	Strategy    string `yaml:"strategy"`
	MaxMessages int    `yaml:"max_messages"`
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	Store  string   `yaml:"store"`
	Expiry Duration `yaml:"expiry"`
	// DSNEnv names the environment variable carrying the postgres
	// connection string, so the secret never lands in the config file.
	DSNEnv string `yaml:"dsn_env"`
}

// KubernetesConfig holds the cluster access settings.
type KubernetesConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// AuditConfig holds audit sink settings. Both sinks are optional.
type AuditConfig struct {
	FilePath  string `yaml:"file_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
	BatchSize int    `yaml:"batch_size"`
}

// Config is the complete kubesage configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Agent      AgentConfig      `yaml:"agent"`
	Memory     MemoryConfig     `yaml:"memory"`
	Session    SessionConfig    `yaml:"session"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Audit      AuditConfig      `yaml:"audit"`
	LogLevel   string           `yaml:"log_level"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":8000",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(5 * time.Minute),
			APIKeyEnv:    "KUBESAGE_API_KEY",
		},
		Agent: AgentConfig{
			Model:       "anthropic/claude-sonnet-4-20250514",
			MaxRounds:   15,
			MaxTokens:   4096,
			TokenBudget: 0,
		},
		Memory: MemoryConfig{
			Strategy:    "full",
			MaxMessages: 50,
		},
		Session: SessionConfig{
			Store:  "memory",
			Expiry: Duration(24 * time.Hour),
			DSNEnv: "KUBESAGE_POSTGRES_DSN",
		},
		Kubernetes: KubernetesConfig{
			UploadDir: "uploads",
		},
		Audit: AuditConfig{
			BatchSize: 100,
		},
		LogLevel: "info",
	}
}

// Load reads the config file at path, applies environment overrides,
// and validates the result. An empty path loads defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config values from KUBESAGE_* environment
// variables. Environment always wins over the file.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.ListenAddr, "KUBESAGE_LISTEN_ADDR")
	setString(&cfg.Agent.Model, "KUBESAGE_MODEL")
	setInt(&cfg.Agent.MaxRounds, "KUBESAGE_MAX_ROUNDS")
	setInt(&cfg.Agent.MaxTokens, "KUBESAGE_MAX_TOKENS")
	setInt(&cfg.Agent.TokenBudget, "KUBESAGE_TOKEN_BUDGET")
	setString(&cfg.Memory.Strategy, "KUBESAGE_MEMORY_STRATEGY")
	setInt(&cfg.Memory.MaxMessages, "KUBESAGE_MEMORY_MAX_MESSAGES")
	setString(&cfg.Session.Store, "KUBESAGE_SESSION_STORE")
	setDuration(&cfg.Session.Expiry, "KUBESAGE_SESSION_EXPIRY")
	setString(&cfg.Kubernetes.UploadDir, "KUBESAGE_UPLOAD_DIR")
	setString(&cfg.Audit.FilePath, "KUBESAGE_AUDIT_FILE")
	setString(&cfg.Audit.S3Bucket, "KUBESAGE_AUDIT_S3_BUCKET")
	setString(&cfg.Audit.S3Prefix, "KUBESAGE_AUDIT_S3_PREFIX")
	setString(&cfg.LogLevel, "KUBESAGE_LOG_LEVEL")
}

// Validate checks the configuration for values that would fail later
// at a worse time.
func (c *Config) Validate() error {
	var problems []string

	if c.Agent.Model == "" {
		problems = append(problems, "agent.model must not be empty")
	}
	if c.Agent.MaxRounds < 1 {
		problems = append(problems, "agent.max_rounds must be at least 1")
	}
	if c.Agent.MaxTokens < 1 {
		problems = append(problems, "agent.max_tokens must be at least 1")
	}
	if c.Agent.TokenBudget < 0 {
		problems = append(problems, "agent.token_budget must not be negative")
	}
	switch c.Memory.Strategy {
	case "full", "sliding_window":
	default:
		problems = append(problems, fmt.Sprintf("memory.strategy %q is not one of: full, sliding_window", c.Memory.Strategy))
	}
	if c.Memory.Strategy == "sliding_window" && c.Memory.MaxMessages < 1 {
		problems = append(problems, "memory.max_messages must be at least 1 for sliding_window")
	}
	switch c.Session.Store {
	case "memory", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("session.store %q is not one of: memory, postgres", c.Session.Store))
	}
	if c.Session.Store == "postgres" && os.Getenv(c.Session.DSNEnv) == "" {
		problems = append(problems, fmt.Sprintf("session.store is postgres but %s is not set", c.Session.DSNEnv))
	}
	if c.Kubernetes.UploadDir == "" {
		problems = append(problems, "kubernetes.upload_dir must not be empty")
	}
	if c.Audit.BatchSize < 1 {
		problems = append(problems, "audit.batch_size must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// KubeconfigPath returns the fixed path the uploaded kubeconfig is
// stored at.
func (c *Config) KubeconfigPath() string {
	return c.Kubernetes.UploadDir + "/config"
}

// PostgresDSN returns the postgres connection string from the
// configured environment variable.
func (c *Config) PostgresDSN() string {
	return os.Getenv(c.Session.DSNEnv)
}

// APIKey returns the expected API key, or empty when auth is disabled.
func (c *Config) APIKey() string {
	if c.Server.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Server.APIKeyEnv)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
