// Package config loads and validates the generator's YAML configuration,
// with environment-variable overrides for the values most commonly tuned
// per deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Registry      RegistryConfig      `yaml:"registry"`
	Generator     GeneratorConfig     `yaml:"generator"`
	Filters       []TargetFilter      `yaml:"filters"`
	Logging       LoggingConfig       `yaml:"logging"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Hosts         HostsConfig         `yaml:"hosts"`
	TemplateStore TemplateStoreConfig `yaml:"template_store"`
	Database      DatabaseConfig      `yaml:"database"`
}

// ServerConfig configures the ambient HTTP entrypoint.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// LLMConfig configures the active LLM provider.
type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	Provider    string        `yaml:"provider"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// RegistryConfig configures the container registry gateway.
type RegistryConfig struct {
	URL           string        `yaml:"url"`
	Namespace     string        `yaml:"namespace"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	SeedTool      string        `yaml:"seed_tool"`
	ClientHost    string        `yaml:"client_host"`
	InsecureTLS   bool          `yaml:"insecure_tls"`
	ExistsTimeout time.Duration `yaml:"exists_timeout"`
	SeedTimeout   time.Duration `yaml:"seed_timeout"`
}

// HostsConfig authenticates against the repository hosts the analyzer,
// committer, and supervisor talk to.
type HostsConfig struct {
	GitHub HostConfig `yaml:"github"`
	GitLab HostConfig `yaml:"gitlab"`
}

// HostConfig is one repository host's base URL and access token. An
// empty BaseURL lets the concrete client fall back to the host's public
// default.
type HostConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// TemplateStoreConfig configures the reference-template/proven-artifact
// vector store backend.
type TemplateStoreConfig struct {
	// Backend is "http" (a ChromaDB-shaped REST API) or "memory" (an
	// in-process store with no persistence, for a single-process or
	// test deployment).
	Backend string        `yaml:"backend"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig configures the learning store's Postgres connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// GeneratorConfig configures the orchestrator, fixer, and supervisor loop.
type GeneratorConfig struct {
	DryRun            bool          `yaml:"dry_run"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	CooldownPeriod    time.Duration `yaml:"cooldown_period"`
	MaxFixAttempts    int           `yaml:"max_fix_attempts"`
	StrictFixPolicy   bool          `yaml:"strict_fix_policy"`
	MonitorInterval   time.Duration `yaml:"monitor_interval"`
	DiscoveryTimeout  time.Duration `yaml:"discovery_timeout"`
	MaxProgressEvents int           `yaml:"max_progress_events"`
	WorkspaceTTL      time.Duration `yaml:"workspace_ttl"`
}

// TargetFilter scopes which repositories the monitor reacts to.
type TargetFilter struct {
	Name       string              `yaml:"name"`
	Conditions map[string][]string `yaml:"conditions"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WebhookConfig configures the inbound webhook listener.
type WebhookConfig struct {
	Port string `yaml:"port"`
	Path string `yaml:"path"`
}

const (
	defaultLLMEndpoint       = "http://localhost:8080"
	defaultRegistryNamespace = "default"
	defaultMaxConcurrent     = 5
	defaultMaxFixAttempts    = 10
	defaultMaxProgressEvents = 200
)

// Load reads, parses, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(config)

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Registry.Namespace == "" {
		config.Registry.Namespace = defaultRegistryNamespace
	}
	if config.Generator.MaxConcurrent == 0 {
		config.Generator.MaxConcurrent = defaultMaxConcurrent
	}
	if config.Generator.MaxFixAttempts == 0 {
		config.Generator.MaxFixAttempts = defaultMaxFixAttempts
	}
	if config.Generator.MaxProgressEvents == 0 {
		config.Generator.MaxProgressEvents = defaultMaxProgressEvents
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = "local"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 4096
	}
	if config.TemplateStore.Backend == "" {
		config.TemplateStore.Backend = "memory"
	}
	if config.TemplateStore.Timeout <= 0 {
		config.TemplateStore.Timeout = 10 * time.Second
	}
	if config.Registry.ExistsTimeout <= 0 {
		config.Registry.ExistsTimeout = 5 * time.Second
	}
	if config.Registry.SeedTimeout <= 0 {
		config.Registry.SeedTimeout = 60 * time.Second
	}
}

var supportedLLMProviders = map[string]bool{
	"local":     true,
	"cli":       true,
	"anthropic": true,
	"bedrock":   true,
	"langchain": true,
}

// validate checks invariants and fills in the handful of defaults that
// depend on other fields already being set (e.g. the local-provider
// endpoint).
func validate(config *Config) error {
	if !supportedLLMProviders[config.LLM.Provider] {
		return fmt.Errorf("unsupported LLM provider: %s", config.LLM.Provider)
	}

	if config.LLM.Endpoint == "" {
		config.LLM.Endpoint = defaultLLMEndpoint
	}

	if config.LLM.Provider == "local" && config.LLM.Model == "" {
		return fmt.Errorf("LLM model is required for local provider")
	}

	if config.LLM.Temperature < 0.0 || config.LLM.Temperature > 1.0 {
		return fmt.Errorf("LLM temperature must be between 0.0 and 1.0")
	}

	if config.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM max tokens must be greater than 0")
	}

	if config.Registry.Namespace == "" {
		return fmt.Errorf("registry namespace is required")
	}

	if config.Generator.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent generations must be greater than 0")
	}

	return nil
}

// loadFromEnv overrides config fields with the handful of environment
// variables deployments commonly vary without editing the YAML file.
func loadFromEnv(config *Config) error {
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		config.LLM.Endpoint = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		config.LLM.Provider = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		config.Server.WebhookPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DRY_RUN value: %w", err)
		}
		config.Generator.DryRun = dryRun
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		config.Hosts.GitHub.Token = v
	}
	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		config.Hosts.GitLab.Token = v
	}
	if v := os.Getenv("REGISTRY_USERNAME"); v != "" {
		config.Registry.Username = v
	}
	if v := os.Getenv("REGISTRY_PASSWORD"); v != "" {
		config.Registry.Password = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.Database.DSN = v
	}
	return nil
}
