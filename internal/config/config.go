// Package config loads agentd configuration from file, environment, and
// defaults using viper. Precedence is flags > environment > config file >
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the agent daemon.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Store   StoreConfig   `mapstructure:"store"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AgentConfig bounds agent task execution.
type AgentConfig struct {
	MaxIterations       int           `mapstructure:"max_iterations"`
	TaskTimeout         time.Duration `mapstructure:"task_timeout"`
	MaxConcurrentAgents int           `mapstructure:"max_concurrent_agents"`
	Temperature         float64       `mapstructure:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
}

// LLMConfig configures the model backend.
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the task state store backend.
type StoreConfig struct {
	// Backend is "memory" or "file".
	Backend string `mapstructure:"backend"`
	// Dir is the state directory for the file backend.
	Dir string `mapstructure:"dir"`
}

// AuditConfig configures the terminal-task archive.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.task_timeout", 300*time.Second)
	v.SetDefault("agent.max_concurrent_agents", 5)
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.max_tokens", 4096)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.dir", "data/tasks")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "data/audit.db")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from cfgFile (optional), agentd.yaml in the
// working directory, and AGENTD_* environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("agentd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/agentd")
	}

	v.SetEnvPrefix("AGENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file is fine, defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxConcurrentAgents <= 0 {
		return fmt.Errorf("agent.max_concurrent_agents must be positive, got %d", c.Agent.MaxConcurrentAgents)
	}
	switch c.Store.Backend {
	case "memory", "file":
	default:
		return fmt.Errorf("store.backend must be \"memory\" or \"file\", got %q", c.Store.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
