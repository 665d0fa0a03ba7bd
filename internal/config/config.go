package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Keywords  KeywordsConfig            `mapstructure:"keywords"`
	Chat      ChatConfig                `mapstructure:"chat"`
}

// ServerConfig describes HTTP daemon settings.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	Transport      string   `mapstructure:"transport"` // sse or ndjson
	MetricsEnabled bool     `mapstructure:"metrics_enabled"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ProviderConfig represents an upstream chat API such as Azure OpenAI or an
// OpenAI-compatible gateway. A provider missing endpoint or api_key drops to
// mock mode so the stack runs offline.
type ProviderConfig struct {
	Type       string        `mapstructure:"type"`        // azure, openai, mock
	Endpoint   string        `mapstructure:"endpoint"`    // API base URL
	APIKey     string        `mapstructure:"api_key"`     // credential
	APIVersion string        `mapstructure:"api_version"` // azure api-version query value
	Timeout    time.Duration `mapstructure:"timeout"`     // request timeout
}

// ModelConfig is one registry entry binding a model id to a provider
// deployment plus its descriptor metadata.
type ModelConfig struct {
	Provider            string   `mapstructure:"provider"`
	Deployment          string   `mapstructure:"deployment"`
	DisplayName         string   `mapstructure:"display_name"`
	Description         string   `mapstructure:"description"`
	MaxTokens           int      `mapstructure:"max_tokens"`
	Capabilities        []string `mapstructure:"capabilities"`
	ComplexityThreshold int      `mapstructure:"complexity_threshold"`
	CostPer1KTokens     float64  `mapstructure:"cost_per_1k_tokens"`
	Tier                string   `mapstructure:"tier"` // high or low
}

// KeywordsConfig is the three-tier complexity keyword lexicon.
type KeywordsConfig struct {
	High   []string `mapstructure:"high"`
	Medium []string `mapstructure:"medium"`
	Low    []string `mapstructure:"low"`
}

// ChatConfig tunes the chat completion requests sent upstream.
type ChatConfig struct {
	SystemPrompt  string  `mapstructure:"system_prompt"`
	HistoryWindow int     `mapstructure:"history_window"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature"`
}

// Load reads configuration from the provided path or defaults to
// configs/config.yaml. A missing file is fine when no explicit path is given:
// the defaults describe a complete runnable setup (mock providers, local
// SQLite). Environment variables override file values (prefix: MODELZOO_,
// dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MODELZOO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFound) && path == "") {
			return nil, fmt.Errorf("read config: %w", err)
		}
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

// setDefaults populates the stock two-model registry, the keyword lexicon,
// and sensible runtime settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.transport", "sse")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000", "*"})

	v.SetDefault("database.path", "modelzoo.db")

	v.SetDefault("providers.azure.type", "azure")
	v.SetDefault("providers.azure.endpoint", "")
	v.SetDefault("providers.azure.api_key", "")
	v.SetDefault("providers.azure.api_version", "2024-02-15-preview")
	v.SetDefault("providers.azure.timeout", "60s")

	v.SetDefault("models.gpt-4.provider", "azure")
	v.SetDefault("models.gpt-4.deployment", "gpt-4")
	v.SetDefault("models.gpt-4.display_name", "GPT-4")
	v.SetDefault("models.gpt-4.description", "Most capable model for complex reasoning and analysis")
	v.SetDefault("models.gpt-4.max_tokens", 8192)
	v.SetDefault("models.gpt-4.capabilities", []string{"complex_reasoning", "code_generation", "analysis", "creative_writing"})
	v.SetDefault("models.gpt-4.complexity_threshold", 4)
	v.SetDefault("models.gpt-4.cost_per_1k_tokens", 0.03)
	v.SetDefault("models.gpt-4.tier", "high")

	v.SetDefault("models.gpt-35-turbo.provider", "azure")
	v.SetDefault("models.gpt-35-turbo.deployment", "gpt-35-turbo")
	v.SetDefault("models.gpt-35-turbo.display_name", "GPT-3.5 Turbo")
	v.SetDefault("models.gpt-35-turbo.description", "Fast and efficient for straightforward tasks")
	v.SetDefault("models.gpt-35-turbo.max_tokens", 4096)
	v.SetDefault("models.gpt-35-turbo.capabilities", []string{"general_chat", "simple_code", "summarization", "translation"})
	v.SetDefault("models.gpt-35-turbo.complexity_threshold", 2)
	v.SetDefault("models.gpt-35-turbo.cost_per_1k_tokens", 0.002)
	v.SetDefault("models.gpt-35-turbo.tier", "low")

	v.SetDefault("keywords.high", []string{
		"analyze", "explain in detail", "compare", "contrast", "evaluate",
		"synthesize", "create a plan", "design", "architect", "optimize",
		"debug complex", "refactor", "implement algorithm",
	})
	v.SetDefault("keywords.medium", []string{
		"summarize", "describe", "list", "what is", "how does", "example",
		"convert", "translate", "format", "write code",
	})
	v.SetDefault("keywords.low", []string{"hi", "hello", "thanks", "yes", "no", "ok", "bye"})

	v.SetDefault("chat.system_prompt", "You are a helpful AI assistant in ModelZoo. Provide clear, accurate, and helpful responses. Be concise but thorough.")
	v.SetDefault("chat.history_window", 10)
	v.SetDefault("chat.max_tokens", 2048)
	v.SetDefault("chat.temperature", 0.7)
}

// Validate performs sanity checks on configuration values. Misconfiguration
// fails here, at startup, never at call time.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		switch p.Type {
		case "azure", "openai", "mock":
		case "":
			return fmt.Errorf("provider %q must define type", name)
		default:
			return fmt.Errorf("provider %q has unknown type %q", name, p.Type)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider %q timeout cannot be negative", name)
		}
	}

	var highCount, lowCount int
	for id, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", id)
		}
		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", id, m.Provider)
		}
		if m.MaxTokens <= 0 {
			return fmt.Errorf("model %q max_tokens must be > 0", id)
		}
		if m.ComplexityThreshold < 0 {
			return fmt.Errorf("model %q complexity_threshold must be >= 0", id)
		}
		if m.CostPer1KTokens < 0 {
			return fmt.Errorf("model %q cost_per_1k_tokens must be >= 0", id)
		}
		switch m.Tier {
		case "high":
			highCount++
		case "low":
			lowCount++
		default:
			return fmt.Errorf("model %q tier must be high or low, got %q", id, m.Tier)
		}
	}
	if highCount != 1 || lowCount != 1 {
		return fmt.Errorf("registry needs exactly one high-tier and one low-tier model, got %d high / %d low", highCount, lowCount)
	}

	if len(c.Keywords.High) == 0 || len(c.Keywords.Medium) == 0 || len(c.Keywords.Low) == 0 {
		return errors.New("keyword lexicon must define high, medium and low tiers")
	}

	if c.Chat.HistoryWindow <= 0 {
		return errors.New("chat.history_window must be > 0")
	}
	if c.Chat.MaxTokens <= 0 {
		return errors.New("chat.max_tokens must be > 0")
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return errors.New("chat.temperature must be within [0,2]")
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must be set")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "sse", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of sse or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
