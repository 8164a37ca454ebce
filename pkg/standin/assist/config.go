// Package assist – config.go defines the standin configuration.
package assist

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/standinhq/standin/pkg/standin/channels/whatsapp"
)

// Config holds all standin configuration.
type Config struct {
	// Instructions are the base system prompt for generated replies.
	Instructions string `yaml:"instructions"`

	// ReplyDelay is how long a sender must stay quiet before a reply is
	// generated. Messages arriving within the window restart it.
	ReplyDelay time.Duration `yaml:"reply_delay"`

	// LLM configures the Ollama-compatible endpoint.
	LLM LLMConfig `yaml:"llm"`

	// Store configures transcript persistence.
	Store StoreConfig `yaml:"store"`

	// HTTP configures the control surface server.
	HTTP HTTPConfig `yaml:"http"`

	// WhatsApp configures the WhatsApp channel.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// Retention configures scheduled transcript pruning.
	Retention RetentionConfig `yaml:"retention"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the chat completion endpoint.
type LLMConfig struct {
	// Host is the Ollama base URL (e.g. "http://localhost:11434").
	Host string `yaml:"host"`

	// Model is the model name passed to the endpoint.
	Model string `yaml:"model"`

	// Timeout bounds a single chat completion call.
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig configures transcript persistence.
type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Dir is the transcript directory for the file backend.
	Dir string `yaml:"dir"`

	// DatabasePath is the SQLite file for the sqlite backend.
	DatabasePath string `yaml:"database_path"`
}

// HTTPConfig configures the control surface.
type HTTPConfig struct {
	// Address is the listen address (e.g. ":8081").
	Address string `yaml:"address"`

	// AuthToken is an optional Bearer token. Empty disables auth.
	AuthToken string `yaml:"auth_token"`
}

// RetentionConfig configures scheduled transcript pruning.
type RetentionConfig struct {
	// Enabled turns the pruning job on.
	Enabled bool `yaml:"enabled"`

	// MaxAge is how long an idle transcript is kept.
	MaxAge time.Duration `yaml:"max_age"`

	// Schedule is a cron expression; empty means nightly at 03:00.
	Schedule string `yaml:"schedule"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Instructions: DefaultInstructions,
		ReplyDelay:   DefaultReplyDelay,
		LLM: LLMConfig{
			Host:    "http://localhost:11434",
			Model:   "llama3.2",
			Timeout: 2 * time.Minute,
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     "./data/chats",
		},
		HTTP: HTTPConfig{
			Address: ":8081",
		},
		WhatsApp: whatsapp.DefaultConfig(),
		Retention: RetentionConfig{
			Enabled: false,
			MaxAge:  30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFromFile reads a YAML config, layering it over the defaults and
// then applying environment overrides.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// FindConfigFile looks for a config file in conventional locations.
// Returns "" when none exists.
func FindConfigFile() string {
	candidates := []string{
		"./standin.yaml",
		"./config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home+"/.config/standin/config.yaml")
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ApplyEnv overlays environment variables onto the config. These match the
// variables the endpoint tooling already uses, so a bare `standin serve`
// picks up an existing Ollama setup.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.LLM.Host = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Address = ":" + v
	}
}
