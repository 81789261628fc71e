// Package copilot – config.go defines all configuration structures
// for the Clarity assistant.
package copilot

import "time"

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name shown in responses.
	Name string `yaml:"name"`

	// Model is the LLM model to use (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// API configures the LLM provider endpoint.
	API APIConfig `yaml:"api"`

	// Timezone is the executive's timezone (e.g. "Europe/Madrid").
	// Dates in tool arguments and the reminder window resolve against it.
	Timezone string `yaml:"timezone"`

	// Language is the preferred response language (e.g. "es").
	Language string `yaml:"language"`

	// HistoryLimit is how many prior conversation messages are replayed
	// into each turn.
	HistoryLimit int `yaml:"history_limit"`

	// Database configures the SQLite store.
	Database DatabaseConfig `yaml:"database"`

	// Gateway configures the HTTP API server.
	Gateway GatewayConfig `yaml:"gateway"`

	// Reminders configures the event reminder scheduler.
	Reminders RemindersConfig `yaml:"reminders"`

	// Notify configures out-of-band team announcements.
	Notify NotifyConfig `yaml:"notify"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the LLM provider endpoint and credentials.
type APIConfig struct {
	// BaseURL is the API base URL (OpenAI-compatible endpoint).
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider.
	// Can also be set via the CLARITY_API_KEY environment variable or the
	// system keyring ("clarity config set-key").
	APIKey string `yaml:"api_key"`

	// TimeoutSeconds bounds a single provider request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" gives an ephemeral store.
	Path string `yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`
}

// GatewayConfig configures the HTTP API server.
type GatewayConfig struct {
	// Enabled starts the HTTP gateway when true.
	Enabled bool `yaml:"enabled"`

	// Host is the listen address (default "127.0.0.1").
	Host string `yaml:"host"`

	// Port is the listen port (default 8787).
	Port int `yaml:"port"`

	// AuthToken, when set, requires "Authorization: Bearer <token>" on
	// every API request.
	AuthToken string `yaml:"auth_token"`

	// AllowedOrigins lists CORS origins. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RemindersConfig configures the event reminder scheduler.
type RemindersConfig struct {
	// Enabled starts the polling scheduler when true.
	Enabled bool `yaml:"enabled"`

	// PollSeconds is the interval between due-reminder scans.
	PollSeconds int `yaml:"poll_seconds"`

	// LeadMinutes is the default warning lead time before an event starts.
	// Individual events can override it.
	LeadMinutes int `yaml:"lead_minutes"`

	// DismissDelayMs is how long a dismissed reminder lingers before it is
	// removed from the active list, so in-flight reads still see it flagged.
	DismissDelayMs int `yaml:"dismiss_delay_ms"`
}

// NotifyConfig configures out-of-band team announcements.
type NotifyConfig struct {
	// Discord posts team-visible notes to a Discord channel.
	Discord DiscordNotifyConfig `yaml:"discord"`
}

// DiscordNotifyConfig configures the Discord announcer.
type DiscordNotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:  "Clarity",
		Model: "gpt-4o-mini",
		API: APIConfig{
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 60,
		},
		Timezone:     "Europe/Madrid",
		Language:     "es",
		HistoryLimit: 10,
		Database: DatabaseConfig{
			Path:          "clarity.db",
			BusyTimeoutMs: 5000,
		},
		Gateway: GatewayConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           8787,
			AllowedOrigins: []string{"*"},
		},
		Reminders: RemindersConfig{
			Enabled:        true,
			PollSeconds:    10,
			LeadMinutes:    15,
			DismissDelayMs: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
