// Package config loads and validates processor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bookholmes/processor/internal/detect"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Google  GoogleConfig  `mapstructure:"google"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Detect  DetectConfig  `mapstructure:"detect"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Events  EventsConfig  `mapstructure:"events"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles. Keys are compared against
// the Authorization header of analyze requests.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// GoogleConfig holds the API key shared by the Vision and Books APIs.
type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// GeminiConfig configures the generative model adapter.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// HTTPConfig configures the shared outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DetectConfig governs the pipeline orchestrator.
type DetectConfig struct {
	TitleStrategy         string `mapstructure:"title_strategy"`
	AnalyzeTimeoutSeconds int    `mapstructure:"analyze_timeout_seconds"`
}

// ScraperConfig configures browser navigation and screenshot capture.
type ScraperConfig struct {
	UserAgent           string         `mapstructure:"user_agent"`
	NavTimeoutSeconds   int            `mapstructure:"nav_timeout_seconds"`
	TOCSelector         string         `mapstructure:"toc_selector"`
	ScrollSelector      string         `mapstructure:"scroll_selector"`
	ScrollOffset        int            `mapstructure:"scroll_offset"`
	VisionTranscription bool           `mapstructure:"vision_transcription"`
	Clip                ClipConfig     `mapstructure:"clip"`
	Viewport            ViewportConfig `mapstructure:"viewport"`
}

// ClipConfig is the screenshot clip region tuned to the preview viewer's
// text area.
type ClipConfig struct {
	X      float64 `mapstructure:"x"`
	Y      float64 `mapstructure:"y"`
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

// ViewportConfig is the emulated browser viewport.
type ViewportConfig struct {
	Width  int     `mapstructure:"width"`
	Height int     `mapstructure:"height"`
	Scale  float64 `mapstructure:"scale"`
}

// EventsConfig governs the client event relay.
type EventsConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	IdleTimeoutMinutes int `mapstructure:"idle_timeout_minutes"`
}

// StorageConfig selects where debug artifacts go. When GCSBucket is set it
// wins over ArtifactsDir; both empty disables archival.
type StorageConfig struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for terminal-result notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROCESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("detect.title_strategy", detect.StrategyVisionFirst)
	v.SetDefault("detect.analyze_timeout_seconds", 120)
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scraper.nav_timeout_seconds", 25)
	v.SetDefault("scraper.toc_selector", "#toc")
	v.SetDefault("scraper.scroll_selector", ".overflow-scrolling")
	v.SetDefault("scraper.scroll_offset", 2200)
	v.SetDefault("scraper.vision_transcription", true)
	v.SetDefault("scraper.clip.x", 275)
	v.SetDefault("scraper.clip.y", 120)
	v.SetDefault("scraper.clip.width", 700)
	v.SetDefault("scraper.clip.height", 1000)
	v.SetDefault("scraper.viewport.width", 1000)
	v.SetDefault("scraper.viewport.height", 1200)
	v.SetDefault("scraper.viewport.scale", 0.73)
	v.SetDefault("events.buffer_size", 16)
	v.SetDefault("events.idle_timeout_minutes", 5)
	v.SetDefault("storage.prefix", "bookholmes")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Detect.TitleStrategy {
	case detect.StrategyVisionFirst, detect.StrategyVisionModel:
	default:
		return fmt.Errorf("detect.title_strategy must be %q or %q",
			detect.StrategyVisionFirst, detect.StrategyVisionModel)
	}
	if c.Detect.AnalyzeTimeoutSeconds <= 0 {
		return fmt.Errorf("detect.analyze_timeout_seconds must be > 0")
	}
	if c.Scraper.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.nav_timeout_seconds must be > 0")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be > 0")
	}
	if c.Events.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("events.idle_timeout_minutes must be > 0")
	}
	return nil
}

// HTTPTimeout returns the outbound HTTP client timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// AnalyzeTimeout returns the analyze request wall-clock budget.
func (c Config) AnalyzeTimeout() time.Duration {
	return time.Duration(c.Detect.AnalyzeTimeoutSeconds) * time.Second
}

// NavTimeout returns the per-navigation browser timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Scraper.NavTimeoutSeconds) * time.Second
}

// IdleTimeout returns the subscription idle window.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.Events.IdleTimeoutMinutes) * time.Minute
}
