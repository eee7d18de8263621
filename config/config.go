package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig
	Gemini GeminiConfig
	Cache  CacheConfig
	Quota  QuotaConfig
	COA    COAConfig
	Agent  AgentConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// GeminiConfig holds generation backend configuration. Tier1 serves the
// bulk of insight traffic; Tier2 is the fallback and the COA-only model.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Tier1Model string        `mapstructure:"tier1_model"`
	Tier2Model string        `mapstructure:"tier2_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds both cache TTLs. The shared server cache stays much
// fresher than the per-installation client cache.
type CacheConfig struct {
	ServerTTL time.Duration `mapstructure:"server_ttl"`
	ClientTTL time.Duration `mapstructure:"client_ttl"`
}

// QuotaConfig holds the per-installation daily ceilings.
type QuotaConfig struct {
	InsightDaily int `mapstructure:"insight_daily"`
	COADaily     int `mapstructure:"coa_daily"`
}

// COAConfig bounds lab-report document fetches.
type COAConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	MaxTextChars int           `mapstructure:"max_text_chars"`
}

// AgentConfig holds local companion settings.
type AgentConfig struct {
	DataDir     string        `mapstructure:"data_dir"`
	ServerURL   string        `mapstructure:"server_url"`
	RelayAddr   string        `mapstructure:"relay_addr"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	WatchWindow time.Duration `mapstructure:"watch_window"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kushscan/")

	// Environment variable settings
	v.SetEnvPrefix("KUSHSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})

	// Gemini defaults
	v.SetDefault("gemini.tier1_model", "gemini-2.0-flash")
	v.SetDefault("gemini.tier2_model", "gemini-2.5-pro")
	v.SetDefault("gemini.timeout", "45s")

	// Cache defaults
	v.SetDefault("cache.server_ttl", "24h")
	v.SetDefault("cache.client_ttl", "168h") // 7 days

	// Quota defaults
	v.SetDefault("quota.insight_daily", 50)
	v.SetDefault("quota.coa_daily", 10)

	// COA fetch defaults
	v.SetDefault("coa.fetch_timeout", "10s")
	v.SetDefault("coa.max_body_bytes", 2<<20) // 2 MiB
	v.SetDefault("coa.max_text_chars", 15000)

	// Agent defaults
	v.SetDefault("agent.data_dir", "")
	v.SetDefault("agent.server_url", "http://localhost:8080")
	v.SetDefault("agent.relay_addr", "127.0.0.1:7381")
	v.SetDefault("agent.settle_delay", "1500ms")
	v.SetDefault("agent.watch_window", "15s")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Gemini.APIKey == "" {
		return fmt.Errorf("Gemini API key is required (set KUSHSCAN_GEMINI_API_KEY)")
	}

	if config.Quota.InsightDaily <= 0 || config.Quota.COADaily <= 0 {
		return fmt.Errorf("quota ceilings must be positive, got insight=%d coa=%d",
			config.Quota.InsightDaily, config.Quota.COADaily)
	}

	if config.Cache.ServerTTL <= 0 || config.Cache.ClientTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	return nil
}
