// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace" yaml:"marketplace"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Refresh     RefreshConfig     `mapstructure:"refresh" yaml:"refresh"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Screenshot  ScreenshotConfig  `mapstructure:"screenshot" yaml:"screenshot"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard" yaml:"dashboard"`
	// Settings overrides the built-in defaults of bot_settings keys that are
	// missing from the database.
	Settings map[string]string `mapstructure:"settings" yaml:"settings"`
}

// LoggerConfig defines all the settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color used for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig selects and locates the datastore backend.
type DatabaseConfig struct {
	// Driver is either "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// URL is the pgx connection string used by the postgres driver.
	URL string `mapstructure:"url" yaml:"url"`
	// Path is the database file used by the sqlite driver.
	Path string `mapstructure:"path" yaml:"path"`
}

// BrowserConfig controls the Chrome instance launched by chromedp.
type BrowserConfig struct {
	// Headless is the fallback when the headless_mode bot setting is absent.
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args         []string `mapstructure:"args" yaml:"args"`
	UserAgents   []string `mapstructure:"user_agents" yaml:"user_agents"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
}

// MarketplaceConfig holds the site entry points.
type MarketplaceConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	SellingURL string `mapstructure:"selling_url" yaml:"selling_url"`
}

// AuthConfig holds the account credentials and session cache settings.
type AuthConfig struct {
	Account       string        `mapstructure:"account" yaml:"account"`
	Secret        string        `mapstructure:"secret" yaml:"-"`
	CookieDir     string        `mapstructure:"cookie_dir" yaml:"cookie_dir"`
	SessionMaxAge time.Duration `mapstructure:"session_max_age" yaml:"session_max_age"`
	// ChallengeMarkers maps a challenge kind to URL or page text fragments
	// that identify it.
	ChallengeMarkers map[string][]string `mapstructure:"challenge_markers" yaml:"challenge_markers"`
}

// RefreshConfig tunes the per-listing edit/save pass.
type RefreshConfig struct {
	JitterMin     time.Duration `mapstructure:"jitter_min" yaml:"jitter_min"`
	JitterMax     time.Duration `mapstructure:"jitter_max" yaml:"jitter_max"`
	ClickAttempts int           `mapstructure:"click_attempts" yaml:"click_attempts"`
}

// SchedulerConfig tunes the continuous loop.
type SchedulerConfig struct {
	// Tick is the sub-interval at which the wait between cycles checks for stop.
	Tick     time.Duration `mapstructure:"tick" yaml:"tick"`
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// ScreenshotConfig controls where failure screenshots are written.
type ScreenshotConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DashboardConfig controls the HTTP status API.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	RateLimit      int      `mapstructure:"rate_limit" yaml:"rate_limit"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Credentials returns the configured account pair.
func (c *Config) Credentials() (account, secret string) {
	return c.Auth.Account, c.Auth.Secret
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "refresher")
	v.SetDefault("logger.log_file", "refresher.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "refresher.db")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})

	// -- Marketplace --
	v.SetDefault("marketplace.base_url", "https://facebook.com")
	v.SetDefault("marketplace.selling_url", "https://www.facebook.com/marketplace/you/selling")

	// -- Auth --
	v.SetDefault("auth.cookie_dir", "~/.refresher/cookies")
	v.SetDefault("auth.session_max_age", "24h")
	v.SetDefault("auth.challenge_markers", map[string][]string{
		"two_factor":       {"two_step_verification", "two-factor", "approvals_code"},
		"checkpoint":       {"/checkpoint"},
		"unusual_activity": {"unusual activity", "suspicious activity"},
	})

	// -- Refresh --
	v.SetDefault("refresh.jitter_min", "2s")
	v.SetDefault("refresh.jitter_max", "5s")
	v.SetDefault("refresh.click_attempts", 3)

	// -- Scheduler --
	v.SetDefault("scheduler.tick", "60s")
	v.SetDefault("scheduler.cooldown", "5m")

	// -- Screenshot --
	v.SetDefault("screenshot.dir", "screenshots")

	// -- Dashboard --
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.addr", "127.0.0.1:8088")
	v.SetDefault("dashboard.rate_limit", 60)
	v.SetDefault("dashboard.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Secrets are only ever read from the environment or the config file.
	_ = v.BindEnv("auth.account", "REFRESHER_AUTH_ACCOUNT")
	_ = v.BindEnv("auth.secret", "REFRESHER_AUTH_SECRET")
	_ = v.BindEnv("database.url", "REFRESHER_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = os.Getenv("REFRESHER_AUTH_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the bot cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres (got %q)", c.Database.Driver)
	}
	if c.Marketplace.BaseURL == "" || c.Marketplace.SellingURL == "" {
		return fmt.Errorf("marketplace.base_url and marketplace.selling_url are required")
	}
	if c.Refresh.JitterMin < 0 || c.Refresh.JitterMax < c.Refresh.JitterMin {
		return fmt.Errorf("refresh.jitter_max must be greater than or equal to refresh.jitter_min")
	}
	if c.Refresh.ClickAttempts <= 0 {
		return fmt.Errorf("refresh.click_attempts must be a positive integer")
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be a positive duration")
	}
	if c.Scheduler.Cooldown < 0 {
		return fmt.Errorf("scheduler.cooldown must not be negative")
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when the dashboard is enabled")
	}
	return nil
}
