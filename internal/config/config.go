// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Target() TargetConfig
	Browser() BrowserConfig
	Poll() PollConfig
	Locators() map[string][]LocatorCandidate
	Fixture() FixtureConfig
	API() APIConfig
	Engine() EngineConfig
	Report() ReportConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetTargetBaseURL(string)
	SetEngineActorConcurrency(int)
	SetFixturePath(string)

	Validate() error
}

// Config holds the entire application configuration.
// Sections are exported for viper's decoder; callers read them through the Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig                  `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig                `mapstructure:"database" yaml:"database"`
	TargetCfg   TargetConfig                  `mapstructure:"target" yaml:"target"`
	BrowserCfg  BrowserConfig                 `mapstructure:"browser" yaml:"browser"`
	PollCfg     PollConfig                    `mapstructure:"poll" yaml:"poll"`
	LocatorsCfg map[string][]LocatorCandidate `mapstructure:"locators" yaml:"locators"`
	FixtureCfg  FixtureConfig                 `mapstructure:"fixture" yaml:"fixture"`
	APICfg      APIConfig                     `mapstructure:"api" yaml:"api"`
	EngineCfg   EngineConfig                  `mapstructure:"engine" yaml:"engine"`
	ReportCfg   ReportConfig                  `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig                     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig                 { return c.DatabaseCfg }
func (c *Config) Target() TargetConfig                     { return c.TargetCfg }
func (c *Config) Browser() BrowserConfig                   { return c.BrowserCfg }
func (c *Config) Poll() PollConfig                         { return c.PollCfg }
func (c *Config) Locators() map[string][]LocatorCandidate { return c.LocatorsCfg }
func (c *Config) Fixture() FixtureConfig                   { return c.FixtureCfg }
func (c *Config) API() APIConfig                           { return c.APICfg }
func (c *Config) Engine() EngineConfig                     { return c.EngineCfg }
func (c *Config) Report() ReportConfig                     { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)       { c.BrowserCfg.Headless = b }
func (c *Config) SetTargetBaseURL(u string)       { c.TargetCfg.BaseURL = u }
func (c *Config) SetEngineActorConcurrency(n int) { c.EngineCfg.ActorConcurrency = n }
func (c *Config) SetFixturePath(p string)         { c.FixtureCfg.Path = p }

// -- Section Structs --

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the optional verdict history database. An empty URL disables it.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// TargetConfig points the run at the application under test.
type TargetConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIBaseURL defaults to BaseURL when empty.
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
}

// API returns the base URL used for HTTP API calls.
func (t TargetConfig) API() string {
	if t.APIBaseURL != "" {
		return t.APIBaseURL
	}
	return t.BaseURL
}

// BrowserConfig holds settings for the browser instances backing interactive sessions.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout   time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	CloseTimeout    time.Duration  `mapstructure:"close_timeout" yaml:"close_timeout"`
	ScreenshotDir   string         `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
}

// PollProfile is one named interval/timeout pair for resilient queries.
type PollProfile struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PollConfig holds the named poll profiles. Unknown profile names fall back to Default.
type PollConfig struct {
	Default    PollProfile            `mapstructure:"default" yaml:"default"`
	Profiles   map[string]PollProfile `mapstructure:"profiles" yaml:"profiles"`
	MaxRetries int                    `mapstructure:"max_retries" yaml:"max_retries"`
}

// Profile looks up a named profile.
func (p PollConfig) Profile(name string) PollProfile {
	if prof, ok := p.Profiles[name]; ok && prof.Timeout > 0 && prof.Interval > 0 {
		return prof
	}
	return p.Default
}

// LocatorCandidate overrides one candidate of a catalog locator.
type LocatorCandidate struct {
	Selector string        `mapstructure:"selector" yaml:"selector"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Visible  *bool         `mapstructure:"visible" yaml:"visible"`
}

// FixtureConfig locates the persisted credentials fixture.
type FixtureConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// PicturePath is the upload used by the practice form journey.
	PicturePath string `mapstructure:"picture_path" yaml:"picture_path"`
}

// APIConfig tunes the HTTP client used for API sessions.
type APIConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int           `mapstructure:"burst" yaml:"burst"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// EngineConfig configures actor scheduling.
type EngineConfig struct {
	ActorConcurrency int           `mapstructure:"actor_concurrency" yaml:"actor_concurrency"`
	TaskTimeout      time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	FeaturesPath     string        `mapstructure:"features_path" yaml:"features_path"`
	Tags             string        `mapstructure:"tags" yaml:"tags"`
	Format           string        `mapstructure:"format" yaml:"format"`
}

// ReportConfig controls the artifacts written after a run.
type ReportConfig struct {
	JUnitPath       string `mapstructure:"junit_path" yaml:"junit_path"`
	JSONPath        string `mapstructure:"json_path" yaml:"json_path"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "demoqa-e2e")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Target --
	v.SetDefault("target.base_url", "https://demoqa.com")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.close_timeout", "10s")
	v.SetDefault("browser.screenshot_dir", "artifacts/screenshots")
	v.SetDefault("browser.debug", false)

	// -- Poll --
	v.SetDefault("poll.default.interval", "200ms")
	v.SetDefault("poll.default.timeout", "10s")
	v.SetDefault("poll.profiles.modal.interval", "300ms")
	v.SetDefault("poll.profiles.modal.timeout", "7s")
	v.SetDefault("poll.profiles.reorder.interval", "100ms")
	v.SetDefault("poll.profiles.reorder.timeout", "3s")
	v.SetDefault("poll.profiles.profile.interval", "250ms")
	v.SetDefault("poll.profiles.profile.timeout", "5s")
	v.SetDefault("poll.profiles.login_error.interval", "250ms")
	v.SetDefault("poll.profiles.login_error.timeout", "3s")
	v.SetDefault("poll.max_retries", 10)

	// -- Fixture --
	v.SetDefault("fixture.path", "tests/support/data.json")
	v.SetDefault("fixture.picture_path", "fixtures/test-image.png")

	// -- API --
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("api.user_agent", "demoqa-e2e/1.0")

	// -- Engine --
	v.SetDefault("engine.actor_concurrency", 4)
	v.SetDefault("engine.task_timeout", "60s")
	v.SetDefault("engine.features_path", "")
	v.SetDefault("engine.tags", "")
	v.SetDefault("engine.format", "pretty")

	// -- Report --
	v.SetDefault("report.junit_path", "")
	v.SetDefault("report.json_path", "")
	v.SetDefault("report.metrics_textfile", "")
}

// NewConfigFromViper unmarshals and validates a configuration from a populated viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "E2E_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.TargetCfg.BaseURL); err != nil {
		return fmt.Errorf("target.base_url must be an absolute URL: %w", err)
	}
	if c.EngineCfg.ActorConcurrency <= 0 {
		return fmt.Errorf("engine.actor_concurrency must be a positive integer")
	}
	if c.EngineCfg.TaskTimeout <= 0 {
		return fmt.Errorf("engine.task_timeout must be a positive duration")
	}
	if c.PollCfg.Default.Interval <= 0 || c.PollCfg.Default.Timeout <= 0 {
		return fmt.Errorf("poll.default interval and timeout must be positive durations")
	}
	if c.PollCfg.Default.Interval > c.PollCfg.Default.Timeout {
		return fmt.Errorf("poll.default.interval must not exceed poll.default.timeout")
	}
	if c.FixtureCfg.Path == "" {
		return fmt.Errorf("fixture.path is a required configuration field")
	}
	if c.APICfg.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	for field, cands := range c.LocatorsCfg {
		for i, cand := range cands {
			if cand.Selector == "" {
				return fmt.Errorf("locators.%s[%d].selector must not be empty", field, i)
			}
		}
	}
	return nil
}
