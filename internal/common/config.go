package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Account    AccountConfig     `toml:"account"`
	Target     TargetConfig      `toml:"target"`
	Browser    BrowserConfig     `toml:"browser"`
	Tasks      TasksConfig       `toml:"tasks"`
	Session    SessionConfig     `toml:"session"`
	Extraction ExtractionConfig  `toml:"extraction"`
	Reporter   ReporterConfig    `toml:"reporter"`
	Captcha    CaptchaConfig     `toml:"captcha"`
	Storage    StorageConfig     `toml:"storage"`
	Logging    LoggingConfig     `toml:"logging"`
	Schedule   ScheduleConfig    `toml:"schedule"`
	Selectors  Selectors         `toml:"selectors"` // Symbolic selector name -> CSS selector, attribute or class name
}

// AccountConfig holds the CRM credentials
type AccountConfig struct {
	Login     string `toml:"login" validate:"required"`
	Password  string `toml:"password" validate:"required"`
	Subdomain string `toml:"subdomain" validate:"required"` // {subdomain}.{domain}
}

// TargetConfig describes where the CRM lives
type TargetConfig struct {
	Protocol string `toml:"protocol" validate:"oneof=http https"`
	Domain   string `toml:"domain" validate:"required"`
}

// BrowserConfig contains configuration for the headless browser
type BrowserConfig struct {
	Headless           bool     `toml:"headless"`
	UserAgent          string   `toml:"user_agent"`
	ExecPath           string   `toml:"exec_path"`           // Empty = chromedp lookup
	MaxConcurrency     int      `toml:"max_concurrency"`     // Process-wide live browser contexts
	NavigationInterval string   `toml:"navigation_interval"` // Minimum spacing between navigations to the target
	SettleDelay        string   `toml:"settle_delay"`        // Pause after navigation before checking auth
	ExtraFlags         []string `toml:"extra_flags"`
}

// TasksConfig controls per-task deadlines and retries
type TasksConfig struct {
	Timeout         string `toml:"timeout"`          // Per attempt
	RetryLimit      int    `toml:"retry_limit"`      // Retries after the first attempt
	RetryDelay      string `toml:"retry_delay"`
	ResultRetention string `toml:"result_retention"` // How long an uncollected result stays available to Wait
}

// SessionConfig controls cookie persistence and the login flow
type SessionConfig struct {
	SaveSession  bool   `toml:"save_session"`
	CookiesPath  string `toml:"cookies_path"`
	TypeDelay    string `toml:"type_delay"`    // Per-key delay when filling login fields
	LoadTimeout  string `toml:"load_timeout"`  // Bound on waiting for the next document load
	ReadyTimeout string `toml:"ready_timeout"` // Bound on waiting for the feeds container
}

// ExtractionConfig controls page preparation and date normalisation
type ExtractionConfig struct {
	PollInterval        string `toml:"poll_interval"`
	ClickDelay          string `toml:"click_delay"`
	ScrollMaxIterations int    `toml:"scroll_max_iterations"`
	ExpandMaxIterations int    `toml:"expand_max_iterations"`
	TodayToken          string `toml:"today_token"`
	YesterdayToken      string `toml:"yesterday_token"`
	Timezone            string `toml:"timezone"`
	MessageTypeDelay    string `toml:"message_type_delay"` // Per-key delay when typing an outgoing message
	SendSettleDelay     string `toml:"send_settle_delay"`
}

// ReporterConfig contains the result callback endpoint
type ReporterConfig struct {
	Endpoint string `toml:"endpoint"` // Empty disables reporting
	Timeout  string `toml:"timeout"`
}

// CaptchaConfig contains the challenge solver settings
type CaptchaConfig struct {
	Enabled      bool   `toml:"enabled"`
	Provider     string `toml:"provider"`
	Token        string `toml:"token"`
	BaseURL      string `toml:"base_url"`
	PollInterval string `toml:"poll_interval"`
	Timeout      string `toml:"timeout"`
}

// StorageConfig contains storage backends
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig contains BadgerDB-specific configuration
type BadgerConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// ScheduleConfig holds periodic fetch definitions
type ScheduleConfig struct {
	Watch []WatchConfig `toml:"watch" validate:"dive"`
}

// WatchConfig fetches the listed leads on a cron schedule
type WatchConfig struct {
	Name    string   `toml:"name"`
	Cron    string   `toml:"cron" validate:"required"`
	LeadIDs []string `toml:"lead_ids" validate:"min=1"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Protocol: "https",
			Domain:   "amocrm.ru",
		},
		Browser: BrowserConfig{
			Headless:           true,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxConcurrency:     2,
			NavigationInterval: "1s",
			SettleDelay:        "3s",
		},
		Tasks: TasksConfig{
			Timeout:         "1h",
			RetryLimit:      3,
			RetryDelay:      "5s",
			ResultRetention: "10m",
		},
		Session: SessionConfig{
			SaveSession:  true,
			CookiesPath:  "./data/cookies.json",
			TypeDelay:    "120ms",
			LoadTimeout:  "60s",
			ReadyTimeout: "60s",
		},
		Extraction: ExtractionConfig{
			PollInterval:        "1s",
			ClickDelay:          "1s",
			ScrollMaxIterations: 300,
			ExpandMaxIterations: 100,
			TodayToken:          "Сегодня",
			YesterdayToken:      "Вчера",
			Timezone:            "Europe/Moscow",
			MessageTypeDelay:    "10ms",
			SendSettleDelay:     "5s",
		},
		Reporter: ReporterConfig{
			Timeout: "30s",
		},
		Captcha: CaptchaConfig{
			Provider:     "2captcha",
			BaseURL:      "https://2captcha.com",
			PollInterval: "5s",
			Timeout:      "3m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/tasks",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Selectors: DefaultSelectors(),
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. Selector tables are merged key by key.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Keep defaults for selectors the file does not mention
		defaults := config.Selectors
		config.Selectors = nil

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}

		config.Selectors = mergeSelectors(defaults, config.Selectors)
	}

	applyEnvOverrides(config)

	return config, nil
}

func mergeSelectors(base, override Selectors) Selectors {
	merged := make(Selectors, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Account
	if login := os.Getenv("LEADHARVEST_LOGIN"); login != "" {
		config.Account.Login = login
	}
	if password := os.Getenv("LEADHARVEST_PASSWORD"); password != "" {
		config.Account.Password = password
	}
	if subdomain := os.Getenv("LEADHARVEST_SUBDOMAIN"); subdomain != "" {
		config.Account.Subdomain = subdomain
	}

	// Target
	if domain := os.Getenv("LEADHARVEST_DOMAIN"); domain != "" {
		config.Target.Domain = domain
	}
	if protocol := os.Getenv("LEADHARVEST_PROTOCOL"); protocol != "" {
		config.Target.Protocol = protocol
	}

	// Browser
	if headless := os.Getenv("LEADHARVEST_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if maxConcurrency := os.Getenv("LEADHARVEST_BROWSER_MAX_CONCURRENCY"); maxConcurrency != "" {
		if mc, err := strconv.Atoi(maxConcurrency); err == nil {
			config.Browser.MaxConcurrency = mc
		}
	}
	if execPath := os.Getenv("LEADHARVEST_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	// Tasks
	if timeout := os.Getenv("LEADHARVEST_TASK_TIMEOUT"); timeout != "" {
		config.Tasks.Timeout = timeout
	}
	if retryLimit := os.Getenv("LEADHARVEST_TASK_RETRY_LIMIT"); retryLimit != "" {
		if rl, err := strconv.Atoi(retryLimit); err == nil {
			config.Tasks.RetryLimit = rl
		}
	}

	// Session
	if cookiesPath := os.Getenv("LEADHARVEST_COOKIES_PATH"); cookiesPath != "" {
		config.Session.CookiesPath = cookiesPath
	}

	// Reporter
	if endpoint := os.Getenv("LEADHARVEST_REPORTER_ENDPOINT"); endpoint != "" {
		config.Reporter.Endpoint = endpoint
	}

	// Captcha
	if token := os.Getenv("LEADHARVEST_CAPTCHA_TOKEN"); token != "" {
		config.Captcha.Token = token
		config.Captcha.Enabled = true
	}

	// Storage
	if badgerPath := os.Getenv("LEADHARVEST_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("LEADHARVEST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LEADHARVEST_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, logLevel string, headless *bool) {
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if headless != nil {
		config.Browser.Headless = *headless
	}
}

// Validate checks required settings and that every duration and cron expression parses
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"browser.navigation_interval":   c.Browser.NavigationInterval,
		"browser.settle_delay":          c.Browser.SettleDelay,
		"tasks.timeout":                 c.Tasks.Timeout,
		"tasks.retry_delay":             c.Tasks.RetryDelay,
		"tasks.result_retention":        c.Tasks.ResultRetention,
		"session.type_delay":            c.Session.TypeDelay,
		"session.load_timeout":          c.Session.LoadTimeout,
		"session.ready_timeout":         c.Session.ReadyTimeout,
		"extraction.poll_interval":      c.Extraction.PollInterval,
		"extraction.click_delay":        c.Extraction.ClickDelay,
		"extraction.message_type_delay": c.Extraction.MessageTypeDelay,
		"extraction.send_settle_delay":  c.Extraction.SendSettleDelay,
		"reporter.timeout":              c.Reporter.Timeout,
		"captcha.poll_interval":         c.Captcha.PollInterval,
		"captcha.timeout":               c.Captcha.Timeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
	}

	if c.Browser.MaxConcurrency < 1 {
		return fmt.Errorf("browser.max_concurrency must be at least 1, got %d", c.Browser.MaxConcurrency)
	}

	if _, err := time.LoadLocation(c.Extraction.Timezone); err != nil {
		return fmt.Errorf("invalid extraction.timezone %q: %w", c.Extraction.Timezone, err)
	}

	if c.Captcha.Enabled && c.Captcha.Token == "" {
		return fmt.Errorf("captcha.token is required when captcha is enabled")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, watch := range c.Schedule.Watch {
		if _, err := parser.Parse(watch.Cron); err != nil {
			return fmt.Errorf("invalid cron expression for watch %q: %w", watch.Name, err)
		}
	}

	return nil
}

// BaseURL returns the account root, e.g. https://acme.amocrm.ru
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s.%s", c.Target.Protocol, c.Account.Subdomain, c.Target.Domain)
}

// LeadURL returns the lead card address for a record id
func (c *Config) LeadURL(leadID string) string {
	return fmt.Sprintf("%s/leads/detail/%s", c.BaseURL(), leadID)
}

// Location returns the timezone used to interpret feed dates
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Extraction.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Duration parses a duration setting, returning fallback when empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
