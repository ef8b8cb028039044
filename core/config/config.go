package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// Debug makes the webhook echo outgoing payloads instead of sending them.
	Debug bool `yaml:"debug" envconfig:"BOT_DEBUG"`
}

// WebhookConfig specifies the HTTP listener serving webhook and admin routes.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig selects the session store backend.
type DatabaseConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// DirectoryConfig points at the temperature-taking directory.
type DirectoryConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"DIRECTORY_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"DIRECTORY_TIMEOUT_SECONDS"`
}

// FanoutConfig bounds mass delivery.
type FanoutConfig struct {
	Workers       int `yaml:"workers" envconfig:"FANOUT_WORKERS"`
	RatePerSec    int `yaml:"rate_per_sec" envconfig:"FANOUT_RATE_PER_SEC"`
	SendTimeoutMS int `yaml:"send_timeout_ms" envconfig:"FANOUT_SEND_TIMEOUT_MS"`
}

// ScheduleConfig drives the reminder and rollover jobs.
type ScheduleConfig struct {
	// Disabled turns off the in-process cron; triggers stay reachable over HTTP.
	Disabled       bool   `yaml:"disabled" envconfig:"SCHEDULE_DISABLED"`
	UTCOffsetHours int    `yaml:"utc_offset_hours" envconfig:"SCHEDULE_UTC_OFFSET_HOURS"`
	RemindSpec     string `yaml:"remind_spec" envconfig:"SCHEDULE_REMIND_SPEC"`
	RolloverSpec   string `yaml:"rollover_spec" envconfig:"SCHEDULE_ROLLOVER_SPEC"`
}

// StringsConfig selects the message catalog.
type StringsConfig struct {
	Locale string `yaml:"locale" envconfig:"STRINGS_LOCALE"`
	// Override is an optional YAML file merged over the embedded catalog.
	Override string `yaml:"override" envconfig:"STRINGS_OVERRIDE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const (
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateEdited identifies edited message updates for rate limit exclusions.
	UpdateEdited = "edited_message"
)

// RateLimitConfig holds settings for per-user rate limiting in long-poll mode.
// ExcludeUpdates accepts update types to bypass limiting:
// - "message": standard text messages
// - "edited_message": edits of earlier messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Directory DirectoryConfig `yaml:"directory"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Strings   StringsConfig   `yaml:"strings"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeWebhook
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	cfg.Webhook.URL = strings.TrimRight(strings.TrimSpace(cfg.Webhook.URL), "/")
	if cfg.Webhook.Port <= 0 {
		cfg.Webhook.Port = 8080
	}

	allowed := map[string]struct{}{
		UpdateMessage: {},
		UpdateEdited:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: message, edited_message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeDatabase(&cfg.Database); err != nil {
		return err
	}

	if cfg.Directory.BaseURL == "" {
		cfg.Directory.BaseURL = "https://temptaking.ado.sg"
	}
	cfg.Directory.BaseURL = strings.TrimRight(cfg.Directory.BaseURL, "/")
	if cfg.Directory.TimeoutSeconds <= 0 {
		cfg.Directory.TimeoutSeconds = 15
	}

	if cfg.Fanout.Workers <= 0 {
		cfg.Fanout.Workers = 100
	}
	if cfg.Fanout.RatePerSec < 0 {
		return fmt.Errorf("fanout.rate_per_sec must be >= 0")
	}
	if cfg.Fanout.RatePerSec == 0 {
		cfg.Fanout.RatePerSec = 25
	}
	if cfg.Fanout.SendTimeoutMS <= 0 {
		cfg.Fanout.SendTimeoutMS = 10000
	}

	if cfg.Schedule.UTCOffsetHours == 0 {
		cfg.Schedule.UTCOffsetHours = 8
	}
	if cfg.Schedule.UTCOffsetHours < -12 || cfg.Schedule.UTCOffsetHours > 14 {
		return fmt.Errorf("schedule.utc_offset_hours out of range: %d", cfg.Schedule.UTCOffsetHours)
	}
	if strings.TrimSpace(cfg.Schedule.RemindSpec) == "" {
		cfg.Schedule.RemindSpec = "1 * * * *"
	}
	if strings.TrimSpace(cfg.Schedule.RolloverSpec) == "" {
		cfg.Schedule.RolloverSpec = "0 0,12 * * *"
	}

	if strings.TrimSpace(cfg.Strings.Locale) == "" {
		cfg.Strings.Locale = "en"
	}
	return nil
}

func normalizeDatabase(db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		driver = DriverPostgres
	}
	switch driver {
	case DriverPostgres:
		if db.Host == "" || db.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	case DriverSQLite:
		if strings.TrimSpace(db.Path) == "" {
			db.Path = "thermobot.db"
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite, memory", db.Driver)
	}
	db.Driver = driver
	if db.MaxConnections <= 0 {
		db.MaxConnections = 10
	}
	return nil
}
