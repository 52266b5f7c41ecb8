package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Chat       ChatConfig       `yaml:"chat"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the tracking database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LedgerConfig describes the timesheet workbook and its hand-authored header.
type LedgerConfig struct {
	Path                   string        `yaml:"path"`
	Sheet                  string        `yaml:"sheet"`
	NameColumn             int           `yaml:"name_column"`
	HeaderScanRows         int           `yaml:"header_scan_rows"`
	Timezone               string        `yaml:"timezone"`
	MonthLabels            []string      `yaml:"month_labels"`
	LocatorCacheTTLSeconds int           `yaml:"locator_cache_ttl_seconds"`
	LocatorCacheTTL        time.Duration `yaml:"-"`
}

// TrackingConfig holds the geo ingestion filter thresholds and retention policy.
type TrackingConfig struct {
	MaxAccuracyMeters      float64       `yaml:"max_accuracy_meters"`
	MaxJumpSpeedKmh        float64       `yaml:"max_jump_speed_kmh"`
	RetentionDays          int           `yaml:"retention_days"`
	CleanupIntervalMinutes int           `yaml:"cleanup_interval_minutes"`
	CleanupInterval        time.Duration `yaml:"-"`
}

// ChatConfig holds the outbound chat bot settings.
type ChatConfig struct {
	APIBase        string        `yaml:"api_base"`
	BotToken       string        `yaml:"bot_token"`
	GroupChatID    int64         `yaml:"group_chat_id"`
	AdminChatID    int64         `yaml:"admin_chat_id"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the push notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// defaultMonthLabels matches the genitive month names used in the hand-authored
// timesheet header. Overridable per deployment.
var defaultMonthLabels = []string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "live_tracking.db"
	}

	if cfg.Ledger.Sheet == "" {
		cfg.Ledger.Sheet = "Sheet1"
	}
	if cfg.Ledger.NameColumn <= 0 {
		cfg.Ledger.NameColumn = 1
	}
	if cfg.Ledger.HeaderScanRows <= 0 {
		cfg.Ledger.HeaderScanRows = 6
	}
	if cfg.Ledger.Timezone == "" {
		cfg.Ledger.Timezone = "Europe/Moscow"
	}
	if len(cfg.Ledger.MonthLabels) == 0 {
		cfg.Ledger.MonthLabels = defaultMonthLabels
	}
	if cfg.Ledger.LocatorCacheTTLSeconds <= 0 {
		cfg.Ledger.LocatorCacheTTLSeconds = 60
	}
	cfg.Ledger.LocatorCacheTTL = time.Duration(cfg.Ledger.LocatorCacheTTLSeconds) * time.Second

	if cfg.Tracking.MaxAccuracyMeters <= 0 {
		cfg.Tracking.MaxAccuracyMeters = 200
	}
	if cfg.Tracking.MaxJumpSpeedKmh <= 0 {
		cfg.Tracking.MaxJumpSpeedKmh = 150
	}
	if cfg.Tracking.RetentionDays <= 0 {
		cfg.Tracking.RetentionDays = 30
	}
	if cfg.Tracking.CleanupIntervalMinutes <= 0 {
		cfg.Tracking.CleanupIntervalMinutes = 360
	}
	cfg.Tracking.CleanupInterval = time.Duration(cfg.Tracking.CleanupIntervalMinutes) * time.Minute

	if cfg.Chat.TimeoutSeconds <= 0 {
		cfg.Chat.TimeoutSeconds = 25
	}
	cfg.Chat.Timeout = time.Duration(cfg.Chat.TimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
