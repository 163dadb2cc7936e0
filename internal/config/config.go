package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	History    HistoryConfig    `mapstructure:"history"`
	Admins     []int64          `mapstructure:"admins"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Users      UsersConfig      `mapstructure:"users"`
	FileCache  FileCacheConfig  `mapstructure:"file_cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Broadcast  BroadcastConfig  `mapstructure:"broadcast"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

// ProviderConfig describes the streaming completion endpoint
type ProviderConfig struct {
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Referer     string        `mapstructure:"referer"`
	Title       string        `mapstructure:"title"`
}

type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

// StreamConfig tunes progressive message editing
type StreamConfig struct {
	MinChars      int           `mapstructure:"min_chars"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	Markdown      bool          `mapstructure:"markdown"`
}

type StorageConfig struct {
	Type        string        `mapstructure:"type"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Memory      MemoryConfig  `mapstructure:"memory"`
	PurchaseTTL time.Duration `mapstructure:"purchase_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type UsersConfig struct {
	File string `mapstructure:"file"`
}

type FileCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type BroadcastConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

type PaymentConfig struct {
	Details string `mapstructure:"details"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// SchedulerConfig holds cron specs for background jobs. An empty spec disables the job.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CleanupSpec string `mapstructure:"cleanup_spec"`
	StatsSpec   string `mapstructure:"stats_spec"`
}

// setDefaults mirrors the constants the bot was originally tuned with
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.update_timeout", 60)
	v.SetDefault("provider.model", "qwen/qwen2.5-vl-3b-instruct:free")
	v.SetDefault("provider.temperature", 0.3)
	v.SetDefault("provider.max_tokens", 2048)
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.title", "Telegram Bot")
	v.SetDefault("history.limit", 10)
	v.SetDefault("stream.min_chars", 40)
	v.SetDefault("stream.min_interval", 4*time.Second)
	v.SetDefault("stream.frame_interval", 600*time.Millisecond)
	v.SetDefault("stream.markdown", true)
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)
	v.SetDefault("storage.purchase_ttl", 72*time.Hour)
	v.SetDefault("users.file", "users.json")
	v.SetDefault("file_cache.enabled", true)
	v.SetDefault("file_cache.ttl", 30*time.Minute)
	v.SetDefault("file_cache.max_size", 1000)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("broadcast.delay", 100*time.Millisecond)
	v.SetDefault("payment.details", "Для оплаты переведите сумму по реквизитам СБП:\nНомер телефона: +79991234567")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")
	v.SetDefault("i18n.default_language", "ru")
	v.SetDefault("i18n.languages", []string{"ru", "en"})
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cleanup_spec", "@every 1h")
	v.SetDefault("scheduler.stats_spec", "")
}

// LoadConfig loads configuration from file and environment variables.
// An empty path skips the file and relies on defaults and the environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.BindEnv("bot.token", "BOT_TOKEN")
	v.BindEnv("provider.url", "PROVIDER_URL")
	v.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	v.BindEnv("provider.model", "PROVIDER_MODEL")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("users.file", "USERS_FILE")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := v.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := v.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if adminIDs := v.GetString("ADMIN_IDS"); adminIDs != "" {
		ids, err := ParseIDList(adminIDs)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
		}
		config.Admins = ids
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ParseIDList parses a comma separated list of numeric ids
func ParseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Provider.URL == "" {
		return fmt.Errorf("provider url is required")
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider api key is required")
	}
	if len(cfg.Admins) == 0 {
		return fmt.Errorf("at least one admin id is required")
	}
	if cfg.History.Limit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}
	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	switch cfg.Storage.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}
