package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ath-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Notification NotificationConfig `mapstructure:"notification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the trigger HTTP surface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	TriggerSecret   string        `mapstructure:"trigger_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for subscriber lookups.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig covers the snapshot/cooldown/log store.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

// FeedConfig captures price feed connectivity and resilience settings.
type FeedConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKeys         []string      `mapstructure:"api_keys"`
	VsCurrency      string        `mapstructure:"vs_currency"`
	PageSize        int           `mapstructure:"page_size"`
	Pages           int           `mapstructure:"pages"`
	MinCallInterval time.Duration `mapstructure:"min_call_interval"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the feed circuit breaker.
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// DetectionConfig tunes ATH reconciliation.
type DetectionConfig struct {
	MaxATHRatio float64 `mapstructure:"max_ath_ratio"`
}

// NotificationConfig defines dispatch gating and mail delivery.
type NotificationConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Mailer   MailerConfig  `mapstructure:"mailer"`
}

// MailerConfig captures the outbound mail API.
type MailerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	FromAddress    string        `mapstructure:"from_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig governs the in-process run mode.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ATHWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "athwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen_addr", ":8085")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.op_timeout", "3s")

	v.SetDefault("feed.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("feed.vs_currency", "usd")
	v.SetDefault("feed.page_size", 100)
	v.SetDefault("feed.pages", 1)
	v.SetDefault("feed.min_call_interval", "2s")
	v.SetDefault("feed.cache_ttl", "45s")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "athwatcher/1.0")
	v.SetDefault("feed.breaker.max_failures", 3)
	v.SetDefault("feed.breaker.cooldown", "5m")

	v.SetDefault("detection.max_ath_ratio", 10.0)

	v.SetDefault("notification.cooldown", "5m")
	v.SetDefault("notification.mailer.enabled", false)
	v.SetDefault("notification.mailer.request_timeout", "10s")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Feed.PageSize <= 0 || c.Feed.PageSize > 250 {
		return fmt.Errorf("feed.page_size must be between 1 and 250")
	}
	if c.Feed.Pages <= 0 {
		return fmt.Errorf("feed.pages must be greater than zero")
	}
	if c.Feed.Breaker.MaxFailures <= 0 {
		return fmt.Errorf("feed.breaker.max_failures must be greater than zero")
	}
	if c.Feed.Breaker.Cooldown <= 0 {
		return fmt.Errorf("feed.breaker.cooldown must be greater than zero")
	}
	if c.Detection.MaxATHRatio <= 1 {
		return fmt.Errorf("detection.max_ath_ratio must be greater than one")
	}
	if c.Notification.Cooldown <= 0 {
		return fmt.Errorf("notification.cooldown must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notification.Mailer.Enabled {
		if c.Notification.Mailer.APIKey == "" {
			return fmt.Errorf("notification.mailer.api_key is required when the mailer is enabled")
		}
		if c.Notification.Mailer.FromAddress == "" {
			return fmt.Errorf("notification.mailer.from_address is required when the mailer is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
