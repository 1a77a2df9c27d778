package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"listing-radar/internal/logging"
	"listing-radar/internal/scoring"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	API       APIConfig       `mapstructure:"api"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the listing store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// SchedulerConfig governs the maintenance sweep cadence. Cron, when set,
// takes precedence over Interval.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EngineConfig feeds the scoring engine.
type EngineConfig struct {
	TaxonomyPath     string              `mapstructure:"taxonomy_path"`
	BaseCurrency     string              `mapstructure:"base_currency"`
	CurrencyRates    map[string]float64  `mapstructure:"currency_rates"`
	MinClusterSample int                 `mapstructure:"min_cluster_sample"`
	MinSample        int                 `mapstructure:"min_sample"`
	StaleAfter       time.Duration       `mapstructure:"stale_after"`
	Calibration      scoring.Calibration `mapstructure:"calibration"`
}

// IngestConfig covers observation sources.
type IngestConfig struct {
	QueueSize int         `mapstructure:"queue_size"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig describes the observation topic consumer.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// APIConfig describes the dashboard HTTP server.
type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

// AlertingConfig defines notification routing and throttling.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Cooldown      time.Duration  `mapstructure:"cooldown"`
	RatePerMinute int            `mapstructure:"rate_per_minute"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	Retention     time.Duration  `mapstructure:"retention"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
	Discord       DiscordConfig  `mapstructure:"discord"`
	NATS          NATSConfig     `mapstructure:"nats"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig describes the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// NATSConfig describes the decision bus.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// a missing .env is the common case
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RADAR")
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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "listingradar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:listingradar.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6c726164))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("engine.taxonomy_path", "")
	v.SetDefault("engine.base_currency", "TRY")
	v.SetDefault("engine.currency_rates", map[string]float64{"USD": 34.5})
	v.SetDefault("engine.min_cluster_sample", 10)
	v.SetDefault("engine.min_sample", 5)
	v.SetDefault("engine.stale_after", "72h")
	setCalibrationDefaults(v, scoring.DefaultCalibration())

	v.SetDefault("ingest.queue_size", 256)
	v.SetDefault("ingest.kafka.enabled", false)
	v.SetDefault("ingest.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("ingest.kafka.topic", "listing-observations")
	v.SetDefault("ingest.kafka.group_id", "listingradar")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "10s")
	v.SetDefault("api.default_limit", 50)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.rate_per_minute", 20)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.retention", "720h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.nats.enabled", false)
	v.SetDefault("alerting.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("alerting.nats.subject", "listings.decisions")

	v.SetDefault("export.max_data_points", 5000)
}

func setCalibrationDefaults(v *viper.Viper, cal scoring.Calibration) {
	defaults := map[string]any{}
	if err := mapstructure.Decode(cal, &defaults); err != nil {
		panic(fmt.Sprintf("encode calibration defaults: %v", err))
	}
	for key, value := range defaults {
		v.SetDefault("engine.calibration."+key, value)
	}
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
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero when scheduler.cron is empty")
	}
	if c.Engine.BaseCurrency == "" {
		return fmt.Errorf("engine.base_currency must be set")
	}
	for code, rate := range c.Engine.CurrencyRates {
		if rate <= 0 {
			return fmt.Errorf("engine.currency_rates.%s must be positive", code)
		}
	}
	if c.Engine.MinSample < 2 {
		return fmt.Errorf("engine.min_sample must be at least 2")
	}
	if c.Engine.MinClusterSample < c.Engine.MinSample {
		return fmt.Errorf("engine.min_cluster_sample cannot be below engine.min_sample")
	}
	if err := c.Engine.Calibration.Validate(); err != nil {
		return fmt.Errorf("engine.calibration: %w", err)
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be greater than zero")
	}
	if c.Ingest.Kafka.Enabled {
		if len(c.Ingest.Kafka.Brokers) == 0 || c.Ingest.Kafka.Topic == "" {
			return fmt.Errorf("ingest.kafka requires brokers and topic")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.RatePerMinute < 0 {
		return fmt.Errorf("alerting.rate_per_minute cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url must be set")
	}
	if c.Alerting.NATS.Enabled && (c.Alerting.NATS.URL == "" || c.Alerting.NATS.Subject == "") {
		return fmt.Errorf("alerting.nats requires url and subject")
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
