package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"price-track-alerts/internal/logging"
	"price-track-alerts/internal/tokens"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Swap      SwapConfig      `mapstructure:"swap"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ServerConfig governs the HTTP API listener.
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig governs the periodic loops.
type SchedulerConfig struct {
	IngestInterval  time.Duration `mapstructure:"ingest_interval"`
	AlertInterval   time.Duration `mapstructure:"alert_interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// OracleConfig selects and parameterises the price source.
type OracleConfig struct {
	// Provider is "moralis" (HTTP API) or "feed" (on-chain aggregator).
	Provider string        `mapstructure:"provider"`
	Moralis  MoralisConfig `mapstructure:"moralis"`
	Feed     FeedConfig    `mapstructure:"feed"`
}

// MoralisConfig captures Moralis API connectivity.
type MoralisConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FeedConfig covers on-chain data access.
type FeedConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TokensConfig overrides the built-in tracked token registry.
type TokensConfig struct {
	Definitions []tokens.Token `mapstructure:"definitions"`
	Tracked     []string       `mapstructure:"tracked"`
}

// AlertingConfig defines movement detection and notification routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	Window       time.Duration  `mapstructure:"window"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Recipient    string         `mapstructure:"recipient"`
	Email        EmailConfig    `mapstructure:"email"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig describes SMTP delivery.
type EmailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TelegramConfig describes Telegram Bot API delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SwapConfig parameterises the swap-rate quote.
type SwapConfig struct {
	BaseSymbol  string  `mapstructure:"base_symbol"`
	QuoteSymbol string  `mapstructure:"quote_symbol"`
	FeePct      float64 `mapstructure:"fee_pct"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCHER")
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

	if len(cfg.Tokens.Definitions) == 0 {
		cfg.Tokens.Definitions = tokens.Defaults()
	}
	if len(cfg.Tokens.Tracked) == 0 {
		cfg.Tokens.Tracked = tokens.DefaultTracked()
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
	v.SetDefault("app.name", "pricewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("scheduler.ingest_interval", "5m")
	v.SetDefault("scheduler.alert_interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70726977))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("oracle.provider", "moralis")
	v.SetDefault("oracle.moralis.base_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("oracle.moralis.request_timeout", "10s")
	v.SetDefault("oracle.moralis.user_agent", "pricewatcher/1.0")
	v.SetDefault("oracle.feed.request_timeout", "10s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.window", "1h")
	v.SetDefault("alerting.threshold_pct", 3.0)
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.email.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("swap.base_symbol", "ethereum")
	v.SetDefault("swap.quote_symbol", "bitcoin")
	v.SetDefault("swap.fee_pct", 0.03)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Scheduler.IngestInterval <= 0 {
		return fmt.Errorf("scheduler.ingest_interval must be greater than zero")
	}
	if c.Scheduler.AlertInterval <= 0 {
		return fmt.Errorf("scheduler.alert_interval must be greater than zero")
	}
	if c.Alerting.Window <= 0 {
		return fmt.Errorf("alerting.window must be greater than zero")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Swap.FeePct < 0 || c.Swap.FeePct >= 1 {
		return fmt.Errorf("swap.fee_pct must be in [0, 1)")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Oracle.Provider {
	case "moralis", "feed":
	default:
		return fmt.Errorf("oracle.provider must be moralis or feed, got %q", c.Oracle.Provider)
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" {
			return fmt.Errorf("alerting.email.host is required when email is enabled")
		}
		if c.Alerting.Email.From == "" {
			return fmt.Errorf("alerting.email.from is required when email is enabled")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
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
