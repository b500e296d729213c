package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Tables     TablesConfig     `yaml:"tables" mapstructure:"tables"`
	Rank       RankConfig       `yaml:"rank" mapstructure:"rank"`
	Write      WriteConfig      `yaml:"write" mapstructure:"write"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// TablesConfig points at the external lookup tables. Empty paths use the built-in tables.
type TablesConfig struct {
	WeightsPath    string `yaml:"weights_path" mapstructure:"weights_path"`
	CategoriesPath string `yaml:"categories_path" mapstructure:"categories_path"`
	DosesPath      string `yaml:"doses_path" mapstructure:"doses_path"`
	AliasesPath    string `yaml:"aliases_path" mapstructure:"aliases_path"`
}

// RankConfig tunes the ranking engine.
type RankConfig struct {
	TrimFraction   float64 `yaml:"trim_fraction" mapstructure:"trim_fraction"`
	TrimMinGroup   int     `yaml:"trim_min_group" mapstructure:"trim_min_group"`
	StaleAfterDays int     `yaml:"stale_after_days" mapstructure:"stale_after_days"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// WriteConfig configures apply-mode write-back.
type WriteConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BusyBackoffMs    int     `yaml:"busy_backoff_ms" mapstructure:"busy_backoff_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ServerConfig configures the read-only report server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures anomaly alerting.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RiskAlertThreshold float64 `yaml:"risk_alert_threshold" mapstructure:"risk_alert_threshold"`
	CheckIntervalSecs  int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackDays       int     `yaml:"lookback_days" mapstructure:"lookback_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tier.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("tables.weights_path", "")
	v.SetDefault("tables.categories_path", "")
	v.SetDefault("tables.doses_path", "")
	v.SetDefault("tables.aliases_path", "")
	v.SetDefault("rank.trim_fraction", 0.05)
	v.SetDefault("rank.trim_min_group", 10)
	v.SetDefault("rank.stale_after_days", 7)
	v.SetDefault("rank.concurrency", 8)
	v.SetDefault("write.max_attempts", 3)
	v.SetDefault("write.initial_backoff_ms", 200)
	v.SetDefault("write.max_backoff_ms", 5000)
	v.SetDefault("write.busy_backoff_ms", 1000)
	v.SetDefault("write.rate_per_sec", 20.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.risk_alert_threshold", 60.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_days", 90)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks value ranges that would otherwise produce meaningless ranks.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres (TIER_STORE_DATABASE_URL)")
	}
	if c.Rank.TrimFraction < 0 || c.Rank.TrimFraction >= 0.5 {
		errs = append(errs, "rank.trim_fraction must be in [0, 0.5)")
	}
	if c.Rank.TrimMinGroup < 1 {
		errs = append(errs, "rank.trim_min_group must be >= 1")
	}
	if c.Rank.StaleAfterDays < 1 {
		errs = append(errs, "rank.stale_after_days must be >= 1")
	}
	if c.Rank.Concurrency < 1 {
		errs = append(errs, "rank.concurrency must be >= 1")
	}
	if c.Write.MaxAttempts < 1 {
		errs = append(errs, "write.max_attempts must be >= 1")
	}
	if c.Write.RatePerSec < 0 {
		errs = append(errs, "write.rate_per_sec must be >= 0")
	}
	if c.Monitoring.RiskAlertThreshold < 0 || c.Monitoring.RiskAlertThreshold > 100 {
		errs = append(errs, "monitoring.risk_alert_threshold must be between 0 and 100")
	}
	if c.Monitoring.LookbackDays < 0 {
		errs = append(errs, "monitoring.lookback_days must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
