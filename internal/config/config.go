package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ge-price-pipeline/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Source    SourceConfig    `mapstructure:"source"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Cleaner   CleanerConfig   `mapstructure:"cleaner"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the local sqlite store.
type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	BusyTimeout int    `mapstructure:"busy_timeout_ms"`
}

// SourceConfig covers the price API.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Origin         string        `mapstructure:"origin"`
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
}

// SyncConfig tunes the incremental synchroniser.
type SyncConfig struct {
	FlushEvery int `mapstructure:"flush_every"`
}

// CleanerConfig holds the preprocessing thresholds.
type CleanerConfig struct {
	LiquidityThreshold float64 `mapstructure:"liquidity_threshold"`
	CoverageRatio      float64 `mapstructure:"coverage_ratio"`
	ZScoreThreshold    float64 `mapstructure:"zscore_threshold"`
}

// SchedulerConfig governs the long-running sync cadence.
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
	v.SetEnvPrefix("GEPIPE")
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
	v.SetDefault("app.name", "gepipe")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.path", "data/osrs_ge.sqlite")
	v.SetDefault("database.busy_timeout_ms", 5000)

	v.SetDefault("source.base_url", "https://prices.runescape.wiki/api/v1/osrs")
	v.SetDefault("source.user_agent", "gepipe/1.0 (time-series forecasting project)")
	v.SetDefault("source.request_timeout", "15s")
	v.SetDefault("source.origin", "2022-01-01")
	v.SetDefault("source.safety_margin", "24h")

	v.SetDefault("sync.flush_every", 24)

	v.SetDefault("cleaner.liquidity_threshold", 10e6)
	v.SetDefault("cleaner.coverage_ratio", 0.95)
	v.SetDefault("cleaner.zscore_threshold", 3.0)

	v.SetDefault("scheduler.interval", "1h")
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
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := time.Parse("2006-01-02", c.Source.Origin); err != nil {
		return fmt.Errorf("source.origin must be a YYYY-MM-DD date: %w", err)
	}
	if c.Source.SafetyMargin < 24*time.Hour {
		return fmt.Errorf("source.safety_margin must be at least 24h")
	}
	if c.Sync.FlushEvery <= 0 {
		return fmt.Errorf("sync.flush_every must be greater than zero")
	}
	if c.Cleaner.LiquidityThreshold <= 0 {
		return fmt.Errorf("cleaner.liquidity_threshold must be greater than zero")
	}
	if c.Cleaner.CoverageRatio <= 0 || c.Cleaner.CoverageRatio > 1 {
		return fmt.Errorf("cleaner.coverage_ratio must be in (0, 1]")
	}
	if c.Cleaner.ZScoreThreshold <= 0 {
		return fmt.Errorf("cleaner.zscore_threshold must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// OriginTime returns the configured calendar origin as a UTC timestamp.
func (c *Config) OriginTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.Source.Origin)
	return t.UTC()
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
