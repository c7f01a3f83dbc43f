package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/perfctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultSampleInterval    = 17 // milliseconds, ~60Hz
	defaultBatchSize         = 50
	defaultAggregationWindow = 5 // seconds
	defaultMaxCachedWindows  = 100
	defaultMaxRawPoints      = 5000
	defaultStabilityPeriod   = 5 // seconds
)

type Config struct {
	SampleInterval    int    `mapstructure:"sample_interval"`    // milliseconds between samples
	BatchSize         int    `mapstructure:"batch_size"`         // raw points per aggregation batch
	AggregationWindow int    `mapstructure:"aggregation_window"` // seconds per aggregation window
	MaxCachedWindows  int    `mapstructure:"max_cached_windows"`
	MaxRawPoints      int    `mapstructure:"max_raw_points"`
	StabilityPeriod   int    `mapstructure:"stability_period"` // seconds between quality changes
	Realtime          bool   `mapstructure:"realtime"`         // aggregate injected operations immediately
	Monitor           bool   `mapstructure:"monitor"`
	Report            bool   `mapstructure:"report"`
	Debug             bool   `mapstructure:"debug"`
	Verbose           bool   `mapstructure:"verbose"`
	LogLevel          string `mapstructure:"log_level"`
	Telemetry         bool   `mapstructure:"telemetry"`
	TelemetryDB       string `mapstructure:"database"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("perfctl", pflag.ContinueOnError)
	fs.Int("sample-interval", defaultSampleInterval, "Milliseconds between performance samples")
	fs.Int("batch-size", defaultBatchSize, "Raw data points per aggregation batch")
	fs.Int("aggregation-window", defaultAggregationWindow, "Seconds per aggregation window")
	fs.Int("stability-period", defaultStabilityPeriod, "Minimum seconds between quality changes")
	fs.Bool("monitor", false, "Only monitor performance, do not adjust quality")
	fs.Bool("report", false, "Print a performance summary on shutdown")
	fs.Bool("realtime", false, "Aggregate injected operation data immediately")
	fs.Bool("telemetry", false, "Persist control loop snapshots to the telemetry database")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("log-level", "", "Log level (debug, info, warning, error)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	// Load configuration from file
	if path := os.Getenv("PERFCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	} else {
		v.SetConfigName("perfctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
			}
		}
	}

	v.SetEnvPrefix("PERFCTL")
	v.AutomaticEnv()

	// Override config file values with command line flags
	fs.Visit(func(f *pflag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sample_interval", defaultSampleInterval)
	v.SetDefault("batch_size", defaultBatchSize)
	v.SetDefault("aggregation_window", defaultAggregationWindow)
	v.SetDefault("max_cached_windows", defaultMaxCachedWindows)
	v.SetDefault("max_raw_points", defaultMaxRawPoints)
	v.SetDefault("stability_period", defaultStabilityPeriod)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("database", "/var/lib/perfctl/telemetry.db")
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.SampleInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.SampleInterval)
	}
	if c.AggregationWindow <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.AggregationWindow)
	}
	if c.StabilityPeriod < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.StabilityPeriod)
	}
	if c.BatchSize <= 0 || c.MaxRawPoints <= 0 || c.MaxCachedWindows <= 0 {
		return errFactory.New(errors.ErrInvalidConfig)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.New(errors.ErrMissingConfig)
	}

	return nil
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}
