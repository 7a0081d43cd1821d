package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NerdMeNot/rframe"
)

// Config is the CLI configuration. It is read from an optional YAML file and
// RFRAME_-prefixed environment variables (RFRAME_LOG_LEVEL, RFRAME_IO_DELIMITER, ...).
type Config struct {
	Log      LogConfig             `mapstructure:"log"`
	Parallel rframe.ParallelConfig `mapstructure:"parallel"`
	Display  rframe.DisplayConfig  `mapstructure:"display"`
	IO       IOConfig              `mapstructure:"io"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Encoding    string `mapstructure:"encoding"` // json or console
}

// IOConfig holds defaults for reading and writing tables.
type IOConfig struct {
	Delimiter          string `mapstructure:"delimiter"`
	Factors            bool   `mapstructure:"factors"`
	Schema             string `mapstructure:"schema"` // YAML schema applied to delimited input
	JSONFormat         string `mapstructure:"json_format"`
	ParquetCompression string `mapstructure:"parquet_compression"`
	MetricsFile        string `mapstructure:"metrics_file"` // Prometheus text file written on exit
}

func setDefaults(v *viper.Viper) {
	par := rframe.DefaultParallelConfig()
	disp := rframe.DefaultDisplayConfig()

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", false)
	v.SetDefault("log.encoding", "console")
	v.SetDefault("parallel.min_rows", par.MinRowsForParallel)
	v.SetDefault("parallel.morsel_size", par.MorselSize)
	v.SetDefault("parallel.max_workers", par.MaxWorkers)
	v.SetDefault("parallel.enabled", par.Enabled)
	v.SetDefault("display.max_rows", disp.MaxRows)
	v.SetDefault("display.col_width", disp.ColWidth)
	v.SetDefault("io.delimiter", "\t")
	v.SetDefault("io.factors", false)
	v.SetDefault("io.schema", "")
	v.SetDefault("io.json_format", "records")
	v.SetDefault("io.parquet_compression", "snappy")
	v.SetDefault("io.metrics_file", "")
}

// loadConfig merges defaults, the config file (if any), the environment and
// the root command's persistent flags, in increasing precedence.
func loadConfig(path string, root *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RFRAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	flags := root.PersistentFlags()
	for key, flag := range map[string]string{
		"log.level":         "log-level",
		"display.max_rows":  "max-rows",
		"io.delimiter":      "delimiter",
		"io.factors":        "factors",
		"io.schema":         "schema",
		"io.metrics_file":   "metrics-file",
		"parallel.enabled":  "parallel",
		"io.json_format":    "json-format",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.IO.Delimiter == `\t` {
		cfg.IO.Delimiter = "\t"
	}
	if len([]rune(cfg.IO.Delimiter)) != 1 {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", cfg.IO.Delimiter)
	}
	return &cfg, nil
}

// newLogger creates the zap logger; output goes to stderr so tables on
// stdout stay clean.
func newLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "console"
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
