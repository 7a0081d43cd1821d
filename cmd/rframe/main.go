// Command rframe queries delimited, JSON and Parquet tables from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NerdMeNot/rframe"
)

var version = "0.1.0"

// app carries what the persistent pre-run sets up for every command.
type app struct {
	cfgFile string
	cfg     *Config
	log     *zap.Logger
	reg     *prometheus.Registry
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.cfgFile, cmd.Root())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, logger

	rframe.SetLogger(logger)
	rframe.SetParallelConfig(&cfg.Parallel)
	rframe.SetDisplayConfig(cfg.Display)

	a.reg = prometheus.NewRegistry()
	if err := rframe.RegisterMetrics(a.reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	logger.Debug("configured", zap.String("command", cmd.Name()), zap.Any("parallel", cfg.Parallel))
	return nil
}

func (a *app) teardown() error {
	if a.cfg != nil && a.cfg.IO.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.IO.MetricsFile, a.reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "rframe",
		Short: "rframe - columnar table queries from the command line",
		Long: `rframe loads a table, then filters, sorts, groups, aggregates, pivots,
joins or indexes it with a parallel columnar engine.

Configuration comes from --config (YAML), RFRAME_* environment variables
(e.g. RFRAME_LOG_LEVEL, RFRAME_PARALLEL_MAX_WORKERS) and flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Path to a YAML configuration file")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Int("max-rows", rframe.DefaultDisplayConfig().MaxRows, "Rows shown when printing a table")
	flags.String("delimiter", "\t", "Field delimiter for delimited input and output")
	flags.Bool("factors", false, "Read text columns as factors")
	flags.String("schema", "", "YAML schema forcing column types of delimited input")
	flags.String("json-format", "records", "JSON layout: records or columns")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.Bool("parallel", true, "Use the parallel worker pool")

	root.AddCommand(
		newShowCmd(a),
		newConvertCmd(a),
		newQueryCmd(a),
		newPivotCmd(a),
		newJoinCmd(a),
		newLookupCmd(a),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
