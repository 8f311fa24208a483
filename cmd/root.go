package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/ckmtox/internal/config"
	"github.com/KaramelBytes/ckmtox/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile            string
	debug              bool
	metricsFile        string
	flagHTTPTimeoutSec int
	flagDelimiter      string
	flagDecimal        string
	flagThousands      string

	// Loaded configuration
	cfg *cfgpkg.Global
	// logger is never nil; commands log through it and print results with fmt.
	logger = zap.NewNop()
	// recorder collects run counters for --metrics-file.
	recorder = metrics.New()
)

var rootCmd = &cobra.Command{
	Use:   "ckmtox",
	Short: "ckmtox: lead exposure and cardiovascular-kidney-metabolic risk toolkit",
	Long: `ckmtox downloads and merges NHANES survey tables, derives CKM risk indicators,
runs exposure-mediator-outcome mediation analyses and simulates the endothelial
compartment model of lead toxicity.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	if ferr := flushMetrics(); ferr != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", ferr)
	}
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.ckmtox/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus text-format run metrics to this file on exit")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (auto-detect if omitted)")
	rootCmd.PersistentFlags().StringVar(&flagDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	rootCmd.PersistentFlags().StringVar(&flagThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
}

func loadConfig() {
	logger = newLogger(debug)
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	logger.Debug("config loaded",
		zap.String("studies_dir", cfg.StudiesDir),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("min_observations", cfg.MinObservations))
}

// newLogger logs to stderr in console format; warnings and above unless debug.
func newLogger(debug bool) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.DisableStacktrace = !debug
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func flushMetrics() error {
	if metricsFile == "" {
		return nil
	}
	return recorder.WriteTextfile(metricsFile)
}
