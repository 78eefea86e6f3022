package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/asimihsan/advisory_engine/internal/config"
	"github.com/asimihsan/advisory_engine/internal/metrics"
	pkgconfig "github.com/asimihsan/advisory_engine/pkg/config"
)

var (
	configPath string
	verbose    bool
	dumpConfig bool
	timeout    time.Duration

	logger   *zap.Logger
	cfg      *config.AppConfig
	configID string
)

var rootCmd = &cobra.Command{
	Use:   "advisory-engine",
	Short: "Crop advisory decision engine",
	Long: `advisory-engine turns weather forecasts, crop photos and farmer questions
into ranked, localized recommendations.

Requests are JSON documents with observations, media, the crop context and
the session delta returned by the previous request.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		metrics.MustRegister()

		cfg, configID, err = pkgconfig.Evaluate(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		logger.Debug("Configuration loaded", zap.String("config_id", configID), zap.String("path", configPath))
		if dumpConfig {
			fmt.Fprintf(os.Stderr, "Configuration %s:\n%s\n", configID, spew.Sdump(cfg))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Pkl configuration file (default: built-in)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&dumpConfig, "dump", false, "Print the effective configuration to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")

	rootCmd.AddCommand(evaluateCmd, serveCmd, rulesCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
