// Package cmd implements the CLI commands for the d7 kernel host harness.
package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"d7kernel/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags.
var (
	globalLog           string
	globalLogFormat     string
	globalDebug         bool
	globalCalibrationMs int
)

// rootCmd is the base command for the d7 kernel host harness.
var rootCmd = &cobra.Command{
	Use:   "d7",
	Short: "Host harness for the d7 microkernel",
	Long: `d7 drives an in-process instance of the d7 microkernel (process
lifecycle, IPC bus, scheduler, TSC-deadline time base) from the host,
standing in for the bootloader and CPU that a real boot would provide.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// CalibrationInterval is the configured TSC-deadline calibration window.
func CalibrationInterval() time.Duration {
	return time.Duration(globalCalibrationMs) * time.Millisecond
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&globalCalibrationMs, "calibration-ms", 10, "TSC-deadline calibration window in milliseconds")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: globalLogFormat,
		Output: io.MultiWriter(logOutput, logging.KernelRing()),
	})
	logging.SetDefault(logger)
}
