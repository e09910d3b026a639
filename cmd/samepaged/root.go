package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/samepage"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "samepaged",
	Short: "User-space same-page merging service",
	Long: `samepaged hands out memory regions, scans their pages in the background
and merges pages with identical content onto shared read-only pages.
Statistics are reported as a CSV feed, to Kafka, to Prometheus and to a
compressed archive in a local directory, S3 or MinIO.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*samepage.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	switch strings.ToLower(logFormat) {
	case "json":
		return samepage.NewJSONLogger(level), nil
	case "text", "":
		return samepage.NewTextLogger(level), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", logFormat)
	}
}
