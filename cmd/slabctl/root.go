package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/CacaoGatto/RedisGraph/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	noColor  bool
	logLevel string
	logDir   string
)

// counts formats record and block counts with digit grouping.
var counts = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "slabctl",
	Short: "Exercise and inspect the graph record store",
	Long: `slabctl drives the block-based record store that holds graph nodes and
edges. It can run synthetic allocation and deletion workloads, exercise label
partitioned scans, and probe the fast and capacity memory tiers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Enable storage logging at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write storage logs to dated files in this directory")
}

func setupLogging() error {
	if logLevel == "" {
		return logger.Init(logger.Options{})
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	return logger.Init(logger.Options{
		Enabled: true,
		LogDir:  logDir,
		Level:   level,
		JSON:    jsonOut,
	})
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, paint(errorStyle, "Error: ")+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printField prints one aligned "name: value" report line.
func printField(name string, format string, args ...any) {
	printInfo("  %s %s\n", paint(labelStyle, fmt.Sprintf("%-18s", name+":")), fmt.Sprintf(format, args...))
}
