package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose   bool
	quiet     bool
	jsonOut   bool
	noColor   bool
	statePath string
)

var rootCmd = &cobra.Command{
	Use:   "coretunectl",
	Short: "Tune and inspect AetherOS tiered memory placement",
	Long: `coretunectl is an operator surface over the Hint/Tuning API:
it pins regions hot or cold, forces an immediate
migration, switches the active Migration Policy profile, and reports
per-region and per-tier stats. It carries no path-resolution or
mount-table logic of its own -- that belongs to the VFS/syscall layer,
which this tool never touches.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "Path to the demo kernel state file")

	rootCmd.AddCommand(newHintHotCmd())
	rootCmd.AddCommand(newHintColdCmd())
	rootCmd.AddCommand(newForceMigrateCmd())
	rootCmd.AddCommand(newSetProfileCmd())
	rootCmd.AddCommand(newStatsCmd())
}

func defaultStatePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".coretunectl", "state.json")
	}
	return "coretunectl-state.json"
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printInfo prints an info message if not in quiet mode.
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON.
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// checkArgs validates that the correct number of arguments were provided.
func checkArgs(args []string, expected int, usage string) error {
	if len(args) != expected {
		return fmt.Errorf("expected %d argument(s), got %d\nUsage: %s", expected, len(args), usage)
	}
	return nil
}
