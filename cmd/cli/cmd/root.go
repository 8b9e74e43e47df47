// Package cmd provides the CLI commands for costplan.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string

	// exitCode lets gate evaluations fail the process without
	// printing a usage error.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "costplan",
	Short: "Estimate cloud costs before apply",
	Long: `costplan submits IaC bundles to the estimation service and reads
back jobs, results, comparisons, and gate verdicts.

Examples:
  costplan submit --upload bundles/web --region us-east-1 --wait
  costplan status 3f2a...
  costplan result 3f2a... --format json
  costplan gate res-1 --max-monthly-cost 500 --min-confidence MEDIUM`,
	SilenceUsage: true,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "estimation service URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "output format (table, json)")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("costplan version 1.0.0")
	},
}
