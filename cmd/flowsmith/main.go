package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "flowsmith",
		Short: "FlowSmith - Autonomous issue-to-PR pipeline",
		Long: `FlowSmith takes a GitHub issue through an autonomous pipeline:
plan, code, run quality gates with bounded retries, review, and open
a pull request. Cross-instance exclusion is coordinated through issue
labels, so multiple FlowSmith instances can share a repository.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
