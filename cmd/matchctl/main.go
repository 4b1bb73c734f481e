// Command matchctl ranks resumes against a job corpus from the command line,
// either in-process or against a running matcher over RPC.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	remote     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Rank job postings against a resume",
		Long:          "matchctl scores a job-posting corpus against one plain-text resume with tfidf, bm25, embedding or entity ranking.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file (defaults plus MR_* environment when empty)")
	root.PersistentFlags().StringVarP(&opts.remote, "remote", "r", "", "RPC address of a running matcher, e.g. localhost:5001")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newRankCmd(opts), newStrategiesCmd(opts), newExperienceCmd(), newBenchCmd())
	return root
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
