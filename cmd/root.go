// Package cmd defines and implements the CLI commands for the scraper
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kismat-adhikari/website-scrapper/internal/config"
	"github.com/Kismat-adhikari/website-scrapper/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "A hybrid business-contact web scraper.",
		Long: `scraper extracts business contact details from company websites.
It tries a cheap HTTP fetch first and escalates to a pooled headless
browser only when the static HTML shows client-side rendering. Every job
produces a verification report auditing which pages and data sources
were actually inspected.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, env vars work too)")

	cmd.AddCommand(newScrapeCmd())
	return cmd
}

// loadConfigAndLogger builds the shared dependencies for all subcommands.
func loadConfigAndLogger() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
