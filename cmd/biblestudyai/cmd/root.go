// Package cmd provides the CLI commands for BibleStudyAI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/logging"
	"github.com/AssetOverflow/BibleStudyAI/pkg/version"
)

var (
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the biblestudyai CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biblestudyai",
		Short: "Hybrid search and answer synthesis over biblical text",
		Long: `BibleStudyAI answers natural-language questions against a biblical
corpus by fusing lexical, vector, and graph retrieval into one ranked
evidence set, then synthesizing a grounded, citation-checked answer.

Run 'biblestudyai serve' to expose the HTTP API, or 'biblestudyai ask'
for a one-shot question from the terminal.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("biblestudyai version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data-dir>/biblestudyai.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs the process-wide structured logger.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command, printing coded errors in CLI form.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		if debugMode {
			fmt.Fprintln(os.Stderr, apperrors.FormatForUser(err, true))
		} else {
			fmt.Fprintln(os.Stderr, apperrors.FormatForCLI(err))
		}
	}
	return err
}
