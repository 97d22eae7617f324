package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AssetOverflow/BibleStudyAI/internal/logging"
	"github.com/AssetOverflow/BibleStudyAI/internal/server"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server exposing ask, session history, health,
readiness, and metrics endpoints. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")

	return cmd
}

func runServe(ctx context.Context, host string, port int) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if host == "" {
		host = a.cfg.Server.Host
	}
	if port == 0 {
		port = a.cfg.Server.Port
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         a.cfg.Server.LogLevel,
		FilePath:      logging.DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(a.pipeline, a.synth, a.sessions, &server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		Logger:          logger,
		Pingers:         a.pingers(),
	})
	if err != nil {
		return err
	}

	// Expired conversations are purged in the background for as long as
	// the server runs.
	go a.sessions.RunGC(ctx)

	return srv.Start(ctx)
}
