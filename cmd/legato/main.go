package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"legato/internal/app"
	"legato/internal/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "legato",
	Short: "Local music catalog and listening statistics",
	Long: `legato indexes a local music directory into an embedded catalog and
answers queries over it: sorted listings, search with history, favorites,
folders, playlists, listening statistics and a weighted daily mix.

Run "legato watch" to keep the catalog in sync with the directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "path to the TOML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads the configuration, opens the catalog and runs fn. The
// context is cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logger, logFile, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("error initializing catalog: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Error closing catalog")
		}
	}()

	return fn(ctx, a)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
