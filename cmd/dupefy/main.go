// Command dupefy finds near-duplicate photos, either as an HTTP service in
// front of an Immich gallery or as a one-shot scan of a local directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-dupefy/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// appConfig is shared by every subcommand after PersistentPreRunE.
type appConfig struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	app := &appConfig{}
	var (
		envFile  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "dupefy",
		Short:         "Find near-duplicate photos and pick the best shot of each group",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
					return fmt.Errorf("--log-level: %w", err)
				}
			}
			app.cfg = cfg
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel})))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file with DUPEFY_* / IMMICH_* settings")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides DUPEFY_LOG_LEVEL)")

	root.AddCommand(newServeCmd(app), newScanCmd(app))
	return root
}
