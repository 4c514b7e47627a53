package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	dupefy "github.com/anatolykoptev/go-dupefy"
	"github.com/anatolykoptev/go-dupefy/gallery"
	"github.com/anatolykoptev/go-dupefy/immich"
	"github.com/anatolykoptev/go-dupefy/server"
)

func newServeCmd(app *appConfig) *cobra.Command {
	var (
		addr    string
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the duplicate-detection HTTP service",
		Long: `Run the HTTP service used by the gallery admin.

Endpoints:
  POST /api/duplicates/analyze-album/{galleryID}?threshold=&time_window=   (text/event-stream)
  POST /api/duplicates/find-similar
  GET  /api/duplicates/stats
  POST /api/duplicates/stats/reset
  GET  /health

Configuration comes from the environment (or --env-file):
  DATABASE_URL, IMMICH_URL and IMMICH_API_KEY are required.

The gallery_images table normally belongs to the gallery application;
pass --migrate to create it on a fresh database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			if addr != "" {
				cfg.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := gallery.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open gallery store: %w", err)
			}
			defer store.Close()
			if migrate {
				if err := gallery.Migrate(ctx, store); err != nil {
					return err
				}
				slog.Info("dupefy: gallery schema ready")
			}

			assets := immich.NewClient(immich.Config{
				BaseURL:           cfg.ImmichURL,
				APIKey:            cfg.ImmichAPIKey,
				Size:              cfg.ImmichSize,
				ThumbnailTemplate: cfg.ThumbnailURL,
			})

			engine := dupefy.NewEngine(dupefy.Config{
				Concurrency: cfg.Concurrency,
				OnPanic: func(tag string, r any) {
					slog.Error("dupefy: recovered panic", "stage", tag, "panic", fmt.Sprint(r))
				},
			})

			srv := server.New(server.Options{
				Engine:              engine,
				Store:               store,
				Assets:              assets,
				DownloadConcurrency: cfg.DownloadConcurrency,
			})
			return srv.ListenAndServe(ctx, cfg.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides DUPEFY_ADDR)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create the gallery_images table if it is missing")
	return cmd
}
