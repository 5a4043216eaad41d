package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/sitesearch/internal/api"
	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/dashboard"
	"github.com/IshaanNene/sitesearch/pkg/sitesearch"
)

var servePort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search page and JSON API",
		Long: `Serve the HTML search page at / and the JSON API under /api. The site is
crawled first only when the index location is empty.`,
		RunE: runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides api.port)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	logger := setupLogger(cfg)

	eng, err := sitesearch.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signalContext()
	defer stop()

	if _, err := eng.EnsureIndex(ctx); err != nil {
		return err
	}

	srv := api.NewServer(cfg.API.Port, config.Version, eng, logger)
	if cfg.Metrics.Enabled {
		srv.Handle("GET "+cfg.Metrics.Path, eng.Metrics())
	}
	srv.Handle("GET /{$}", dashboard.NewDashboard(eng, api.OptionsFromQuery, logger))

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
