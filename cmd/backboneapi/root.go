package main

import (
	"fmt"

	"github.com/deppfellow/backboneapi/internal/config"
	"github.com/deppfellow/backboneapi/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   config.ServiceName,
	Short: "REST collections for Backbone.js clients",
	Long: `Serves database tables as Backbone.js-compatible REST collections.

Usage examples:

1. Run the HTTP server (the default):

	backboneapi serve

2. Apply pending database migrations:

	backboneapi migrate
`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// bootstrap loads configuration and builds the root logger.
func bootstrap() (*config.Config, *logger.LoggerService, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	loggerService := logger.NewLoggerService(cfg.Observability)
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	return cfg, loggerService, &log, nil
}
