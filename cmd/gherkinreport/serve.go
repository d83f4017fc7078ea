package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/gherkinreport/pkg/api"
	"github.com/ethpandaops/gherkinreport/pkg/cache"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Serve recorded runs, their features, scenarios and attachments over HTTP.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("validating api config: %w", err)
	}

	store, err := openResults(cfg)
	if err != nil {
		return err
	}

	// Set up context with signal handling.
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	registry := cache.NewRegistry(log, store, cfg.API.Cache.MaxResident)

	srv := api.NewServer(log, cfg.API, api.Options{
		ResultsDir:  cfg.Results.Dir,
		FailOnEmpty: cfg.Parser.FailOnEmpty,
	}, registry)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	log.Info("Shutting down API server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}
