// Command report writes the admin reports workbook to the exports directory.
// It is meant for cron jobs; the API serves the same workbook on demand.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"skillconnect/internal/config"
	"skillconnect/internal/database"
	"skillconnect/internal/export"
	"skillconnect/internal/logging"
	"skillconnect/internal/models"
	"skillconnect/internal/repository"
	"skillconnect/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	base, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "report")

	dir := cfg.Exports.Path
	if dir == "" {
		dir = filepath.Join(filepath.Dir(cfg.Database.Path), "exports")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error().Err(err).Str("dir", dir).Msg("create exports directory")
		return err
	}

	var trades []models.Trade
	if cfg.TradesFile != "" {
		if trades, err = config.LoadTrades(cfg.TradesFile); err != nil {
			logger.Warn().Err(err).Msg("trades catalog unavailable")
		}
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(base, "database"))
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A fresh in-memory cache: the export must not reuse stale API figures.
	reports := service.NewReportService(db, repository.NewMemoryStore(), trades, cfg.Reports.CacheTTL, cfg.Reports.Months, logger)
	bundle, err := reports.Bundle(ctx)
	if err != nil {
		return fmt.Errorf("build reports: %w", err)
	}

	path, err := export.SaveTo(dir, bundle)
	if err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	logger.Info().Str("path", path).Msg("report workbook written")
	return nil
}
