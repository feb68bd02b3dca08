package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"futurespot/internal/config"
	"futurespot/internal/database"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "futurespot",
	Short:         "Track CME futures settlements against EIA spot prices",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the shared dependencies every command needs: config,
// structured logger, connection pool, repository.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	repo   database.Repository
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		repo:   database.NewPostgresRepository(pool),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
