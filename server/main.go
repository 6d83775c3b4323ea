package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/gradegraph"
	"github.com/meikuraledutech/gradegraph/config"
	"github.com/meikuraledutech/gradegraph/postgres"
	"github.com/meikuraledutech/gradegraph/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	var store gradegraph.Store
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("connect", zap.Error(err))
		}
		defer pool.Close()
		store = postgres.New(pool)
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("open sqlite", zap.Error(err))
		}
		defer s.Close()
		store = s
	}
	if err := store.CreateSchema(ctx); err != nil {
		logger.Fatal("schema", zap.Error(err))
	}

	app := newApp(store, logger, prometheus.NewRegistry(), gradegraph.WithWorkers(cfg.Workers))
	logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("db", string(cfg.DBDriver)))
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
}
