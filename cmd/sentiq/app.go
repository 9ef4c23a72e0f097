package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"sentiq/internal/config"
	"sentiq/internal/engine"
	"sentiq/internal/store"
	"sentiq/internal/util"
)

// app holds the dependencies shared by subcommands.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	parquet *store.ParquetStore
	db      *store.SQLiteStore
}

func newApp() (*app, error) {
	cfg, err := config.Load(config.Path(cfgPath))
	if err != nil {
		return nil, err
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     logger,
		parquet: store.NewParquetStore(cfg.Storage.DataDir),
		db:      db,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) engineOptions() engine.Options {
	opts := engine.FromConfig(a.cfg.Backtest)
	opts.Backtests = a.parquet
	opts.Runs = a.db
	opts.Signals = a.db
	opts.Logger = a.log
	return opts
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
