// Command sentiq-server serves backtest runs over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sentiq/internal/api"
	"sentiq/internal/config"
	"sentiq/internal/engine"
	"sentiq/internal/httpapi"
	"sentiq/internal/metrics"
	"sentiq/internal/store"
	"sentiq/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "config file (default $SENTIQ_CONFIG or config/sentiq.yaml)")
	flag.Parse()

	cfg, err := config.Load(config.Path(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()

	rec := metrics.New()
	opts := engine.FromConfig(cfg.Backtest)
	opts.Backtests = pstore
	opts.Runs = db
	opts.Signals = db
	opts.Recorder = rec
	opts.Logger = logger
	base, err := engine.New(opts)
	if err != nil {
		log.Fatalf("invalid backtest config: %v", err)
	}
	svc := engine.NewService(base, pstore)

	httpSrv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: httpapi.NewServer(httpapi.Options{
			Service:   svc,
			Runs:      db,
			Signals:   db,
			Backtests: pstore,
			Metrics:   rec.Handler(),
			Logger:    logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := api.NewServer(svc, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		g.Go(func() error { return grpcSrv.Serve(lis) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		grpcSrv.Stop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
	}
	logger.Info("shutdown complete")
}
