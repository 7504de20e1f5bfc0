package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/hat-tag-backend/internal/config"
	"github.com/DoyleJ11/hat-tag-backend/internal/httpapi"
	"github.com/DoyleJ11/hat-tag-backend/internal/hub"
	"github.com/DoyleJ11/hat-tag-backend/internal/logging"
	"github.com/DoyleJ11/hat-tag-backend/internal/store"
)

func main() {
	var cfg config.Server
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("bad config", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Server, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var results store.ResultStore = store.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		results = pg
		log.Info("storing results in postgres")
	}

	h := hub.NewHub(ctx, hub.Options{Results: results, Logger: log})

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:        h,
			Results:    results,
			RoomBuffer: cfg.RoomBuffer,
			Logger:     log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Rooms first so websocket handlers return, then the listener.
		if err := h.Shutdown(shutdownCtx); err != nil {
			log.Warn("hub shutdown", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
