package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sir_venger/mediarelay/internal/app/resthttp"
	"github.com/sir_venger/mediarelay/internal/config"
	"github.com/sir_venger/mediarelay/internal/logging"
	"github.com/sir_venger/mediarelay/internal/storage"
	"github.com/sir_venger/mediarelay/internal/usecase/filesvc"
	"golang.org/x/sync/errgroup"
)

// main инициализирует релей и обеспечивает корректное завершение по сигналу.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}

	if err = run(cfg, logger); err != nil {
		logger.Error(context.Background(), "relay stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InsecureToken() {
		logger.Warn(ctx, "UPLOAD_TOKEN is not set, the default placeholder token is in use")
	}

	store, err := storage.NewStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	files := filesvc.New(filesvc.Deps{Store: store, MaxFileSize: cfg.MaxFileSize})
	handler, _ := resthttp.NewServer(cfg, files, logger)

	// Фоновая уборка staging-файлов, оставшихся после падения посреди загрузки.
	stopSweeper := storage.StartSweeper(store, cfg.PartialTTL, cfg.SweepInterval, func(n int, err error) {
		if err != nil {
			logger.Warn(ctx, "staging sweep", "removed", n, "error", err)
			return
		}
		if n > 0 {
			logger.Info(ctx, "staging sweep", "removed", n)
		}
	})
	defer stopSweeper()

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(ctx, "relay listening",
			"addr", cfg.Addr(),
			"upload_dir", store.Root(),
			"max_file_size_mb", cfg.MaxFileSizeMB(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Сценарий graceful shutdown при получении SIGTERM/SIGINT.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info(shutdownCtx, "relay shut down")
		return nil
	})

	return g.Wait()
}
