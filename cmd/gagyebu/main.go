package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/cli"
	"gagyebu/internal/core"
	apphttp "gagyebu/internal/http"
	applog "gagyebu/internal/log"
	"gagyebu/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// a nil *amqp.Client must not become a non-nil interface
	var publisher services.EventPublisher
	if client := cli.InitPublisher(logger, cfg); client != nil {
		defer client.Close()
		publisher = client
	}

	svc := services.NewImportService(repo, publisher, services.ImportConfig{
		PreviewRows: cfg.PreviewRows,
		CreditType:  core.TxType(cfg.NegativeAmountType),
	})

	srv := apphttp.NewServer(":"+cfg.Port, svc, repo, apphttp.Options{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		DefaultUserID:      cfg.DefaultUserID,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gagyebu server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
