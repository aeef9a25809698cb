package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cli"
	applog "gagyebu/internal/log"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting gagyebu-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	mirror, err := cli.InitMirror(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", "error", err)
		os.Exit(1)
	}

	mirrorWorker := worker.NewMirrorWorker(repo, mirror, cfg.MirrorBatchSize)

	// recover imports whose announcement was lost while the worker was down
	logger.Info("Performing startup mirror check...")
	if err := mirrorWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup mirror check", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeImportCommitted(gctx, mirrorWorker.HandleImportCommitted)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on the periodic pending scan")
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.MirrorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := mirrorWorker.ProcessPending(gctx); err != nil && gctx.Err() == nil {
					logger.Error("Periodic mirror scan failed", "error", err)
				}
			}
		}
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Worker stopped with error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down worker...")
		select {
		case err := <-done:
			if err != nil {
				logger.Error("Worker stopped with error", "error", err)
			}
		case <-time.After(cli.ShutdownTimeout):
			logger.Warn("Shutdown timeout reached")
		}
	}
	logger.Info("Worker shutdown complete")
}
