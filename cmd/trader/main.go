package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		if err := trace.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "trace shutdown: %v\n", err)
		}
	}()

	cfg, err := loadConfig(ctx)
	must(err)
	compressOldLogs(ctx)

	sys, err := buildSystem(ctx, cfg)
	must(err)
	defer sys.stream.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	must(sys.coordinator.Start(ctx))
	logger.Info(ctx, "Trader started",
		"mode", cfg.Mode, "symbols", cfg.Symbols,
		"tick_ms", cfg.Coordinator.TickMillis)

	tick := time.NewTicker(time.Duration(cfg.Coordinator.TickMillis) * time.Millisecond)
	defer tick.Stop()
	statusTick := time.NewTicker(60 * time.Second)
	defer statusTick.Stop()

	for {
		select {
		case <-tick.C:
			report, err := sys.coordinator.Tick(ctx)
			if err != nil {
				logger.ErrorWithErr(ctx, "Tick error", err)
				continue
			}
			sys.persistCompleted(ctx)
			if report.Messages > 0 {
				logger.Info(ctx, "Tick",
					"seq", report.Seq, "state", string(report.State),
					"messages", report.Messages, "applied", report.Applied,
					"errors", report.Errors)
			}

		case <-statusTick.C:
			sys.logStatus(ctx)

		case <-sigc:
			logger.Info(ctx, "Shutdown signal received")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := sys.coordinator.Shutdown(shutdownCtx); err != nil {
				logger.ErrorWithErr(shutdownCtx, "Shutdown error", err)
			}
			sys.persistCompleted(shutdownCtx)
			shutdownCancel()
			return

		case <-ctx.Done():
			return
		}
	}
}
