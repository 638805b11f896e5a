package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketline/booking/internal/adapters/postgres"
	"github.com/ticketline/booking/internal/clock"
	"github.com/ticketline/booking/internal/config"
	"github.com/ticketline/booking/internal/lifecycle"
	"github.com/ticketline/booking/internal/observability"
)

// The sweep worker converges stored event statuses on a ticker so past
// events complete even when nobody reads them. The API does the same sweep
// lazily on read paths; running both is harmless.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool, cfg.LockTimeout)

	lc := lifecycle.NewService(repo, nil, clock.NewSystem(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, lc, logger, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweep worker")
}

func run(ctx context.Context, lc *lifecycle.Service, logger observability.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := lc.Sweep(ctx); err != nil {
				logger.Error("sweep failed", err)
			}
		}
	}
}
