package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/ticketline/booking/internal/adapters/mongo"
	"github.com/ticketline/booking/internal/adapters/postgres"
	redisadapter "github.com/ticketline/booking/internal/adapters/redis"
	"github.com/ticketline/booking/internal/booking"
	"github.com/ticketline/booking/internal/clock"
	"github.com/ticketline/booking/internal/config"
	httphandler "github.com/ticketline/booking/internal/http"
	"github.com/ticketline/booking/internal/idempotency"
	"github.com/ticketline/booking/internal/lifecycle"
	"github.com/ticketline/booking/internal/observability"
	"github.com/ticketline/booking/internal/rateLimit"
	"github.com/ticketline/booking/migrations"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(context.Background(), pool); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	repo := postgres.NewRepository(pool, cfg.LockTimeout)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("ticketline"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	replays := idempotency.NewCache(redisadapter.NewReplays(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	// Rabbit is only dialed to fail fast on misconfiguration; the API stages
	// outbox records and the outbox-publisher process does the publishing.
	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()

	clk := clock.NewSystem()
	bookings := booking.NewService(repo, replays, audit, clk, logger, cfg.MaxTicketsPerBooking)
	lc := lifecycle.NewService(repo, audit, clk, logger)

	handlers := httphandler.NewHandlers(cfg, repo, bookings, lc)
	router := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gctx.Done():
		}
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("Server exiting")
}
