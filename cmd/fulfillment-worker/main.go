package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ticketline/booking/internal/adapters/postgres"
	"github.com/ticketline/booking/internal/adapters/rabbit"
	"github.com/ticketline/booking/internal/config"
	"github.com/ticketline/booking/internal/observability"
)

// The fulfillment worker consumes confirmed bookings and resolves their
// ticket ids, the hook point for rendering per-unit artifacts (passes,
// receipts). Deliveries are acked only after a successful lookup so rabbit
// redelivers on failure; the outbox dedupe key makes redelivery safe.
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "fulfillment.q", "booking.confirmed")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	go func() {
		for d := range deliveries {
			if err := fulfill(ctx, repo, logger, d.Body); err != nil {
				logger.Error("fulfillment failed", err)
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown fulfillment worker")
}

func fulfill(ctx context.Context, repo *postgres.Repository, logger observability.Logger, body []byte) error {
	var msg struct {
		BookingID uuid.UUID `json:"booking_id"`
	}
	// Malformed payloads are dropped, not requeued; redelivery cannot fix them.
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error("dropping malformed fulfillment message", err)
		return nil
	}
	ticketIDs, err := repo.TicketIDs(ctx, msg.BookingID)
	if err != nil {
		return err
	}
	logger.WithField("booking_id", msg.BookingID).Info("fulfilling tickets: ", len(ticketIDs))
	return nil
}
