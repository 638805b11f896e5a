package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ticketline/booking/internal/adapters/postgres"
	"github.com/ticketline/booking/internal/adapters/rabbit"
	"github.com/ticketline/booking/internal/observability"
)

// Publisher drains NEW outbox records to RabbitMQ. Records are claimed with
// FOR UPDATE SKIP LOCKED so multiple publisher replicas never double-send
// within one poll; the dedupe key protects consumers across restarts.
type Publisher struct {
	repo      *postgres.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	batchSize int
}

func NewPublisher(repo *postgres.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, batchSize: 50}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.DrainOnce(ctx); err != nil {
				p.logger.Error("failed to fetch outbox records", err)
			}
		}
	}
}

// DrainOnce publishes one batch of pending records.
func (p *Publisher) DrainOnce(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to publish outbox record", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to mark outbox record published", err)
		}
	}

	lag, err := p.repo.OldestUnpublishedAge(ctx, time.Now())
	if err == nil {
		observability.OutboxLag.Set(lag.Seconds())
	}
	return nil
}
