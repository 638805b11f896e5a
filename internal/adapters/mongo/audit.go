package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticketline/booking/internal/domain"
	"github.com/ticketline/booking/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger keeps a trail of booking and lifecycle actions outside the
// transactional store. Writes are best effort; callers log and move on.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) logAction(ctx context.Context, action string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	return a.logAction(ctx, "booking.confirmed", map[string]interface{}{
		"booking_id":   b.ID,
		"user_id":      b.UserID,
		"event_id":     b.EventID,
		"ticket_count": b.TicketCount,
		"total_amount": b.TotalAmount,
	})
}

func (a *AuditLogger) EventStatusChanged(ctx context.Context, eventID int64, action string) error {
	return a.logAction(ctx, action, map[string]interface{}{
		"event_id": eventID,
	})
}
