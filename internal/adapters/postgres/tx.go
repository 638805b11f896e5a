package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ticketline/booking/internal/domain"
)

// invTx exposes the reservation operations of one open transaction. The
// event row read by GetEventForUpdate stays locked until commit or rollback.
type invTx struct {
	tx pgx.Tx
}

func (t *invTx) GetEventForUpdate(ctx context.Context, eventID int64) (*domain.Event, error) {
	var ev domain.Event
	err := t.tx.QueryRow(ctx, `
		SELECT id, title, price, total_tickets, sold_count, status, starts_at
		FROM events WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&ev.ID, &ev.Title, &ev.Price, &ev.TotalTickets, &ev.SoldCount, &ev.Status, &ev.StartsAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (t *invTx) MarkCompleted(ctx context.Context, eventID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE events SET status = 'Completed', updated_at = now() WHERE id = $1
	`, eventID)
	return err
}

func (t *invTx) InsertBooking(ctx context.Context, b domain.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, event_id, ticket_count, total_amount, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.UserID, b.EventID, b.TicketCount, b.TotalAmount, b.IdempotencyKey, b.CreatedAt)
	return err
}

func (t *invTx) InsertTickets(ctx context.Context, tickets []domain.Ticket) error {
	rows := make([][]interface{}, len(tickets))
	for i, tk := range tickets {
		rows[i] = []interface{}{tk.ID, tk.BookingID}
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"tickets"}, []string{"id", "booking_id"}, pgx.CopyFromRows(rows))
	return err
}

func (t *invTx) AddSold(ctx context.Context, eventID int64, quantity int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE events SET sold_count = sold_count + $2, updated_at = now() WHERE id = $1
	`, eventID, quantity)
	return err
}

func (t *invTx) StageBookingConfirmed(ctx context.Context, b domain.Booking) error {
	payload, err := json.Marshal(map[string]interface{}{
		"booking_id":   b.ID,
		"event_id":     b.EventID,
		"user_id":      b.UserID,
		"ticket_count": b.TicketCount,
		"total_amount": b.TotalAmount,
	})
	if err != nil {
		return err
	}
	return insertOutbox(ctx, t.tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID.String(),
		EventType:     "booking.confirmed",
		Payload:       payload,
		DedupeKey:     b.IdempotencyKey,
	})
}
