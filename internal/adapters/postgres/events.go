package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ticketline/booking/internal/domain"
)

const eventColumns = `id, title, price, total_tickets, sold_count, status, starts_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var ev domain.Event
	err := row.Scan(&ev.ID, &ev.Title, &ev.Price, &ev.TotalTickets, &ev.SoldCount, &ev.Status, &ev.StartsAt, &ev.CreatedAt, &ev.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetEvent reads an event without locking. Listings read this way may be
// stale against in-flight reservations; PlaceBooking re-validates under lock.
func (r *Repository) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (r *Repository) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events ORDER BY starts_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// CreateEvent inserts a new event in Upcoming with nothing sold.
func (r *Repository) CreateEvent(ctx context.Context, ev *domain.Event) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO events (title, price, total_tickets, starts_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sold_count, status, created_at, updated_at
	`, ev.Title, ev.Price, ev.TotalTickets, ev.StartsAt).Scan(&ev.ID, &ev.SoldCount, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt)
}

func (r *Repository) UpdateEventPrice(ctx context.Context, id int64, price float64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE events SET price = $2, updated_at = now() WHERE id = $1
	`, id, price)
	if err != nil {
		return mapPgError(err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateEventCapacity refuses to shrink capacity below what is already sold.
func (r *Repository) UpdateEventCapacity(ctx context.Context, id int64, total int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE events SET total_tickets = $2, updated_at = now()
		WHERE id = $1 AND sold_count <= $2
	`, id, total)
	if err != nil {
		return mapPgError(err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

// PublishEvent moves Upcoming to Live.
func (r *Repository) PublishEvent(ctx context.Context, id int64) error {
	return r.transition(ctx, id, `
		UPDATE events SET status = 'Live', updated_at = now()
		WHERE id = $1 AND status = 'Upcoming'
	`)
}

// UnpublishEvent moves Live back to Upcoming.
func (r *Repository) UnpublishEvent(ctx context.Context, id int64) error {
	return r.transition(ctx, id, `
		UPDATE events SET status = 'Upcoming', updated_at = now()
		WHERE id = $1 AND status = 'Live'
	`)
}

// CancelEvent cancels from any non-Cancelled state; cancelling an already
// cancelled event is a no-op.
func (r *Repository) CancelEvent(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE events SET status = 'Cancelled', updated_at = now()
		WHERE id = $1 AND status <> 'Cancelled'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		_, err := r.GetEvent(ctx, id)
		return err
	}
	return nil
}

func (r *Repository) transition(ctx context.Context, id int64, query string) error {
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

// SweepCompleted lazily completes events whose start has passed. Returns how
// many rows converged.
func (r *Repository) SweepCompleted(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE events SET status = 'Completed', updated_at = now()
		WHERE status IN ('Upcoming', 'Live') AND starts_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// DeleteEvent removes an event and cascades over its ledger. Administrative
// path only; the booking path never deletes.
func (r *Repository) DeleteEvent(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ErrTransient
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM tickets WHERE booking_id IN (SELECT id FROM bookings WHERE event_id = $1)
	`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE event_id = $1`, id); err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit(ctx)
}
