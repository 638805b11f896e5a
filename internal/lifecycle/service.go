package lifecycle

import (
	"context"
	"time"

	"github.com/ticketline/booking/internal/clock"
	"github.com/ticketline/booking/internal/observability"
)

// Store is the subset of the inventory store that moves events through
// their lifecycle.
type Store interface {
	PublishEvent(ctx context.Context, id int64) error
	UnpublishEvent(ctx context.Context, id int64) error
	CancelEvent(ctx context.Context, id int64) error
	SweepCompleted(ctx context.Context, now time.Time) (int64, error)
}

// Auditor records lifecycle actions on an external audit trail.
type Auditor interface {
	EventStatusChanged(ctx context.Context, eventID int64, action string) error
}

type Service struct {
	store  Store
	audit  Auditor
	clock  clock.Clock
	logger observability.Logger
}

func NewService(store Store, audit Auditor, clk clock.Clock, logger observability.Logger) *Service {
	return &Service{store: store, audit: audit, clock: clk, logger: logger}
}

// Publish moves an Upcoming event to Live, opening it for sale.
func (s *Service) Publish(ctx context.Context, eventID int64) error {
	if err := s.store.PublishEvent(ctx, eventID); err != nil {
		return err
	}
	s.recordAudit(ctx, eventID, "event.published")
	return nil
}

// Unpublish moves a Live event back to Upcoming.
func (s *Service) Unpublish(ctx context.Context, eventID int64) error {
	if err := s.store.UnpublishEvent(ctx, eventID); err != nil {
		return err
	}
	s.recordAudit(ctx, eventID, "event.unpublished")
	return nil
}

// Cancel terminates an event from any non-Cancelled state. Cancelling twice
// is a no-op.
func (s *Service) Cancel(ctx context.Context, eventID int64) error {
	if err := s.store.CancelEvent(ctx, eventID); err != nil {
		return err
	}
	s.recordAudit(ctx, eventID, "event.cancelled")
	return nil
}

// Sweep converges stored statuses: events whose start has passed while still
// Upcoming or Live become Completed. Read paths call this lazily; the sweep
// worker calls it on a ticker. Reservation correctness does not depend on it
// running, since the sale gate re-derives the effective status under lock.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.SweepCompleted(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.SweptEvents.Add(float64(n))
		s.logger.WithField("count", n).Info("auto-completed past events")
	}
	return n, nil
}

func (s *Service) recordAudit(ctx context.Context, eventID int64, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.EventStatusChanged(ctx, eventID, action); err != nil {
		s.logger.WithField("event_id", eventID).Warn("audit log failed: ", err)
	}
}
