package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/ticketline/booking/internal/clock"
	"github.com/ticketline/booking/internal/domain"
	"github.com/ticketline/booking/internal/observability"
)

// Tx is the set of inventory operations available inside one reservation
// transaction. The event row returned by GetEventForUpdate stays exclusively
// locked until the transaction commits or rolls back, so every read and write
// below sees one consistent snapshot of that event.
type Tx interface {
	GetEventForUpdate(ctx context.Context, eventID int64) (*domain.Event, error)
	MarkCompleted(ctx context.Context, eventID int64) error
	InsertBooking(ctx context.Context, b domain.Booking) error
	InsertTickets(ctx context.Context, tickets []domain.Ticket) error
	AddSold(ctx context.Context, eventID int64, quantity int) error
	StageBookingConfirmed(ctx context.Context, b domain.Booking) error
}

// Store is the durable inventory and ledger. InTx runs fn inside a single
// transaction: if fn returns an error the whole transaction rolls back and
// nothing fn did is visible.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	BookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error)
}

// ReplayCache short-circuits idempotent replays of already-confirmed
// checkouts without opening a transaction. It is best effort; the unique
// constraint on the booking's idempotency key is authoritative.
type ReplayCache interface {
	Get(ctx context.Context, key string) (*Confirmation, error)
	Set(ctx context.Context, key string, conf Confirmation) error
}

// Auditor records confirmed bookings on an external audit trail.
type Auditor interface {
	BookingConfirmed(ctx context.Context, b domain.Booking) error
}

type PlaceBookingRequest struct {
	UserID         uuid.UUID
	EventID        int64
	Quantity       int
	IdempotencyKey string
}

type Confirmation struct {
	BookingID   uuid.UUID `json:"booking_id"`
	TicketCount int       `json:"ticket_count"`
	TotalAmount float64   `json:"total_amount"`
}

type Service struct {
	store       Store
	replays     ReplayCache
	audit       Auditor
	clock       clock.Clock
	logger      observability.Logger
	maxQuantity int
}

func NewService(store Store, replays ReplayCache, audit Auditor, clk clock.Clock, logger observability.Logger, maxQuantity int) *Service {
	return &Service{
		store:       store,
		replays:     replays,
		audit:       audit,
		clock:       clk,
		logger:      logger,
		maxQuantity: maxQuantity,
	}
}

// PlaceBooking atomically checks availability, decrements remaining inventory
// and writes the booking with its tickets, or rejects with no partial effect.
// Concurrent calls against the same event serialize on the event row lock;
// the final sold count can never exceed the event's total capacity.
func (s *Service) PlaceBooking(ctx context.Context, req PlaceBookingRequest) (*Confirmation, error) {
	if req.Quantity < 1 || (s.maxQuantity > 0 && req.Quantity > s.maxQuantity) {
		observability.BookingsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidRequest
	}
	if req.IdempotencyKey == "" || req.UserID == uuid.Nil {
		observability.BookingsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidRequest
	}

	if s.replays != nil {
		conf, err := s.replays.Get(ctx, req.IdempotencyKey)
		if err != nil {
			s.logger.WithField("idempotency_key", req.IdempotencyKey).Warn("replay cache lookup failed: ", err)
		} else if conf != nil {
			observability.BookingsTotal.WithLabelValues("replay").Inc()
			return conf, nil
		}
	}

	// Business rejections are returned through rejection rather than the
	// transaction error so the lazy status convergence (MarkCompleted) still
	// commits; only infrastructure failures roll it back.
	var booking domain.Booking
	var rejection error
	err := s.store.InTx(ctx, func(tx Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, req.EventID)
		if err != nil {
			return err
		}

		// Never trust the stored status: an event past its start must not
		// be observed as Live even if the lazy sweep has not run yet.
		now := s.clock.Now()
		effective := domain.EffectiveStatus(ev.Status, ev.StartsAt, now)
		if effective != ev.Status {
			if err := tx.MarkCompleted(ctx, ev.ID); err != nil {
				return err
			}
		}
		if effective != domain.StatusLive {
			rejection = domain.ErrSaleNotOpen
			return nil
		}

		remaining := ev.Remaining()
		if remaining <= 0 {
			rejection = domain.ErrSoldOut
			return nil
		}
		if req.Quantity > remaining {
			rejection = &domain.InsufficientInventoryError{Remaining: remaining}
			return nil
		}

		// Price comes from the locked read, never from the caller.
		booking = domain.NewBooking(req.UserID, req.EventID, req.Quantity, ev.Price, req.IdempotencyKey, now)
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		if err := tx.InsertTickets(ctx, domain.NewTickets(booking.ID, booking.TicketCount)); err != nil {
			return err
		}
		if err := tx.AddSold(ctx, ev.ID, req.Quantity); err != nil {
			return err
		}
		return tx.StageBookingConfirmed(ctx, booking)
	})
	if err != nil {
		// A unique violation on the idempotency key means an earlier attempt
		// with this key already committed; return its confirmation instead
		// of double-booking.
		if errors.Is(err, domain.ErrConflict) {
			prior, lookupErr := s.store.BookingByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && prior != nil {
				observability.BookingsTotal.WithLabelValues("replay").Inc()
				return &Confirmation{BookingID: prior.ID, TicketCount: prior.TicketCount, TotalAmount: prior.TotalAmount}, nil
			}
		}
		observability.BookingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	if rejection != nil {
		observability.BookingsTotal.WithLabelValues(outcomeLabel(rejection)).Inc()
		return nil, rejection
	}

	conf := Confirmation{BookingID: booking.ID, TicketCount: booking.TicketCount, TotalAmount: booking.TotalAmount}
	observability.BookingsTotal.WithLabelValues("confirmed").Inc()
	observability.TicketsSold.Add(float64(booking.TicketCount))

	if s.replays != nil {
		if err := s.replays.Set(ctx, req.IdempotencyKey, conf); err != nil {
			s.logger.WithField("booking_id", booking.ID).Warn("replay cache store failed: ", err)
		}
	}
	if s.audit != nil {
		if err := s.audit.BookingConfirmed(ctx, booking); err != nil {
			s.logger.WithField("booking_id", booking.ID).Warn("audit log failed: ", err)
		}
	}

	return &conf, nil
}

func outcomeLabel(err error) string {
	var insufficient *domain.InsufficientInventoryError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSaleNotOpen):
		return "sale_not_open"
	case errors.Is(err, domain.ErrSoldOut):
		return "sold_out"
	case errors.As(err, &insufficient):
		return "insufficient"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
