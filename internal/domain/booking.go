package domain

import (
	"time"

	"github.com/google/uuid"
)

// Booking is one customer's confirmed purchase for one event. The total
// amount is frozen at booking time; later price edits on the event never
// touch it.
type Booking struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	EventID        int64
	TicketCount    int
	TotalAmount    float64
	IdempotencyKey string
	CreatedAt      time.Time
}

// Ticket is one admission unit within a booking.
type Ticket struct {
	ID        uuid.UUID
	BookingID uuid.UUID
}

func NewBooking(userID uuid.UUID, eventID int64, quantity int, unitPrice float64, idempotencyKey string, now time.Time) Booking {
	return Booking{
		ID:             uuid.New(),
		UserID:         userID,
		EventID:        eventID,
		TicketCount:    quantity,
		TotalAmount:    unitPrice * float64(quantity),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}
}

func NewTickets(bookingID uuid.UUID, count int) []Ticket {
	tickets := make([]Ticket, count)
	for i := range tickets {
		tickets[i] = Ticket{ID: uuid.New(), BookingID: bookingID}
	}
	return tickets
}
