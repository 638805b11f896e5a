package domain

import "time"

// Status is the sale lifecycle of an event.
type Status string

const (
	StatusUpcoming  Status = "Upcoming"
	StatusLive      Status = "Live"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Event struct {
	ID           int64
	Title        string
	Price        float64
	TotalTickets int
	SoldCount    int
	Status       Status
	StartsAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining is the capacity still available for sale.
func (e *Event) Remaining() int {
	return e.TotalTickets - e.SoldCount
}

// EffectiveStatus corrects a stored status for elapsed time. An event whose
// start has passed is Completed even if the stored row still says Upcoming or
// Live; the stored value converges lazily via the sweep. Sale-gate checks must
// go through this function, never the raw stored status.
func EffectiveStatus(stored Status, startsAt, now time.Time) Status {
	if !stored.Terminal() && !startsAt.After(now) {
		return StatusCompleted
	}
	return stored
}
