package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ticketline/booking/internal/booking"
	"github.com/ticketline/booking/internal/clock"
	"github.com/ticketline/booking/internal/domain"
	"github.com/ticketline/booking/internal/observability"
)

// fakeStore emulates the inventory store: a per-event mutex stands in for
// the row lock, and transaction effects are buffered until commit.
type fakeStore struct {
	mu         sync.Mutex
	events     map[int64]*domain.Event
	bookings   map[uuid.UUID]domain.Booking
	byKey      map[string]uuid.UUID
	tickets    map[uuid.UUID][]domain.Ticket
	outbox     []uuid.UUID
	ticketsErr error
}

func newFakeStore(events ...domain.Event) *fakeStore {
	s := &fakeStore{
		events:   map[int64]*domain.Event{},
		bookings: map[uuid.UUID]domain.Booking{},
		byKey:    map[string]uuid.UUID{},
		tickets:  map[uuid.UUID][]domain.Ticket{},
	}
	for i := range events {
		ev := events[i]
		s.events[ev.ID] = &ev
	}
	return s
}

type fakeTx struct {
	store *fakeStore

	lockedEvent     int64
	pendingComplete bool
	pendingBooking  *domain.Booking
	pendingTickets  []domain.Ticket
	pendingSold     int
	pendingOutbox   bool
}

func (s *fakeStore) InTx(ctx context.Context, fn func(booking.Tx) error) error {
	tx := &fakeTx{store: s}
	err := fn(tx)
	defer tx.unlock()
	if err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *fakeStore) BookingByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	b := s.bookings[id]
	return &b, nil
}

// rowLocks holds one mutex per event id, lazily created.
var rowLocks sync.Map

func (t *fakeTx) GetEventForUpdate(ctx context.Context, eventID int64) (*domain.Event, error) {
	t.store.mu.Lock()
	_, ok := t.store.events[eventID]
	t.store.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	lock, _ := rowLocks.LoadOrStore(eventID, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	t.lockedEvent = eventID

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	snapshot := *t.store.events[eventID]
	return &snapshot, nil
}

func (t *fakeTx) MarkCompleted(ctx context.Context, eventID int64) error {
	t.pendingComplete = true
	return nil
}

func (t *fakeTx) InsertBooking(ctx context.Context, b domain.Booking) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, exists := t.store.byKey[b.IdempotencyKey]; exists {
		return domain.ErrConflict
	}
	t.pendingBooking = &b
	return nil
}

func (t *fakeTx) InsertTickets(ctx context.Context, tickets []domain.Ticket) error {
	if t.store.ticketsErr != nil {
		return t.store.ticketsErr
	}
	t.pendingTickets = tickets
	return nil
}

func (t *fakeTx) AddSold(ctx context.Context, eventID int64, quantity int) error {
	t.pendingSold = quantity
	return nil
}

func (t *fakeTx) StageBookingConfirmed(ctx context.Context, b domain.Booking) error {
	t.pendingOutbox = true
	return nil
}

func (t *fakeTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ev := t.store.events[t.lockedEvent]
	if t.pendingComplete {
		ev.Status = domain.StatusCompleted
	}
	ev.SoldCount += t.pendingSold
	if t.pendingBooking != nil {
		t.store.bookings[t.pendingBooking.ID] = *t.pendingBooking
		t.store.byKey[t.pendingBooking.IdempotencyKey] = t.pendingBooking.ID
		t.store.tickets[t.pendingBooking.ID] = t.pendingTickets
		if t.pendingOutbox {
			t.store.outbox = append(t.store.outbox, t.pendingBooking.ID)
		}
	}
}

func (t *fakeTx) unlock() {
	if t.lockedEvent == 0 {
		return
	}
	lock, _ := rowLocks.LoadOrStore(t.lockedEvent, &sync.Mutex{})
	lock.(*sync.Mutex).Unlock()
}

var eventIDSeq int64 = 1000

func nextEventID() int64 {
	eventIDSeq++
	return eventIDSeq
}

func newService(t *testing.T, store *fakeStore, now time.Time) *booking.Service {
	t.Helper()
	return booking.NewService(store, nil, nil, clock.NewFixed(now), observability.NewLogger(), 20)
}

func liveEvent(id int64, price float64, total, sold int, startsAt time.Time) domain.Event {
	return domain.Event{
		ID:           id,
		Title:        "test event",
		Price:        price,
		TotalTickets: total,
		SoldCount:    sold,
		Status:       domain.StatusLive,
		StartsAt:     startsAt,
	}
}

func placeReq(eventID int64, qty int) booking.PlaceBookingRequest {
	return booking.PlaceBookingRequest{
		UserID:         uuid.New(),
		EventID:        eventID,
		Quantity:       qty,
		IdempotencyKey: uuid.New().String(),
	}
}

func TestPlaceBookingConcurrentRace(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 100, 10, 0, now.Add(time.Hour)))
	svc := newService(t, store, now)

	type result struct {
		conf *booking.Confirmation
		err  error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conf, err := svc.PlaceBooking(context.Background(), placeReq(id, 6))
			results <- result{conf, err}
		}()
	}
	wg.Wait()
	close(results)

	var successes, insufficient int
	for res := range results {
		if res.err == nil {
			successes++
			continue
		}
		var e *domain.InsufficientInventoryError
		if errors.As(res.err, &e) {
			insufficient++
			if e.Remaining != 4 {
				t.Errorf("remaining = %d, want 4", e.Remaining)
			}
		} else {
			t.Errorf("unexpected error: %v", res.err)
		}
	}
	if successes != 1 || insufficient != 1 {
		t.Errorf("successes = %d, insufficient = %d, want 1 and 1", successes, insufficient)
	}
	if got := store.events[id].SoldCount; got != 6 {
		t.Errorf("sold = %d, want 6", got)
	}
}

func TestPlaceBookingNoOversellUnderLoad(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	total := 100
	store := newFakeStore(liveEvent(id, 10, total, 0, now.Add(time.Hour)))
	svc := newService(t, store, now)

	const workers = 50
	const qty = 3
	var wg sync.WaitGroup
	var mu sync.Mutex
	soldByWinners := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PlaceBooking(context.Background(), placeReq(id, qty)); err == nil {
				mu.Lock()
				soldByWinners += qty
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sold := store.events[id].SoldCount
	if sold != soldByWinners {
		t.Errorf("sold = %d, sum of successful quantities = %d", sold, soldByWinners)
	}
	if sold > total {
		t.Errorf("oversold: sold = %d > total = %d", sold, total)
	}
}

func TestPlaceBookingSoldOut(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 50, 5, 5, now.Add(time.Hour)))
	svc := newService(t, store, now)

	_, err := svc.PlaceBooking(context.Background(), placeReq(id, 1))
	if !errors.Is(err, domain.ErrSoldOut) {
		t.Errorf("err = %v, want ErrSoldOut", err)
	}
}

func TestPlaceBookingSaleNotOpen(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []domain.Status{domain.StatusUpcoming, domain.StatusCompleted, domain.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			id := nextEventID()
			ev := liveEvent(id, 10, 100, 0, now.Add(time.Hour))
			ev.Status = status
			store := newFakeStore(ev)
			svc := newService(t, store, now)

			_, err := svc.PlaceBooking(context.Background(), placeReq(id, 1))
			if !errors.Is(err, domain.ErrSaleNotOpen) {
				t.Errorf("err = %v, want ErrSaleNotOpen", err)
			}
		})
	}
}

func TestPlaceBookingNotFound(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	svc := newService(t, store, now)

	_, err := svc.PlaceBooking(context.Background(), placeReq(nextEventID(), 1))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPlaceBookingInvalidQuantity(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 10, 100, 0, now.Add(time.Hour)))
	svc := newService(t, store, now)

	for _, qty := range []int{0, -1, 21} {
		if _, err := svc.PlaceBooking(context.Background(), placeReq(id, qty)); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("quantity %d: err = %v, want ErrInvalidRequest", qty, err)
		}
	}

	req := placeReq(id, 1)
	req.IdempotencyKey = ""
	if _, err := svc.PlaceBooking(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("missing key: err = %v, want ErrInvalidRequest", err)
	}
	if got := store.events[id].SoldCount; got != 0 {
		t.Errorf("sold = %d after rejected requests, want 0", got)
	}
}

func TestPlaceBookingPriceFreeze(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 1000, 20, 0, now.Add(time.Hour)))
	svc := newService(t, store, now)

	conf, err := svc.PlaceBooking(context.Background(), placeReq(id, 3))
	if err != nil {
		t.Fatalf("PlaceBooking: %v", err)
	}
	if conf.TotalAmount != 3000 {
		t.Errorf("total = %v, want 3000", conf.TotalAmount)
	}
	if got := store.events[id].SoldCount; got != 3 {
		t.Errorf("sold = %d, want 3", got)
	}

	// Price edit after the fact must not touch the booked amount.
	store.events[id].Price = 1500
	b := store.bookings[conf.BookingID]
	if b.TotalAmount != 3000 {
		t.Errorf("booked amount = %v after price edit, want 3000", b.TotalAmount)
	}
}

func TestPlaceBookingPastStartNeverLive(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	// Stored status is stale: the event started an hour ago but no sweep ran.
	store := newFakeStore(liveEvent(id, 10, 100, 0, now.Add(-time.Hour)))
	svc := newService(t, store, now)

	_, err := svc.PlaceBooking(context.Background(), placeReq(id, 1))
	if !errors.Is(err, domain.ErrSaleNotOpen) {
		t.Errorf("err = %v, want ErrSaleNotOpen", err)
	}
	if got := store.events[id].Status; got != domain.StatusCompleted {
		t.Errorf("stored status = %s, want Completed (converged in-transaction)", got)
	}
	if got := store.events[id].SoldCount; got != 0 {
		t.Errorf("sold = %d, want 0", got)
	}
}

func TestPlaceBookingRollbackOnFailure(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 10, 100, 0, now.Add(time.Hour)))
	store.ticketsErr = errors.New("connection reset")
	svc := newService(t, store, now)

	_, err := svc.PlaceBooking(context.Background(), placeReq(id, 5))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := store.events[id].SoldCount; got != 0 {
		t.Errorf("sold = %d after rollback, want 0", got)
	}
	if len(store.bookings) != 0 {
		t.Errorf("bookings = %d after rollback, want 0", len(store.bookings))
	}
}

func TestPlaceBookingIdempotentReplay(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 100, 10, 0, now.Add(time.Hour)))
	svc := newService(t, store, now)

	req := placeReq(id, 2)
	first, err := svc.PlaceBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("first PlaceBooking: %v", err)
	}

	// Same key retried, e.g. after a client timeout that masked the commit.
	second, err := svc.PlaceBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("replay PlaceBooking: %v", err)
	}
	if second.BookingID != first.BookingID {
		t.Errorf("replay booking id = %s, want %s", second.BookingID, first.BookingID)
	}
	if got := store.events[id].SoldCount; got != 2 {
		t.Errorf("sold = %d after replay, want 2", got)
	}
}

type fakeReplayCache struct {
	mu    sync.Mutex
	confs map[string]booking.Confirmation
	hits  int
}

func (c *fakeReplayCache) Get(ctx context.Context, key string) (*booking.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conf, ok := c.confs[key]; ok {
		c.hits++
		return &conf, nil
	}
	return nil, nil
}

func (c *fakeReplayCache) Set(ctx context.Context, key string, conf booking.Confirmation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confs[key] = conf
	return nil
}

func TestPlaceBookingReplayCacheShortCircuit(t *testing.T) {
	now := time.Now().UTC()
	id := nextEventID()
	store := newFakeStore(liveEvent(id, 100, 10, 0, now.Add(time.Hour)))
	cache := &fakeReplayCache{confs: map[string]booking.Confirmation{}}
	svc := booking.NewService(store, cache, nil, clock.NewFixed(now), observability.NewLogger(), 20)

	req := placeReq(id, 2)
	first, err := svc.PlaceBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("first PlaceBooking: %v", err)
	}
	second, err := svc.PlaceBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("replay PlaceBooking: %v", err)
	}
	if second.BookingID != first.BookingID {
		t.Errorf("replay booking id = %s, want %s", second.BookingID, first.BookingID)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}
	if got := store.events[id].SoldCount; got != 2 {
		t.Errorf("sold = %d, want 2", got)
	}
}
