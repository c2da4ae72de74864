package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLockWait bounds how long an inventory transaction waits for a
// flight's lock before giving up with ErrBusy.
const DefaultLockWait = 2 * time.Second

// MemoryStore is an in-memory Store implementation. It backs the engine
// tests and single-process deployments. Each flight's inventory is guarded
// by its own lock, so transitions on different flights never contend.
type MemoryStore struct {
	mu        sync.RWMutex
	flights   map[uuid.UUID]*Flight
	seats     map[uuid.UUID][]*Seat // flightID -> seats, ascending label
	customers map[uuid.UUID]*Customer
	bookings  map[uuid.UUID]*Booking
	locks     map[uuid.UUID]chan struct{}
	lockWait  time.Duration
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flights:   make(map[uuid.UUID]*Flight),
		seats:     make(map[uuid.UUID][]*Seat),
		customers: make(map[uuid.UUID]*Customer),
		bookings:  make(map[uuid.UUID]*Booking),
		locks:     make(map[uuid.UUID]chan struct{}),
		lockWait:  DefaultLockWait,
	}
}

// SetLockWait overrides the bounded wait for flight locks
func (s *MemoryStore) SetLockWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockWait = d
}

// --- Flight Operations ---

func (s *MemoryStore) CreateFlight(ctx context.Context, f *Flight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFlightLocked(f)
}

// ProvisionFlight creates the flight and its seats under one lock hold, so
// a seat failure leaves no flight behind.
func (s *MemoryStore) ProvisionFlight(ctx context.Context, f *Flight, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.createFlightLocked(f); err != nil {
		return err
	}
	if err := s.provisionSeatsLocked(f.ID, labels); err != nil {
		delete(s.flights, f.ID)
		delete(s.locks, f.ID)
		return err
	}
	return nil
}

// createFlightLocked inserts the flight. Caller must hold s.mu.
func (s *MemoryStore) createFlightLocked(f *Flight) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if _, ok := s.flights[f.ID]; ok {
		return fmt.Errorf("flight %s: %w", f.ID, ErrAlreadyExists)
	}
	if f.AvailableSeats < 0 || f.AvailableSeats > f.TotalSeats {
		return fmt.Errorf("flight %s: available seats out of range", f.ID)
	}

	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	cp := *f
	s.flights[f.ID] = &cp
	s.locks[f.ID] = make(chan struct{}, 1)
	return nil
}

func (s *MemoryStore) GetFlight(ctx context.Context, id uuid.UUID) (*Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[id]
	if !ok {
		return nil, fmt.Errorf("flight %s: %w", id, ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) ListFlights(ctx context.Context) ([]Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flights := make([]Flight, 0, len(s.flights))
	for _, f := range s.flights {
		flights = append(flights, *f)
	}
	sort.Slice(flights, func(i, j int) bool {
		return flights[i].FlightNumber < flights[j].FlightNumber
	})
	return flights, nil
}

// --- Seat Operations ---

func (s *MemoryStore) ProvisionSeats(ctx context.Context, flightID uuid.UUID, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provisionSeatsLocked(flightID, labels)
}

// provisionSeatsLocked inserts one seat per label. Caller must hold s.mu.
func (s *MemoryStore) provisionSeatsLocked(flightID uuid.UUID, labels []string) error {
	if _, ok := s.flights[flightID]; !ok {
		return fmt.Errorf("flight %s: %w", flightID, ErrNotFound)
	}
	if len(s.seats[flightID]) > 0 {
		return fmt.Errorf("flight %s already has seats: %w", flightID, ErrAlreadyExists)
	}

	now := time.Now()
	seats := make([]*Seat, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		if seen[label] {
			return fmt.Errorf("duplicate seat label %q: %w", label, ErrAlreadyExists)
		}
		seen[label] = true
		seats = append(seats, &Seat{
			ID:        uuid.New(),
			FlightID:  flightID,
			Label:     label,
			Status:    SeatStatusFree,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].Label < seats[j].Label })
	s.seats[flightID] = seats
	return nil
}

func (s *MemoryStore) GetFlightSeats(ctx context.Context, flightID uuid.UUID) ([]Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.flights[flightID]; !ok {
		return nil, fmt.Errorf("flight %s: %w", flightID, ErrNotFound)
	}
	seats := make([]Seat, 0, len(s.seats[flightID]))
	for _, seat := range s.seats[flightID] {
		seats = append(seats, *seat)
	}
	return seats, nil
}

func (s *MemoryStore) GetBookingSeats(ctx context.Context, bookingID uuid.UUID) ([]Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
	}
	var seats []Seat
	for _, seat := range s.seats[b.FlightID] {
		if seat.BookingID != nil && *seat.BookingID == bookingID {
			seats = append(seats, *seat)
		}
	}
	return seats, nil
}

// --- Customer Operations ---

func (s *MemoryStore) CreateCustomer(ctx context.Context, c *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, ok := s.customers[c.ID]; ok {
		return fmt.Errorf("customer %s: %w", c.ID, ErrAlreadyExists)
	}
	c.CreatedAt = time.Now()
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// --- Booking Operations ---

func (s *MemoryStore) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	cp := *b
	cp.Seats = s.bookingSeatLabels(id, b.FlightID)
	return &cp, nil
}

func (s *MemoryStore) ListBookingsByCustomer(ctx context.Context, customerID uuid.UUID) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bookings []Booking
	for _, b := range s.bookings {
		if b.CustomerID != customerID {
			continue
		}
		cp := *b
		cp.Seats = s.bookingSeatLabels(b.ID, b.FlightID)
		bookings = append(bookings, cp)
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	return bookings, nil
}

// bookingSeatLabels collects the labels of seats linked to a booking.
// Caller must hold s.mu.
func (s *MemoryStore) bookingSeatLabels(bookingID, flightID uuid.UUID) []string {
	var labels []string
	for _, seat := range s.seats[flightID] {
		if seat.BookingID != nil && *seat.BookingID == bookingID {
			labels = append(labels, seat.Label)
		}
	}
	return labels
}

// --- Inventory Transactions ---

// InventoryTx acquires the flight's lock with a bounded wait, runs fn with
// writes staged in the transaction, and applies them only if fn succeeds.
// An error from fn leaves the store untouched.
func (s *MemoryStore) InventoryTx(ctx context.Context, flightID uuid.UUID, fn func(tx InventoryTx) error) error {
	s.mu.RLock()
	f, ok := s.flights[flightID]
	lock := s.locks[flightID]
	wait := s.lockWait
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("flight %s: %w", flightID, ErrNotFound)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("flight %s: %w", flightID, ErrBusy)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	s.mu.RLock()
	snapshot := *f
	s.mu.RUnlock()

	tx := &memoryTx{
		store:     s,
		flight:    snapshot,
		occupy:    make(map[uuid.UUID]uuid.UUID),
		release:   make(map[uuid.UUID]bool),
		statusSet: make(map[uuid.UUID]BookingStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx stages writes against one flight's inventory. Reads observe the
// committed state as of lock acquisition; the engine performs all reads and
// guards before its first write, so staged writes never need to be re-read.
type memoryTx struct {
	store        *MemoryStore
	flight       Flight
	newAvailable *int
	occupy       map[uuid.UUID]uuid.UUID
	release      map[uuid.UUID]bool
	newBookings  []Booking
	statusSet    map[uuid.UUID]BookingStatus
}

func (tx *memoryTx) Flight() *Flight {
	cp := tx.flight
	return &cp
}

func (tx *memoryTx) Booking(id uuid.UUID) (*Booking, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	b, ok := tx.store.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if b.FlightID != tx.flight.ID {
		return nil, fmt.Errorf("booking %s belongs to flight %s: %w", id, b.FlightID, ErrNotFound)
	}
	cp := *b
	cp.Seats = tx.store.bookingSeatLabels(id, b.FlightID)
	return &cp, nil
}

func (tx *memoryTx) CreateBooking(b *Booking) error {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if _, ok := tx.store.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s: %w", b.ID, ErrAlreadyExists)
	}
	if _, ok := tx.store.customers[b.CustomerID]; !ok {
		return fmt.Errorf("customer %s: %w", b.CustomerID, ErrNotFound)
	}
	if b.FlightID != tx.flight.ID {
		return fmt.Errorf("booking flight %s does not match transaction flight %s", b.FlightID, tx.flight.ID)
	}

	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	tx.newBookings = append(tx.newBookings, *b)
	return nil
}

func (tx *memoryTx) FreeSeats(limit int) ([]Seat, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	var seats []Seat
	for _, seat := range tx.store.seats[tx.flight.ID] {
		if seat.Status != SeatStatusFree {
			continue
		}
		seats = append(seats, *seat)
		if len(seats) == limit {
			break
		}
	}
	return seats, nil
}

func (tx *memoryTx) CountFreeSeats() (int, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	count := 0
	for _, seat := range tx.store.seats[tx.flight.ID] {
		if seat.Status == SeatStatusFree {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) ConfirmedPassengerSum() (int, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	sum := 0
	for _, b := range tx.store.bookings {
		if b.FlightID == tx.flight.ID && b.Status == BookingStatusConfirmed {
			sum += b.PassengerCount
		}
	}
	return sum, nil
}

func (tx *memoryTx) OccupySeats(seatIDs []uuid.UUID, bookingID uuid.UUID) error {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	byID := make(map[uuid.UUID]*Seat, len(tx.store.seats[tx.flight.ID]))
	for _, seat := range tx.store.seats[tx.flight.ID] {
		byID[seat.ID] = seat
	}
	for _, id := range seatIDs {
		seat, ok := byID[id]
		if !ok {
			return fmt.Errorf("seat %s on flight %s: %w", id, tx.flight.ID, ErrNotFound)
		}
		if seat.Status != SeatStatusFree || tx.occupy[id] != uuid.Nil {
			return fmt.Errorf("seat %s is not free", seat.Label)
		}
		tx.occupy[id] = bookingID
	}
	return nil
}

func (tx *memoryTx) ReleaseSeats(bookingID uuid.UUID) (int, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	count := 0
	for _, seat := range tx.store.seats[tx.flight.ID] {
		if seat.Status == SeatStatusOccupied && seat.BookingID != nil && *seat.BookingID == bookingID {
			tx.release[seat.ID] = true
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) SetAvailableSeats(n int) error {
	if n < 0 || n > tx.flight.TotalSeats {
		return fmt.Errorf("available seats %d out of range [0,%d]", n, tx.flight.TotalSeats)
	}
	tx.newAvailable = &n
	return nil
}

func (tx *memoryTx) SetBookingStatus(id uuid.UUID, status BookingStatus) error {
	if _, err := tx.Booking(id); err != nil {
		return err
	}
	tx.statusSet[id] = status
	return nil
}

// commit applies staged writes. Called only after fn succeeded, while the
// flight lock is still held.
func (tx *memoryTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	now := time.Now()
	for _, seat := range tx.store.seats[tx.flight.ID] {
		if bookingID, ok := tx.occupy[seat.ID]; ok {
			id := bookingID
			seat.Status = SeatStatusOccupied
			seat.BookingID = &id
			seat.UpdatedAt = now
		}
		if tx.release[seat.ID] {
			seat.Status = SeatStatusFree
			seat.BookingID = nil
			seat.UpdatedAt = now
		}
	}
	if tx.newAvailable != nil {
		f := tx.store.flights[tx.flight.ID]
		f.AvailableSeats = *tx.newAvailable
		f.UpdatedAt = now
	}
	for i := range tx.newBookings {
		cp := tx.newBookings[i]
		tx.store.bookings[cp.ID] = &cp
	}
	for id, status := range tx.statusSet {
		if b, ok := tx.store.bookings[id]; ok {
			b.Status = status
			b.UpdatedAt = now
		}
	}
}
