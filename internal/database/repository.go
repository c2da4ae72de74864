package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes surfaced as store sentinels
const (
	pgCodeLockNotAvailable = "55P03"
	pgCodeUniqueViolation  = "23505"
)

// Repository is the Postgres-backed Store. Inventory transactions lock the
// flight row FOR UPDATE, which serializes all claim/release work per flight
// while leaving other flights untouched.
type Repository struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, lockWait: DefaultLockWait}
}

// SetLockWait overrides the bounded wait for the flight row lock
func (r *Repository) SetLockWait(d time.Duration) {
	r.lockWait = d
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeLockNotAvailable:
			return ErrBusy
		case pgCodeUniqueViolation:
			return ErrAlreadyExists
		}
	}
	return err
}

// --- Flight Operations ---

func (r *Repository) CreateFlight(ctx context.Context, f *Flight) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	query := `
		INSERT INTO flights (id, flight_number, origin, destination, departure_time, arrival_time, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		f.ID, f.FlightNumber, f.Origin, f.Destination,
		f.DepartureTime, f.ArrivalTime, f.TotalSeats, f.AvailableSeats,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create flight: %w", mapPgError(err))
	}
	return nil
}

func (r *Repository) GetFlight(ctx context.Context, id uuid.UUID) (*Flight, error) {
	query := `
		SELECT id, flight_number, origin, destination, departure_time, arrival_time,
		       total_seats, available_seats, created_at, updated_at
		FROM flights
		WHERE id = $1
	`
	var f Flight
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.FlightNumber, &f.Origin, &f.Destination,
		&f.DepartureTime, &f.ArrivalTime, &f.TotalSeats, &f.AvailableSeats,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("flight %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get flight: %w", err)
	}
	return &f, nil
}

func (r *Repository) ListFlights(ctx context.Context) ([]Flight, error) {
	query := `
		SELECT id, flight_number, origin, destination, departure_time, arrival_time,
		       total_seats, available_seats, created_at, updated_at
		FROM flights
		ORDER BY departure_time ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		var f Flight
		err := rows.Scan(
			&f.ID, &f.FlightNumber, &f.Origin, &f.Destination,
			&f.DepartureTime, &f.ArrivalTime, &f.TotalSeats, &f.AvailableSeats,
			&f.CreatedAt, &f.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

// ProvisionFlight inserts the flight and its seats in one transaction, so
// a failed seat insert rolls the flight back with it.
func (r *Repository) ProvisionFlight(ctx context.Context, f *Flight, labels []string) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO flights (id, flight_number, origin, destination, departure_time, arrival_time, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, f.ID, f.FlightNumber, f.Origin, f.Destination,
		f.DepartureTime, f.ArrivalTime, f.TotalSeats, f.AvailableSeats,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create flight: %w", mapPgError(err))
	}

	for _, label := range labels {
		_, err = tx.Exec(ctx, `
			INSERT INTO seats (id, flight_id, label, status)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), f.ID, label, SeatStatusFree)
		if err != nil {
			return fmt.Errorf("failed to insert seat %q: %w", label, mapPgError(err))
		}
	}
	return tx.Commit(ctx)
}

// --- Seat Operations ---

func (r *Repository) ProvisionSeats(ctx context.Context, flightID uuid.UUID, labels []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM flights WHERE id = $1 FOR UPDATE`, flightID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("flight %s: %w", flightID, ErrNotFound)
		}
		return fmt.Errorf("failed to lock flight: %w", err)
	}

	var existing int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM seats WHERE flight_id = $1`, flightID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to count seats: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("flight %s already has seats: %w", flightID, ErrAlreadyExists)
	}

	for _, label := range labels {
		_, err = tx.Exec(ctx, `
			INSERT INTO seats (id, flight_id, label, status)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), flightID, label, SeatStatusFree)
		if err != nil {
			return fmt.Errorf("failed to insert seat %q: %w", label, mapPgError(err))
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetFlightSeats(ctx context.Context, flightID uuid.UUID) ([]Seat, error) {
	query := `
		SELECT id, flight_id, label, status, booking_id, created_at, updated_at
		FROM seats
		WHERE flight_id = $1
		ORDER BY label ASC
	`
	rows, err := r.pool.Query(ctx, query, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	defer rows.Close()
	return scanSeats(rows)
}

func (r *Repository) GetBookingSeats(ctx context.Context, bookingID uuid.UUID) ([]Seat, error) {
	query := `
		SELECT id, flight_id, label, status, booking_id, created_at, updated_at
		FROM seats
		WHERE booking_id = $1
		ORDER BY label ASC
	`
	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking seats: %w", err)
	}
	defer rows.Close()
	return scanSeats(rows)
}

func scanSeats(rows pgx.Rows) ([]Seat, error) {
	var seats []Seat
	for rows.Next() {
		var s Seat
		err := rows.Scan(&s.ID, &s.FlightID, &s.Label, &s.Status, &s.BookingID, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// --- Customer Operations ---

func (r *Repository) CreateCustomer(ctx context.Context, c *Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, name, email)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.Name, c.Email).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", mapPgError(err))
	}
	return nil
}

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// --- Booking Operations ---

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var b Booking
	err := r.pool.QueryRow(ctx, `
		SELECT id, flight_id, customer_id, passenger_count, status, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(&b.ID, &b.FlightID, &b.CustomerID, &b.PassengerCount, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT label FROM seats WHERE booking_id = $1 ORDER BY label ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking seats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan seat label: %w", err)
		}
		b.Seats = append(b.Seats, label)
	}
	return &b, rows.Err()
}

func (r *Repository) ListBookingsByCustomer(ctx context.Context, customerID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, flight_id, customer_id, passenger_count, status, created_at, updated_at
		FROM bookings
		WHERE customer_id = $1
		ORDER BY created_at ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		var b Booking
		err := rows.Scan(&b.ID, &b.FlightID, &b.CustomerID, &b.PassengerCount, &b.Status, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// --- Inventory Transactions ---

// InventoryTx opens a transaction, locks the flight row FOR UPDATE with a
// bounded lock wait, runs fn, and commits only if fn succeeds. A lock wait
// timeout surfaces as ErrBusy with nothing applied.
func (r *Repository) InventoryTx(ctx context.Context, flightID uuid.UUID, fn func(tx InventoryTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockWait.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	var f Flight
	err = tx.QueryRow(ctx, `
		SELECT id, flight_number, origin, destination, departure_time, arrival_time,
		       total_seats, available_seats, created_at, updated_at
		FROM flights
		WHERE id = $1
		FOR UPDATE
	`, flightID).Scan(
		&f.ID, &f.FlightNumber, &f.Origin, &f.Destination,
		&f.DepartureTime, &f.ArrivalTime, &f.TotalSeats, &f.AvailableSeats,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("flight %s: %w", flightID, ErrNotFound)
		}
		return fmt.Errorf("failed to lock flight: %w", mapPgError(err))
	}

	ptx := &pgTx{ctx: ctx, tx: tx, flight: f}
	if err := fn(ptx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx    context.Context
	tx     pgx.Tx
	flight Flight
}

func (t *pgTx) Flight() *Flight {
	cp := t.flight
	return &cp
}

func (t *pgTx) Booking(id uuid.UUID) (*Booking, error) {
	var b Booking
	err := t.tx.QueryRow(t.ctx, `
		SELECT id, flight_id, customer_id, passenger_count, status, created_at, updated_at
		FROM bookings
		WHERE id = $1 AND flight_id = $2
	`, id, t.flight.ID).Scan(&b.ID, &b.FlightID, &b.CustomerID, &b.PassengerCount, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	rows, err := t.tx.Query(t.ctx, `
		SELECT label FROM seats WHERE booking_id = $1 ORDER BY label ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking seats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan seat label: %w", err)
		}
		b.Seats = append(b.Seats, label)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) CreateBooking(b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.FlightID != t.flight.ID {
		return fmt.Errorf("booking flight %s does not match transaction flight %s", b.FlightID, t.flight.ID)
	}
	err := t.tx.QueryRow(t.ctx, `
		INSERT INTO bookings (id, flight_id, customer_id, passenger_count, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, b.ID, b.FlightID, b.CustomerID, b.PassengerCount, b.Status).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) FreeSeats(limit int) ([]Seat, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT id, flight_id, label, status, booking_id, created_at, updated_at
		FROM seats
		WHERE flight_id = $1 AND status = $2
		ORDER BY label ASC
		LIMIT $3
	`, t.flight.ID, SeatStatusFree, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query free seats: %w", err)
	}
	defer rows.Close()
	return scanSeats(rows)
}

func (t *pgTx) CountFreeSeats() (int, error) {
	var count int
	err := t.tx.QueryRow(t.ctx, `
		SELECT COUNT(*) FROM seats WHERE flight_id = $1 AND status = $2
	`, t.flight.ID, SeatStatusFree).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count free seats: %w", err)
	}
	return count, nil
}

func (t *pgTx) ConfirmedPassengerSum() (int, error) {
	var sum int
	err := t.tx.QueryRow(t.ctx, `
		SELECT COALESCE(SUM(passenger_count), 0)
		FROM bookings
		WHERE flight_id = $1 AND status = $2
	`, t.flight.ID, BookingStatusConfirmed).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum confirmed passengers: %w", err)
	}
	return sum, nil
}

func (t *pgTx) OccupySeats(seatIDs []uuid.UUID, bookingID uuid.UUID) error {
	for _, id := range seatIDs {
		result, err := t.tx.Exec(t.ctx, `
			UPDATE seats
			SET status = $1, booking_id = $2, updated_at = NOW()
			WHERE id = $3 AND flight_id = $4 AND status = $5
		`, SeatStatusOccupied, bookingID, id, t.flight.ID, SeatStatusFree)
		if err != nil {
			return fmt.Errorf("failed to occupy seat: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("seat %s is not free on flight %s", id, t.flight.ID)
		}
	}
	return nil
}

func (t *pgTx) ReleaseSeats(bookingID uuid.UUID) (int, error) {
	result, err := t.tx.Exec(t.ctx, `
		UPDATE seats
		SET status = $1, booking_id = NULL, updated_at = NOW()
		WHERE flight_id = $2 AND booking_id = $3 AND status = $4
	`, SeatStatusFree, t.flight.ID, bookingID, SeatStatusOccupied)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (t *pgTx) SetAvailableSeats(n int) error {
	if n < 0 || n > t.flight.TotalSeats {
		return fmt.Errorf("available seats %d out of range [0,%d]", n, t.flight.TotalSeats)
	}
	_, err := t.tx.Exec(t.ctx, `
		UPDATE flights SET available_seats = $1, updated_at = NOW() WHERE id = $2
	`, n, t.flight.ID)
	if err != nil {
		return fmt.Errorf("failed to update available seats: %w", err)
	}
	return nil
}

func (t *pgTx) SetBookingStatus(id uuid.UUID, status BookingStatus) error {
	result, err := t.tx.Exec(t.ctx, `
		UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND flight_id = $3
	`, status, id, t.flight.ID)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}
