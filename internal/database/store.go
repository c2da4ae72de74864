package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrBusy is returned when the flight inventory lock cannot be acquired
	// within the configured wait. Callers may retry.
	ErrBusy = errors.New("inventory busy")
)

// Store is the durable collection boundary the inventory engine runs
// against. Both implementations (Postgres and in-memory) enforce
// referential integrity: a seat's flight reference and a booking's
// flight/customer references must always resolve.
type Store interface {
	CreateFlight(ctx context.Context, f *Flight) error
	GetFlight(ctx context.Context, id uuid.UUID) (*Flight, error)
	ListFlights(ctx context.Context) ([]Flight, error)

	// ProvisionFlight creates the flight and one seat per label as a single
	// atomic unit. On any failure nothing is persisted: a flight can never
	// exist durably with a partial or empty seat pool.
	ProvisionFlight(ctx context.Context, f *Flight, labels []string) error

	// ProvisionSeats creates one seat per label for the flight. It fails
	// with ErrAlreadyExists if the flight already has seats.
	ProvisionSeats(ctx context.Context, flightID uuid.UUID, labels []string) error
	GetFlightSeats(ctx context.Context, flightID uuid.UUID) ([]Seat, error)
	GetBookingSeats(ctx context.Context, bookingID uuid.UUID) ([]Seat, error)

	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)

	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookingsByCustomer(ctx context.Context, customerID uuid.UUID) ([]Booking, error)

	// InventoryTx runs fn inside a unit of work holding exclusive access to
	// one flight's inventory (its seat rows and available-seat counter).
	// If fn returns an error, none of its writes are applied. Acquiring the
	// flight lock is bounded; on expiry InventoryTx returns ErrBusy. No
	// other flight's lock is ever taken inside fn, so cross-flight deadlock
	// cannot occur.
	InventoryTx(ctx context.Context, flightID uuid.UUID, fn func(tx InventoryTx) error) error
}

// InventoryTx is the set of operations available inside a flight-scoped
// unit of work. All reads observe a consistent snapshot of the flight's
// inventory as of lock acquisition.
type InventoryTx interface {
	// Flight returns the locked flight record.
	Flight() *Flight
	Booking(id uuid.UUID) (*Booking, error)
	CreateBooking(b *Booking) error

	// FreeSeats returns up to limit FREE seats in ascending label order.
	FreeSeats(limit int) ([]Seat, error)
	CountFreeSeats() (int, error)
	// ConfirmedPassengerSum returns the sum of passenger counts over the
	// flight's CONFIRMED bookings.
	ConfirmedPassengerSum() (int, error)

	// OccupySeats marks the given seats OCCUPIED and links them to the
	// booking. Every seat must belong to the flight and be FREE.
	OccupySeats(seatIDs []uuid.UUID, bookingID uuid.UUID) error
	// ReleaseSeats frees every seat on the flight currently linked to the
	// booking and clears the link. Returns the number of seats released;
	// zero is not an error.
	ReleaseSeats(bookingID uuid.UUID) (int, error)

	SetAvailableSeats(n int) error
	SetBookingStatus(id uuid.UUID, status BookingStatus) error
}
