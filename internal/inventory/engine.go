package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
)

// Engine is the seat-allocation and booking state-transition engine. All
// transitions run inside a flight-scoped inventory transaction, so the seat
// pool and the available-seat counter are never observably out of step.
//
// Transitions are explicit operations invoked by callers, not side effects
// of a write. Once a transition commits it is not revocable; callers undo
// by issuing a compensating transition (confirm then cancel).
type Engine struct {
	store  database.Store
	logger *zap.SugaredLogger
}

// NewEngine creates an Engine on top of a Store
func NewEngine(store database.Store, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{store: store, logger: logger}
}

// ProvisionFlightRequest describes a new flight and its seat capacity
type ProvisionFlightRequest struct {
	FlightNumber  string    `json:"flightNumber"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	Capacity      int       `json:"capacity"`
}

// ProvisionFlight creates a flight and bulk-creates one FREE seat per
// capacity unit with sequential labels. available_seats starts at capacity.
func (e *Engine) ProvisionFlight(ctx context.Context, req ProvisionFlightRequest) (*database.Flight, error) {
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, req.Capacity)
	}
	if req.FlightNumber == "" {
		return nil, fmt.Errorf("%w: flight number is required", ErrInvalidArgument)
	}

	flight := &database.Flight{
		ID:             uuid.New(),
		FlightNumber:   req.FlightNumber,
		Origin:         req.Origin,
		Destination:    req.Destination,
		DepartureTime:  req.DepartureTime,
		ArrivalTime:    req.ArrivalTime,
		TotalSeats:     req.Capacity,
		AvailableSeats: req.Capacity,
	}
	if err := e.store.ProvisionFlight(ctx, flight, SeatLabels(req.Capacity)); err != nil {
		return nil, err
	}

	e.logger.Infow("flight provisioned",
		"flightID", flight.ID, "flightNumber", flight.FlightNumber, "capacity", req.Capacity)
	return flight, nil
}

// CreateBookingRequest describes a new booking. When Confirm is set the
// booking is created directly in CONFIRMED state, claiming seats in the
// same transaction.
type CreateBookingRequest struct {
	FlightID       uuid.UUID `json:"flightId"`
	CustomerID     uuid.UUID `json:"customerId"`
	PassengerCount int       `json:"passengerCount"`
	Confirm        bool      `json:"confirm"`
}

// CreateBooking creates a booking in PENDING state, or directly in
// CONFIRMED state when req.Confirm is set.
func (e *Engine) CreateBooking(ctx context.Context, req CreateBookingRequest) (*database.Booking, error) {
	if req.PassengerCount <= 0 {
		return nil, fmt.Errorf("%w: passenger count must be positive, got %d", ErrInvalidArgument, req.PassengerCount)
	}
	if req.FlightID == uuid.Nil || req.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("%w: flight and customer ids are required", ErrInvalidArgument)
	}
	if _, err := e.store.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	booking := &database.Booking{
		ID:             uuid.New(),
		FlightID:       req.FlightID,
		CustomerID:     req.CustomerID,
		PassengerCount: req.PassengerCount,
		Status:         database.BookingStatusPending,
	}

	err := e.store.InventoryTx(ctx, req.FlightID, func(tx database.InventoryTx) error {
		if !req.Confirm {
			return tx.CreateBooking(booking)
		}

		seats, err := e.selectSeats(tx, req.PassengerCount)
		if err != nil {
			return err
		}
		booking.Status = database.BookingStatusConfirmed
		if err := tx.CreateBooking(booking); err != nil {
			return err
		}
		return e.claim(tx, booking, seats)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("booking created",
		"bookingID", booking.ID, "flightID", booking.FlightID,
		"passengers", booking.PassengerCount, "status", booking.Status)
	return booking, nil
}

// ConfirmBooking transitions a booking PENDING -> CONFIRMED, claiming
// passenger_count seats and decrementing the counter in one atomic unit.
// Confirming an already-CONFIRMED booking is a no-op success.
func (e *Engine) ConfirmBooking(ctx context.Context, bookingID uuid.UUID) (*database.Booking, error) {
	current, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var result *database.Booking
	err = e.store.InventoryTx(ctx, current.FlightID, func(tx database.InventoryTx) error {
		b, err := tx.Booking(bookingID)
		if err != nil {
			return err
		}
		switch b.Status {
		case database.BookingStatusCancelled:
			return fmt.Errorf("%w: cannot confirm cancelled booking %s", ErrTerminalState, bookingID)
		case database.BookingStatusConfirmed:
			// Idempotent re-confirmation: no re-claim, no double decrement.
			result = b
			return nil
		}

		seats, err := e.selectSeats(tx, b.PassengerCount)
		if err != nil {
			return err
		}
		if err := e.claim(tx, b, seats); err != nil {
			return err
		}
		if err := tx.SetBookingStatus(bookingID, database.BookingStatusConfirmed); err != nil {
			return err
		}
		b.Status = database.BookingStatusConfirmed
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("booking confirmed",
		"bookingID", bookingID, "flightID", result.FlightID, "seats", result.Seats)
	return result, nil
}

// CancelBooking transitions a booking to CANCELLED, releasing any seats it
// holds. The counter is incremented by the booking's own passenger_count,
// and only when the prior state was CONFIRMED: the state machine, not the
// seat linkage, is the source of truth for the entitlement.
func (e *Engine) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*database.Booking, error) {
	current, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var result *database.Booking
	err = e.store.InventoryTx(ctx, current.FlightID, func(tx database.InventoryTx) error {
		b, err := tx.Booking(bookingID)
		if err != nil {
			return err
		}
		if b.Status == database.BookingStatusCancelled {
			return fmt.Errorf("%w: booking %s is already cancelled", ErrTerminalState, bookingID)
		}

		released, err := tx.ReleaseSeats(bookingID)
		if err != nil {
			return err
		}
		if b.Status == database.BookingStatusConfirmed {
			if released != b.PassengerCount {
				e.logger.Warnw("released seat count does not match passenger count",
					"bookingID", bookingID, "released", released, "passengers", b.PassengerCount)
			}
			if err := incrementAvailable(tx, b.PassengerCount); err != nil {
				return err
			}
		}
		if err := tx.SetBookingStatus(bookingID, database.BookingStatusCancelled); err != nil {
			return err
		}
		b.Status = database.BookingStatusCancelled
		b.Seats = nil
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("booking cancelled", "bookingID", bookingID, "flightID", result.FlightID)
	return result, nil
}

// selectSeats applies the allocation policy: first-fit in ascending label
// order among FREE seats. All-or-nothing: fewer free seats than requested
// is ErrInsufficientCapacity before anything is touched.
func (e *Engine) selectSeats(tx database.InventoryTx, count int) ([]database.Seat, error) {
	seats, err := tx.FreeSeats(count)
	if err != nil {
		return nil, err
	}
	if len(seats) < count {
		return nil, fmt.Errorf("%w: requested %d seats, %d free", ErrInsufficientCapacity, count, len(seats))
	}
	return seats, nil
}

// claim marks the selected seats occupied and decrements the counter as one
// unit. The counter guard runs before the seats are touched.
func (e *Engine) claim(tx database.InventoryTx, b *database.Booking, seats []database.Seat) error {
	if err := decrementAvailable(tx, b.PassengerCount); err != nil {
		return err
	}
	seatIDs := make([]uuid.UUID, len(seats))
	labels := make([]string, len(seats))
	for i, s := range seats {
		seatIDs[i] = s.ID
		labels[i] = s.Label
	}
	if err := tx.OccupySeats(seatIDs, b.ID); err != nil {
		return err
	}
	b.Seats = labels
	return nil
}
