package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
)

func setupEngine(t *testing.T, capacity int) (*Engine, *database.MemoryStore, *database.Flight, *database.Customer) {
	t.Helper()
	store := database.NewMemoryStore()
	engine := NewEngine(store, zap.NewNop().Sugar())

	now := time.Now()
	flight, err := engine.ProvisionFlight(context.Background(), ProvisionFlightRequest{
		FlightNumber:  "AA123",
		Origin:        "New York (JFK)",
		Destination:   "Los Angeles (LAX)",
		DepartureTime: now.Add(24 * time.Hour),
		ArrivalTime:   now.Add(30 * time.Hour),
		Capacity:      capacity,
	})
	require.NoError(t, err)

	customer := &database.Customer{Name: "John Doe", Email: "john@example.com"}
	require.NoError(t, store.CreateCustomer(context.Background(), customer))

	return engine, store, flight, customer
}

func TestProvisionFlight(t *testing.T) {
	_, store, flight, _ := setupEngine(t, 150)
	ctx := context.Background()

	assert.Equal(t, 150, flight.TotalSeats)
	assert.Equal(t, 150, flight.AvailableSeats)

	seats, err := store.GetFlightSeats(ctx, flight.ID)
	require.NoError(t, err)
	require.Len(t, seats, 150)
	assert.Equal(t, "001", seats[0].Label)
	assert.Equal(t, "150", seats[149].Label)
	for _, seat := range seats {
		assert.Equal(t, database.SeatStatusFree, seat.Status)
		assert.Nil(t, seat.BookingID)
		assert.Equal(t, flight.ID, seat.FlightID)
	}

	// A second seat generation for the same flight must fail.
	err = store.ProvisionSeats(ctx, flight.ID, SeatLabels(150))
	assert.ErrorIs(t, err, database.ErrAlreadyExists)
}

// seatFailStore fails flight provisioning at the store boundary.
type seatFailStore struct {
	database.Store
	err error
}

func (s *seatFailStore) ProvisionFlight(ctx context.Context, f *database.Flight, labels []string) error {
	return s.err
}

func TestProvisionFlight_SeatFailureLeavesNothing(t *testing.T) {
	mem := database.NewMemoryStore()
	boom := errors.New("seat insert failed")
	engine := NewEngine(&seatFailStore{Store: mem, err: boom}, zap.NewNop().Sugar())

	_, err := engine.ProvisionFlight(context.Background(), ProvisionFlightRequest{
		FlightNumber: "AA123",
		Capacity:     150,
	})
	assert.ErrorIs(t, err, boom)

	// A failed provisioning persists no flight.
	flights, err := mem.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestProvisionFlight_InvalidCapacity(t *testing.T) {
	store := database.NewMemoryStore()
	engine := NewEngine(store, zap.NewNop().Sugar())

	_, err := engine.ProvisionFlight(context.Background(), ProvisionFlightRequest{
		FlightNumber: "AA123",
		Capacity:     0,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.ProvisionFlight(context.Background(), ProvisionFlightRequest{
		FlightNumber: "AA123",
		Capacity:     -3,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.ProvisionFlight(context.Background(), ProvisionFlightRequest{
		Capacity: 10,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSeatLabels(t *testing.T) {
	tests := []struct {
		capacity int
		first    string
		last     string
	}{
		{capacity: 1, first: "001", last: "001"},
		{capacity: 150, first: "001", last: "150"},
		{capacity: 999, first: "001", last: "999"},
		{capacity: 1000, first: "0001", last: "1000"},
	}

	for _, tt := range tests {
		labels := SeatLabels(tt.capacity)
		require.Len(t, labels, tt.capacity)
		assert.Equal(t, tt.first, labels[0])
		assert.Equal(t, tt.last, labels[tt.capacity-1])
	}
}

func TestCreateBooking_Pending(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, database.BookingStatusPending, booking.Status)
	assert.Empty(t, booking.Seats)

	// A pending booking holds no seats and leaves the counter alone.
	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, f.AvailableSeats)

	seats, err := store.GetBookingSeats(ctx, booking.ID)
	require.NoError(t, err)
	assert.Empty(t, seats)
}

func TestCreateBooking_DirectConfirm(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 2,
		Confirm:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, database.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, []string{"001", "002"}, booking.Seats)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 148, f.AvailableSeats)
}

func TestCreateBooking_InvalidArguments(t *testing.T) {
	engine, _, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	_, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = engine.CreateBooking(ctx, CreateBookingRequest{
		CustomerID:     customer.ID,
		PassengerCount: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateBooking_UnknownCustomer(t *testing.T) {
	engine, _, flight, _ := setupEngine(t, 150)

	_, err := engine.CreateBooking(context.Background(), CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     uuid.New(),
		PassengerCount: 1,
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestConfirmBooking(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 2,
	})
	require.NoError(t, err)

	confirmed, err := engine.ConfirmBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, database.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, []string{"001", "002"}, confirmed.Seats)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 148, f.AvailableSeats)

	seats, err := store.GetBookingSeats(ctx, booking.ID)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	for _, seat := range seats {
		assert.Equal(t, database.SeatStatusOccupied, seat.Status)
		require.NotNil(t, seat.BookingID)
		assert.Equal(t, booking.ID, *seat.BookingID)
	}

	report, err := engine.CheckFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "mismatches: %v", report.Mismatches)
}

func TestConfirmBooking_Idempotent(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 2,
		Confirm:        true,
	})
	require.NoError(t, err)

	// Re-confirmation is a no-op success: no re-claim, no double decrement,
	// and the response carries the same seat labels as the first confirm.
	again, err := engine.ConfirmBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, database.BookingStatusConfirmed, again.Status)
	assert.Equal(t, booking.Seats, again.Seats)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 148, f.AvailableSeats)

	seats, err := store.GetBookingSeats(ctx, booking.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 2)
}

func TestConfirmBooking_InsufficientCapacity(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 1)
	ctx := context.Background()

	first, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 1,
		Confirm:        true,
	})
	require.NoError(t, err)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.AvailableSeats)

	// Second confirm against an exhausted pool fails and changes nothing.
	_, err = engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 1,
		Confirm:        true,
	})
	assert.ErrorIs(t, err, ErrInsufficientCapacity)

	f, err = store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.AvailableSeats)

	seats, err := store.GetBookingSeats(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 1)

	report, err := engine.CheckFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestConfirmBooking_Cancelled(t *testing.T) {
	engine, _, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 1,
	})
	require.NoError(t, err)

	_, err = engine.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)

	_, err = engine.ConfirmBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestCancelBooking_Confirmed(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 2,
		Confirm:        true,
	})
	require.NoError(t, err)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	require.Equal(t, 148, f.AvailableSeats)

	cancelled, err := engine.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, database.BookingStatusCancelled, cancelled.Status)

	// Seats are freed and unlinked, the counter is restored.
	f, err = store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, f.AvailableSeats)

	seats, err := store.GetBookingSeats(ctx, booking.ID)
	require.NoError(t, err)
	assert.Empty(t, seats)

	all, err := store.GetFlightSeats(ctx, flight.ID)
	require.NoError(t, err)
	for _, seat := range all {
		assert.Equal(t, database.SeatStatusFree, seat.Status)
		assert.Nil(t, seat.BookingID)
	}

	report, err := engine.CheckFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestCancelBooking_Pending(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 3,
	})
	require.NoError(t, err)

	// Cancelling a pending booking releases nothing and must not
	// increment the counter.
	cancelled, err := engine.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, database.BookingStatusCancelled, cancelled.Status)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, f.AvailableSeats)
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	engine, _, flight, customer := setupEngine(t, 150)
	ctx := context.Background()

	booking, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 1,
		Confirm:        true,
	})
	require.NoError(t, err)

	_, err = engine.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)

	_, err = engine.CancelBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestConcurrentConfirm_LastSeat(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 1)
	ctx := context.Background()

	first, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 1,
	})
	require.NoError(t, err)
	second, err := engine.CreateBooking(ctx, CreateBookingRequest{
		FlightID:       flight.ID,
		CustomerID:     customer.ID,
		PassengerCount: 1,
	})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = engine.ConfirmBooking(ctx, first.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = engine.ConfirmBooking(ctx, second.ID)
	}()
	wg.Wait()

	// Exactly one confirm wins; the loser sees insufficient capacity.
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientCapacity)
		}
	}
	assert.Equal(t, 1, winners)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.AvailableSeats)

	report, err := engine.CheckFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestConcurrentConfirm_NoDoubleAllocation(t *testing.T) {
	engine, store, flight, customer := setupEngine(t, 10)
	ctx := context.Background()

	const bookings = 5
	bookingIDs := make([]*database.Booking, bookings)
	for i := range bookingIDs {
		b, err := engine.CreateBooking(ctx, CreateBookingRequest{
			FlightID:       flight.ID,
			CustomerID:     customer.ID,
			PassengerCount: 2,
		})
		require.NoError(t, err)
		bookingIDs[i] = b
	}

	var wg sync.WaitGroup
	wg.Add(bookings)
	for i := range bookingIDs {
		go func(i int) {
			defer wg.Done()
			_, _ = engine.ConfirmBooking(ctx, bookingIDs[i].ID)
		}(i)
	}
	wg.Wait()

	// Every occupied seat belongs to exactly one booking.
	seats, err := store.GetFlightSeats(ctx, flight.ID)
	require.NoError(t, err)
	occupied := 0
	for _, seat := range seats {
		if seat.Status == database.SeatStatusOccupied {
			occupied++
			require.NotNil(t, seat.BookingID)
		}
	}
	assert.Equal(t, 10, occupied)

	f, err := store.GetFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.AvailableSeats)

	report, err := engine.CheckFlight(ctx, flight.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "mismatches: %v", report.Mismatches)
}
