package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
	"github.com/cx-tal-miterani/flight-inventory/internal/inventory"
	"github.com/cx-tal-miterani/flight-inventory/internal/service"
)

// MockBookingService is a mock implementation of service.BookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) ProvisionFlight(ctx context.Context, req inventory.ProvisionFlightRequest) (*database.Flight, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Flight), args.Error(1)
}

func (m *MockBookingService) GetFlights(ctx context.Context) ([]database.Flight, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.Flight), args.Error(1)
}

func (m *MockBookingService) GetFlight(ctx context.Context, flightID string) (*database.Flight, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Flight), args.Error(1)
}

func (m *MockBookingService) GetFlightSeats(ctx context.Context, flightID string) ([]database.Seat, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.Seat), args.Error(1)
}

func (m *MockBookingService) AuditFlight(ctx context.Context, flightID string) (*inventory.Report, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Report), args.Error(1)
}

func (m *MockBookingService) CreateCustomer(ctx context.Context, req service.CreateCustomerRequest) (*database.Customer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Customer), args.Error(1)
}

func (m *MockBookingService) GetCustomerBookings(ctx context.Context, customerID string) ([]database.Booking, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.Booking), args.Error(1)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*database.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Booking), args.Error(1)
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string) (*database.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Booking), args.Error(1)
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, bookingID string) (*database.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Booking), args.Error(1)
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID string) (*database.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Booking), args.Error(1)
}
