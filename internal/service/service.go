package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
	"github.com/cx-tal-miterani/flight-inventory/internal/inventory"
	"github.com/cx-tal-miterani/flight-inventory/internal/websocket"
)

// flightCacheTTL bounds how stale a cached availability read may be. The
// cache is invalidated on every completed transition, so the TTL only
// covers writes from other processes.
const flightCacheTTL = 5 * time.Second

const (
	flightListCacheKey   = "flights"
	flightCacheKeyPrefix = "flight:"
)

// CreateCustomerRequest represents a request to register a customer
type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateBookingRequest represents a request to create a booking
type CreateBookingRequest struct {
	FlightID       string `json:"flightId"`
	CustomerID     string `json:"customerId"`
	PassengerCount int    `json:"passengerCount"`
	Confirm        bool   `json:"confirm"`
}

// BookingService defines the booking service interface
type BookingService interface {
	ProvisionFlight(ctx context.Context, req inventory.ProvisionFlightRequest) (*database.Flight, error)
	GetFlights(ctx context.Context) ([]database.Flight, error)
	GetFlight(ctx context.Context, flightID string) (*database.Flight, error)
	GetFlightSeats(ctx context.Context, flightID string) ([]database.Seat, error)
	AuditFlight(ctx context.Context, flightID string) (*inventory.Report, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*database.Customer, error)
	GetCustomerBookings(ctx context.Context, customerID string) ([]database.Booking, error)
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*database.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*database.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID string) (*database.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) (*database.Booking, error)
}

// bookingServiceImpl implements BookingService
type bookingServiceImpl struct {
	engine *inventory.Engine
	store  database.Store
	cache  *redis.Client // nil disables caching
	hub    *websocket.Hub
	logger *zap.SugaredLogger
}

// NewBookingService creates a new BookingService. cache and hub may be nil;
// the service then skips caching and broadcasting.
func NewBookingService(engine *inventory.Engine, store database.Store, cache *redis.Client, hub *websocket.Hub, logger *zap.SugaredLogger) BookingService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &bookingServiceImpl{
		engine: engine,
		store:  store,
		cache:  cache,
		hub:    hub,
		logger: logger,
	}
}

func (s *bookingServiceImpl) ProvisionFlight(ctx context.Context, req inventory.ProvisionFlightRequest) (*database.Flight, error) {
	flight, err := s.engine.ProvisionFlight(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateFlight(ctx, flight.ID.String())
	return flight, nil
}

func (s *bookingServiceImpl) GetFlights(ctx context.Context) ([]database.Flight, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, flightListCacheKey).Bytes(); err == nil {
			var flights []database.Flight
			if err := json.Unmarshal(data, &flights); err == nil {
				return flights, nil
			}
		}
	}

	flights, err := s.store.ListFlights(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, flightListCacheKey, flights)
	return flights, nil
}

func (s *bookingServiceImpl) GetFlight(ctx context.Context, flightID string) (*database.Flight, error) {
	id, err := parseID(flightID, "flight")
	if err != nil {
		return nil, err
	}

	key := flightCacheKeyPrefix + flightID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var flight database.Flight
			if err := json.Unmarshal(data, &flight); err == nil {
				return &flight, nil
			}
		}
	}

	flight, err := s.store.GetFlight(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, flight)
	return flight, nil
}

func (s *bookingServiceImpl) GetFlightSeats(ctx context.Context, flightID string) ([]database.Seat, error) {
	id, err := parseID(flightID, "flight")
	if err != nil {
		return nil, err
	}
	return s.store.GetFlightSeats(ctx, id)
}

func (s *bookingServiceImpl) AuditFlight(ctx context.Context, flightID string) (*inventory.Report, error) {
	id, err := parseID(flightID, "flight")
	if err != nil {
		return nil, err
	}
	return s.engine.CheckFlight(ctx, id)
}

func (s *bookingServiceImpl) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*database.Customer, error) {
	if req.Name == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: customer name and email are required", inventory.ErrInvalidArgument)
	}
	customer := &database.Customer{Name: req.Name, Email: req.Email}
	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *bookingServiceImpl) GetCustomerBookings(ctx context.Context, customerID string) ([]database.Booking, error) {
	id, err := parseID(customerID, "customer")
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListBookingsByCustomer(ctx, id)
}

func (s *bookingServiceImpl) CreateBooking(ctx context.Context, req CreateBookingRequest) (*database.Booking, error) {
	flightID, err := parseID(req.FlightID, "flight")
	if err != nil {
		return nil, err
	}
	customerID, err := parseID(req.CustomerID, "customer")
	if err != nil {
		return nil, err
	}

	booking, err := s.engine.CreateBooking(ctx, inventory.CreateBookingRequest{
		FlightID:       flightID,
		CustomerID:     customerID,
		PassengerCount: req.PassengerCount,
		Confirm:        req.Confirm,
	})
	if err != nil {
		return nil, err
	}

	if booking.Status == database.BookingStatusConfirmed {
		s.invalidateFlight(ctx, req.FlightID)
		s.broadcastClaimed(booking)
	}
	return booking, nil
}

func (s *bookingServiceImpl) GetBooking(ctx context.Context, bookingID string) (*database.Booking, error) {
	id, err := parseID(bookingID, "booking")
	if err != nil {
		return nil, err
	}
	return s.store.GetBooking(ctx, id)
}

func (s *bookingServiceImpl) ConfirmBooking(ctx context.Context, bookingID string) (*database.Booking, error) {
	id, err := parseID(bookingID, "booking")
	if err != nil {
		return nil, err
	}

	booking, err := s.engine.ConfirmBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.invalidateFlight(ctx, booking.FlightID.String())
	if len(booking.Seats) > 0 {
		s.broadcastClaimed(booking)
	}
	return booking, nil
}

func (s *bookingServiceImpl) CancelBooking(ctx context.Context, bookingID string) (*database.Booking, error) {
	id, err := parseID(bookingID, "booking")
	if err != nil {
		return nil, err
	}

	// Seat labels are gone from the booking after cancellation; capture
	// them first for the release broadcast.
	prior, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	booking, err := s.engine.CancelBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.invalidateFlight(ctx, booking.FlightID.String())
	if s.hub != nil && len(prior.Seats) > 0 {
		s.hub.BroadcastSeatsReleased(booking.FlightID.String(), booking.ID.String(), prior.Seats)
	}
	return booking, nil
}

func (s *bookingServiceImpl) broadcastClaimed(b *database.Booking) {
	if s.hub == nil || len(b.Seats) == 0 {
		return
	}
	s.hub.BroadcastSeatsClaimed(b.FlightID.String(), b.ID.String(), b.Seats)
}

func (s *bookingServiceImpl) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, flightCacheTTL).Err(); err != nil {
		s.logger.Warnw("cache set failed", "key", key, "error", err)
	}
}

func (s *bookingServiceImpl) invalidateFlight(ctx context.Context, flightID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, flightListCacheKey, flightCacheKeyPrefix+flightID).Err(); err != nil {
		s.logger.Warnw("cache invalidation failed", "flightID", flightID, "error", err)
	}
}

func parseID(raw, kind string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s id %q", inventory.ErrInvalidArgument, kind, raw)
	}
	return id, nil
}
