package database

import (
	"time"

	"github.com/google/uuid"
)

// SeatStatus represents the occupancy state of a seat
type SeatStatus string

const (
	SeatStatusFree     SeatStatus = "FREE"
	SeatStatusOccupied SeatStatus = "OCCUPIED"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Flight represents a scheduled trip with fixed seat capacity
type Flight struct {
	ID             uuid.UUID `json:"id"`
	FlightNumber   string    `json:"flightNumber"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	DepartureTime  time.Time `json:"departureTime"`
	ArrivalTime    time.Time `json:"arrivalTime"`
	TotalSeats     int       `json:"totalSeats"`
	AvailableSeats int       `json:"availableSeats"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Seat represents one allocatable unit of a flight's capacity. The flight
// reference is immutable for the life of the seat. BookingID is a weak
// back-reference: set only while the seat is OCCUPIED, lookup only.
type Seat struct {
	ID        uuid.UUID  `json:"id"`
	FlightID  uuid.UUID  `json:"flightId"`
	Label     string     `json:"label"`
	Status    SeatStatus `json:"status"`
	BookingID *uuid.UUID `json:"bookingId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Customer represents a customer that can hold bookings
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Booking represents a customer's request for N seats on a flight. The
// flight and customer references are immutable after creation. Seat labels
// are populated on reads for CONFIRMED bookings.
type Booking struct {
	ID             uuid.UUID     `json:"id"`
	FlightID       uuid.UUID     `json:"flightId"`
	CustomerID     uuid.UUID     `json:"customerId"`
	PassengerCount int           `json:"passengerCount"`
	Status         BookingStatus `json:"status"`
	Seats          []string      `json:"seats,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}
