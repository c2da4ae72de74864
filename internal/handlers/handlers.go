package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cx-tal-miterani/flight-inventory/internal/database"
	"github.com/cx-tal-miterani/flight-inventory/internal/inventory"
	"github.com/cx-tal-miterani/flight-inventory/internal/service"
)

// Handler contains HTTP handlers for the API
type Handler struct {
	bookingService service.BookingService
}

// NewHandler creates a new Handler instance
func NewHandler(bookingService service.BookingService) *Handler {
	return &Handler{
		bookingService: bookingService,
	}
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the error taxonomy onto HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrAlreadyExists),
		errors.Is(err, inventory.ErrInsufficientCapacity),
		errors.Is(err, inventory.ErrTerminalState):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrBusy):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// ProvisionFlight handles POST /api/flights
func (h *Handler) ProvisionFlight(w http.ResponseWriter, r *http.Request) {
	var req inventory.ProvisionFlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flight, err := h.bookingService.ProvisionFlight(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, flight)
}

// GetFlights handles GET /api/flights
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := h.bookingService.GetFlights(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flights)
}

// GetFlight handles GET /api/flights/{id}
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]
	flight, err := h.bookingService.GetFlight(r.Context(), flightID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flight)
}

// GetFlightSeats handles GET /api/flights/{id}/seats
func (h *Handler) GetFlightSeats(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]
	seats, err := h.bookingService.GetFlightSeats(r.Context(), flightID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, seats)
}

// AuditFlight handles GET /api/flights/{id}/audit
func (h *Handler) AuditFlight(w http.ResponseWriter, r *http.Request) {
	flightID := mux.Vars(r)["id"]
	report, err := h.bookingService.AuditFlight(r.Context(), flightID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// CreateCustomer handles POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer, err := h.bookingService.CreateCustomer(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, customer)
}

// GetCustomerBookings handles GET /api/customers/{id}/bookings
func (h *Handler) GetCustomerBookings(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	bookings, err := h.bookingService.GetCustomerBookings(r.Context(), customerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bookings)
}

// CreateBooking handles POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate request
	if req.FlightID == "" {
		respondError(w, http.StatusBadRequest, "Flight ID is required")
		return
	}
	if req.CustomerID == "" {
		respondError(w, http.StatusBadRequest, "Customer ID is required")
		return
	}
	if req.PassengerCount <= 0 {
		respondError(w, http.StatusBadRequest, "Passenger count must be positive")
		return
	}

	booking, err := h.bookingService.CreateBooking(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]
	booking, err := h.bookingService.GetBooking(r.Context(), bookingID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, booking)
}

// ConfirmBooking handles POST /api/bookings/{id}/confirm
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]
	booking, err := h.bookingService.ConfirmBooking(r.Context(), bookingID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, booking)
}

// CancelBooking handles DELETE /api/bookings/{id}
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]
	booking, err := h.bookingService.CancelBooking(r.Context(), bookingID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, booking)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
