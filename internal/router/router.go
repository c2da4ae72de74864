package router

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/cx-tal-miterani/flight-inventory/internal/handlers"
	"github.com/cx-tal-miterani/flight-inventory/internal/websocket"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *handlers.Handler, hub *websocket.Hub) *mux.Router {
	r := mux.NewRouter()

	// CORS middleware
	r.Use(corsMiddleware)

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Flights
	api.HandleFunc("/flights", h.ProvisionFlight).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/flights", h.GetFlights).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{id}", h.GetFlight).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{id}/seats", h.GetFlightSeats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/flights/{id}/audit", h.AuditFlight).Methods(http.MethodGet, http.MethodOptions)

	// Customers
	api.HandleFunc("/customers", h.CreateCustomer).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/customers/{id}/bookings", h.GetCustomerBookings).Methods(http.MethodGet, http.MethodOptions)

	// Bookings
	api.HandleFunc("/bookings", h.CreateBooking).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/bookings/{id}", h.GetBooking).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/bookings/{id}", h.CancelBooking).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/bookings/{id}/confirm", h.ConfirmBooking).Methods(http.MethodPost, http.MethodOptions)

	// WebSocket for real-time seat updates
	if hub != nil {
		api.HandleFunc("/flights/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
			flightID, err := uuid.Parse(mux.Vars(r)["id"])
			if err != nil {
				http.Error(w, "invalid flight id", http.StatusBadRequest)
				return
			}
			hub.ServeWS(w, r, flightID)
		})
	}

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
