package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSeatsClaimed  MessageType = "seats_claimed"
	MessageTypeSeatsReleased MessageType = "seats_released"
)

// SeatUpdate represents a seat occupancy change
type SeatUpdate struct {
	Label     string `json:"label"`
	Status    string `json:"status"` // FREE, OCCUPIED
	BookingID string `json:"bookingId,omitempty"`
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType  `json:"type"`
	FlightID  string       `json:"flightId"`
	BookingID string       `json:"bookingId,omitempty"`
	Seats     []SeatUpdate `json:"seats,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	flightID uuid.UUID
}

// Hub manages WebSocket connections per flight
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.flightID] == nil {
				h.clients[client.flightID] = make(map[*Client]bool)
			}
			h.clients[client.flightID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.flightID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.flightID)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			flightID, err := uuid.Parse(message.FlightID)
			if err != nil {
				log.Printf("WebSocket: invalid flight ID in broadcast: %s", message.FlightID)
				continue
			}

			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("WebSocket: failed to marshal message: %v", err)
				continue
			}

			h.mu.RLock()
			clients := h.clients[flightID]
			h.mu.RUnlock()

			for client := range clients {
				select {
				case client.send <- data:
				default:
					h.mu.Lock()
					delete(h.clients[flightID], client)
					close(client.send)
					h.mu.Unlock()
				}
			}
		}
	}
}

// BroadcastSeatsClaimed broadcasts that seats were claimed by a booking
func (h *Hub) BroadcastSeatsClaimed(flightID, bookingID string, labels []string) {
	seats := make([]SeatUpdate, len(labels))
	for i, label := range labels {
		seats[i] = SeatUpdate{Label: label, Status: "OCCUPIED", BookingID: bookingID}
	}
	h.broadcast <- &Message{
		Type:      MessageTypeSeatsClaimed,
		FlightID:  flightID,
		BookingID: bookingID,
		Seats:     seats,
		Timestamp: time.Now().UnixMilli(),
	}
}

// BroadcastSeatsReleased broadcasts that a booking's seats were freed
func (h *Hub) BroadcastSeatsReleased(flightID, bookingID string, labels []string) {
	seats := make([]SeatUpdate, len(labels))
	for i, label := range labels {
		seats[i] = SeatUpdate{Label: label, Status: "FREE"}
	}
	h.broadcast <- &Message{
		Type:      MessageTypeSeatsReleased,
		FlightID:  flightID,
		BookingID: bookingID,
		Seats:     seats,
		Timestamp: time.Now().UnixMilli(),
	}
}

// GetClientCount returns the number of clients watching a flight
func (h *Hub) GetClientCount(flightID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[flightID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ServeWS upgrades an HTTP request to a WebSocket subscription for one
// flight's seat updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, flightID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 64),
		flightID: flightID,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
