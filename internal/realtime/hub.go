package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Domenick1991/skyreserve/internal/domain"
)

type MessageType string

const (
	MessageTypeSnapshot     MessageType = "seat_snapshot"
	MessageTypeSeatsUpdated MessageType = "seats_updated"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var errHubStopped = errors.New("seat map hub stopped")

type SeatState struct {
	SeatNumber  string `json:"seat_number"`
	IsAvailable bool   `json:"is_available"`
}

type Message struct {
	Type      MessageType `json:"type"`
	FlightID  int64       `json:"flight_id"`
	Seats     []SeatState `json:"seats"`
	Timestamp int64       `json:"timestamp"`
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	flightID int64
}

// Hub keeps the websocket watchers of each flight's seat map and pushes
// availability changes to them.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for flightID, clients := range h.clients {
				for c := range clients {
					close(c.send)
				}
				delete(h.clients, flightID)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.flightID] == nil {
				h.clients[c.flightID] = make(map[*Client]struct{})
			}
			h.clients[c.flightID][c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("seat map watcher registered", zap.Int64("flight_id", c.flightID))

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("failed to marshal seat update", zap.Error(err))
				continue
			}

			h.mu.RLock()
			var slow []*Client
			for c := range h.clients[msg.FlightID] {
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()

			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[c.flightID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.flightID)
	}
}

// BroadcastSeats queues an availability change for the flight's watchers.
// It never blocks; when the queue is full the update is dropped.
func (h *Hub) BroadcastSeats(flightID int64, seats []string, available bool) {
	states := make([]SeatState, len(seats))
	for i, s := range seats {
		states[i] = SeatState{SeatNumber: s, IsAvailable: available}
	}
	msg := &Message{
		Type:      MessageTypeSeatsUpdated,
		FlightID:  flightID,
		Seats:     states,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("seat update dropped", zap.Int64("flight_id", flightID))
	}
}

func (h *Hub) ClientCount(flightID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[flightID])
}

// Serve upgrades the request, sends the current seat map and keeps the
// connection registered until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, flightID int64, snapshot []domain.Seat) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	states := make([]SeatState, len(snapshot))
	for i, s := range snapshot {
		states[i] = SeatState{SeatNumber: s.SeatNumber, IsAvailable: s.IsAvailable}
	}
	first, err := json.Marshal(Message{
		Type:      MessageTypeSnapshot,
		FlightID:  flightID,
		Seats:     states,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		conn.Close()
		return err
	}

	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		flightID: flightID,
	}
	c.send <- first
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return errHubStopped
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only watches for the peer closing; watchers never send data.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
