package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/serial"
	"github.com/sidingops/rakeserial/internal/services"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPingPeriod = 30 * time.Second
	eventSendBuffer = 32
)

// EventsWSHandler pushes serial reassignment events to connected clients so
// that screens holding an old serial can follow an indent to its new one.
type EventsWSHandler struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
	// serial restricts delivery to one rake family; empty receives everything.
	serial string
}

// NewEventsWSHandler creates a new events WebSocket handler
func NewEventsWSHandler(logger *zap.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger.Named("events"),
		clients: make(map[*eventClient]struct{}),
	}
}

// SetupRoutes configures WebSocket routes
func (h *EventsWSHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/events", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and streams events until the client
// goes away. ?serial= narrows the feed to events touching that serial.
func (h *EventsWSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	c := &eventClient{
		conn:   conn,
		send:   make(chan []byte, eventSendBuffer),
		serial: serial.DecodePath(r.URL.Query().Get("serial")),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.logger.Debug("client connected", zap.String("remote_addr", r.RemoteAddr), zap.String("serial", c.serial))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(c)
	}()

	// Clients only listen; reading drains control frames and notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}
	}

	h.unregister(c)
	wg.Wait()
	conn.Close()
	h.logger.Debug("client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

func (h *EventsWSHandler) writeLoop(c *eventClient) {
	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (h *EventsWSHandler) register(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *EventsWSHandler) unregister(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish queues an event for every interested client. A client whose buffer
// is full misses the event; it can catch up from /api/rakes/reassignments.
func (h *EventsWSHandler) Publish(ev services.ReassignmentEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.serial != "" && c.serial != ev.OriginalSerial && c.serial != ev.Serial {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event for slow client",
				zap.String("serial", ev.Serial),
				zap.String("remote_addr", c.conn.RemoteAddr().String()))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventsWSHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *EventsWSHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.conn.Close()
	}
}

var _ services.EventPublisher = (*EventsWSHandler)(nil)
