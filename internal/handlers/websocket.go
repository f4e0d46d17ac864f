// -----------------------------------------------------------------------
// WebSocket Handler - Pushes pipeline progress events to the review UI
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-host tool, same machine as the browser
	},
}

// fileEventInterval throttles per-file progress pushes; the UI polls
// /progress for exact counts anyway.
const fileEventInterval = 250 * time.Millisecond

// WSMessage is the envelope every push uses.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler fans pipeline events out to connected browsers.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	events           interfaces.EventService
	fileThrottler    *rate.Limiter
	serverInstanceID string // clients detect a server restart by the ID changing
}

// NewWebSocketHandler creates the handler and subscribes it to the event
// bus.
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		events:           eventService,
		fileThrottler:    rate.NewLimiter(rate.Every(fileEventInterval), 1),
		serverInstanceID: uuid.New().String(),
	}

	if eventService != nil {
		h.subscribe()
	}
	return h
}

// HandleWebSocket upgrades the connection and keeps it registered until
// the client goes away.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendTo(conn, WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Drain client messages to keep the connection alive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// subscribe wires the pipeline event types to broadcast pushes.
func (h *WebSocketHandler) subscribe() {
	h.events.Subscribe(interfaces.EventJobTransitioned, func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(WSMessage{Type: string(event.Type), Payload: h.eventPayload(event)})
		return nil
	})

	h.events.Subscribe(interfaces.EventExtractionStarted, func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(WSMessage{Type: string(event.Type), Payload: h.eventPayload(event)})
		return nil
	})

	h.events.Subscribe(interfaces.EventBatchCommitted, func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(WSMessage{Type: string(event.Type), Payload: h.eventPayload(event)})
		return nil
	})

	// Per-file events arrive fastest; throttle them so a large import does
	// not flood the socket.
	h.events.Subscribe(interfaces.EventFileCompleted, func(ctx context.Context, event interfaces.Event) error {
		if !h.fileThrottler.Allow() {
			return nil
		}
		h.broadcast(WSMessage{Type: string(event.Type), Payload: h.eventPayload(event)})
		return nil
	})
}

func (h *WebSocketHandler) eventPayload(event interfaces.Event) map[string]interface{} {
	return map[string]interface{}{
		"job_id":    event.JobID,
		"data":      event.Payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// broadcast sends one message to every connected client.
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
		}
	}
}

// sendTo writes one message to a single client.
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}
