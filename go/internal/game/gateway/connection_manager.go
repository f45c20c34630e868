package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/clocksync"
	"github.com/boubou-paradis/photojet-sub000/go/internal/game/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections for live game sessions.
type ConnectionManager struct {
	// Connection pools organized by session join code
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to one spectator or player.
type Connection struct {
	ID            string
	ParticipantID string
	SessionCode   string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	closed bool // guarded by Manager.mu; Send is closed exactly once
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents an event to fan out to a session's connections.
type BroadcastMessage struct {
	SessionCode   string
	Event         *events.GameEvent
	ParticipantID string // Optional: if set, only send to this participant
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Run processes broadcast messages until ctx is done.
func (cm *ConnectionManager) Run(done <-chan struct{}) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-done:
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection bound
// to a session.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantID, sessionCode string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		SessionCode:   sessionCode,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   cm.clock.Now(),
		LastPing:      cm.clock.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Str("session_code", sessionCode).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionCode] == nil {
		cm.sessionConnections[conn.SessionCode] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionCode][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_code", conn.SessionCode).
		Int("total_connections", len(cm.sessionConnections[conn.SessionCode])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unregisterConnectionLocked(conn)
}

// unregisterConnectionLocked removes a connection and closes its Send channel.
// Closing only ever happens under cm.mu, so broadcast sends (also under cm.mu)
// can never hit a closed channel. Must be called with cm.mu held.
func (cm *ConnectionManager) unregisterConnectionLocked(conn *Connection) {
	connections, exists := cm.sessionConnections[conn.SessionCode]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	if !conn.closed {
		conn.closed = true
		close(conn.Send)
	}

	if len(connections) == 0 {
		delete(cm.sessionConnections, conn.SessionCode)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Str("session_code", conn.SessionCode).
		Msg("connection unregistered")
}

// BroadcastToSession sends an event to all connections for a session.
func (cm *ConnectionManager) BroadcastToSession(code string, event *events.GameEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionCode: code, Event: event}:
	default:
		log.Warn().Str("session_code", code).Msg("broadcast channel full, dropping message")
	}
}

// CloseSession closes every connection attached to a session.
func (cm *ConnectionManager) CloseSession(code string) {
	cm.mu.Lock()
	var targets []*Connection
	for conn := range cm.sessionConnections[code] {
		targets = append(targets, conn)
	}
	for _, conn := range targets {
		cm.unregisterConnectionLocked(conn)
	}
	cm.mu.Unlock()

	for _, conn := range targets {
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under cm.mu, the same lock that guards channel closure in
	// unregisterConnectionLocked. Sends are non-blocking, so holding the lock
	// is bounded by queue pressure, never by a peer.
	cm.mu.Lock()
	connections, exists := cm.sessionConnections[message.SessionCode]
	if !exists {
		cm.mu.Unlock()
		return
	}

	sent := 0
	var stale []*Connection
	for conn := range connections {
		if message.ParticipantID != "" && conn.ParticipantID != message.ParticipantID {
			continue
		}
		select {
		case conn.Send <- eventData:
			sent++
		default:
			// Connection is slow or dead; it must never block the rest.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Msg("connection send buffer full, closing connection")
			stale = append(stale, conn)
		}
	}
	for _, conn := range stale {
		cm.unregisterConnectionLocked(conn)
	}
	cm.mu.Unlock()

	for _, conn := range stale {
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_code", message.SessionCode).
		Int("connections", sent).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	sessionCounts := make(map[string]int)

	for code, connections := range cm.sessionConnections {
		count := len(connections)
		totalConnections += count
		sessionCounts[code] = count
	}

	return map[string]interface{}{
		"total_connections":   totalConnections,
		"active_sessions":     len(cm.sessionConnections),
		"session_connections": sessionCounts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = c.Manager.clock.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = c.Manager.clock.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes inbound frames. The only client-to-host
// traffic over the socket is the clock-sync exchange; answers and host
// actions go over HTTP.
func (c *Connection) handleClientMessage(message []byte) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &header); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		return
	}

	switch header.Type {
	case clocksync.MsgTypeSyncPing:
		var ping clocksync.SyncPing
		if err := json.Unmarshal(message, &ping); err != nil {
			return
		}
		pong := clocksync.SyncPong{
			Type:         clocksync.MsgTypeSyncPong,
			ClientSentAt: ping.ClientSentAt,
			HostSentAt:   c.Manager.clock.Now(),
		}
		data, err := json.Marshal(pong)
		if err != nil {
			return
		}
		select {
		case c.Send <- data:
		default:
			// Buffer full; the client will retry on its next sync interval.
		}

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", header.Type).
			Msg("unknown client message type")
	}
}
