package websockets

import (
	"context"
	"time"

	"auxparty/config"
	"auxparty/internal/database"
	"auxparty/internal/events"
	"auxparty/internal/logger"
	"auxparty/internal/models"
	"auxparty/internal/repositories"
	"auxparty/internal/services"
	"auxparty/internal/utils"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	MESSAGE_TYPE_PING            = "ping"
	MESSAGE_TYPE_PONG            = "pong"
	MESSAGE_TYPE_ERROR           = "error"
	MESSAGE_TYPE_AUTH_REQUEST    = "auth_request"
	MESSAGE_TYPE_AUTH_RESPONSE   = "auth_response"
	MESSAGE_TYPE_AUTH_SUCCESS    = "auth_success"
	MESSAGE_TYPE_AUTH_FAILURE    = "auth_failure"
	MESSAGE_TYPE_QUEUE_UPDATE    = "queue_update"
	MESSAGE_TYPE_PLAYBACK_UPDATE = "playback_update"

	PING_INTERVAL     = 30 * time.Second
	PONG_TIMEOUT      = 60 * time.Second
	WRITE_TIMEOUT     = 10 * time.Second
	MAX_MESSAGE_SIZE  = 64 * 1024
	SEND_CHANNEL_SIZE = 64
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Client struct {
	ID         string
	UserID     uuid.UUID
	GuestID    uuid.UUID
	SessionID  uuid.UUID
	Connection *websocket.Conn
	Manager    *Manager
	Status     int
	send       chan Message
}

// Manager owns the session-keyed websocket hub. It doubles as the realtime
// broadcaster for the playback monitor: broadcasts go through the event bus
// so every API instance fans out to its own connected clients.
type Manager struct {
	hub         *Hub
	db          database.DB
	config      config.Config
	log         logger.Logger
	eventBus    *events.EventBus
	sessionRepo repositories.SessionRepository
}

func New(
	db database.DB,
	eventBus *events.EventBus,
	config config.Config,
) (*Manager, error) {
	log := logger.New("websockets")

	manager := &Manager{
		hub: &Hub{
			broadcast:  make(chan Message, 64),
			register:   make(chan *Client),
			unregister: make(chan *Client),
			clients:    make(map[string]*Client),
		},
		db:          db,
		config:      config,
		log:         log,
		eventBus:    eventBus,
		sessionRepo: repositories.New(db).Session,
	}

	log.Function("New").Info("Starting websocket hub")
	go manager.hub.run(manager)

	go manager.subscribeToQueueEvents()
	go manager.subscribeToPlaybackEvents()

	return manager, nil
}

func (m *Manager) HandleWebSocket(c *websocket.Conn) {
	log := m.log.Function("HandleWebSocket")
	clientID := uuid.New().String()

	client := &Client{
		ID:         clientID,
		Connection: c,
		Manager:    m,
		Status:     STATUS_UNAUTHENTICATED,
		send:       make(chan Message, SEND_CHANNEL_SIZE),
	}

	authRequest := Message{
		ID:        uuid.New().String(),
		Type:      MESSAGE_TYPE_AUTH_REQUEST,
		Timestamp: time.Now(),
	}

	if err := c.WriteJSON(authRequest); err != nil {
		log.Er("failed to send auth request", err)
		if err := c.Close(); err != nil {
			log.Er("failed to close connection", err)
		}
		return
	}

	m.hub.register <- client
	defer func() {
		m.hub.unregister <- client
		if err := c.Close(); err != nil {
			log.Er("failed to close connection", err)
		}
	}()

	go client.readPump()
	client.writePump()
}

// BroadcastQueueUpdate implements services.RealtimeBroadcaster.
func (m *Manager) BroadcastQueueUpdate(sessionID uuid.UUID, snapshot *models.QueueSnapshot) {
	err := m.eventBus.PublishQueueUpdate(sessionID, map[string]any{
		"nextUp": snapshot.NextUp,
		"queue":  snapshot.Queue,
	})
	if err != nil {
		m.log.Function("BroadcastQueueUpdate").
			Warn("failed to publish queue update", "sessionID", sessionID, "error", err)
	}
}

// BroadcastPlaybackUpdate implements services.RealtimeBroadcaster.
func (m *Manager) BroadcastPlaybackUpdate(
	sessionID uuid.UUID,
	playback *services.PlaybackState,
	requester string,
	skip bool,
) {
	data := map[string]any{"playback": playback}
	if requester != "" {
		data["requester"] = requester
	}
	if skip {
		data["skip"] = true
	}

	if err := m.eventBus.PublishPlaybackUpdate(sessionID, data); err != nil {
		m.log.Function("BroadcastPlaybackUpdate").
			Warn("failed to publish playback update", "sessionID", sessionID, "error", err)
	}
}

func (m *Manager) subscribeToQueueEvents() {
	log := m.log.Function("subscribeToQueueEvents")

	err := m.eventBus.Subscribe(events.QUEUE_CHANNEL, func(event events.Event) error {
		if event.SessionID == nil {
			return nil
		}
		m.sendToSession(*event.SessionID, Message{
			ID:        uuid.New().String(),
			Type:      MESSAGE_TYPE_QUEUE_UPDATE,
			SessionID: event.SessionID.String(),
			Data:      event.Data,
			Timestamp: time.Now(),
		})
		return nil
	})
	if err != nil {
		log.Er("failed to subscribe to queue events", err)
	}
}

func (m *Manager) subscribeToPlaybackEvents() {
	log := m.log.Function("subscribeToPlaybackEvents")

	err := m.eventBus.Subscribe(events.PLAYBACK_CHANNEL, func(event events.Event) error {
		if event.SessionID == nil {
			return nil
		}
		m.sendToSession(*event.SessionID, Message{
			ID:        uuid.New().String(),
			Type:      MESSAGE_TYPE_PLAYBACK_UPDATE,
			SessionID: event.SessionID.String(),
			Data:      event.Data,
			Timestamp: time.Now(),
		})
		return nil
	})
	if err != nil {
		log.Er("failed to subscribe to playback events", err)
	}
}

func (c *Client) readPump() {
	log := c.Manager.log.Function("readPump")
	defer func() {
		c.Manager.hub.unregister <- c
		_ = c.Connection.Close()
	}()

	c.Connection.SetReadLimit(MAX_MESSAGE_SIZE)
	if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
		log.Er("failed to set read deadline", err, "clientID", c.ID)
	}
	c.Connection.SetPongHandler(func(string) error {
		if err := c.Connection.SetReadDeadline(time.Now().Add(PONG_TIMEOUT)); err != nil {
			log.Er("failed to set read deadline in pong handler", err, "clientID", c.ID)
		}
		return nil
	})

	for {
		var message Message
		err := c.Connection.ReadJSON(&message)
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				log.Er("Unexpected close error", err, "clientID", c.ID)
			}
			break
		}

		message.ID = uuid.New().String()
		message.Timestamp = time.Now()

		c.routeMessage(message)
	}
}

func (c *Client) routeMessage(message Message) {
	log := c.Manager.log.Function("routeMessage")

	if message.Type == MESSAGE_TYPE_AUTH_RESPONSE {
		c.handleAuthResponse(message)
		return
	}

	if c.Status == STATUS_UNAUTHENTICATED {
		c.send <- Message{
			ID:        uuid.New().String(),
			Type:      MESSAGE_TYPE_AUTH_FAILURE,
			Data:      map[string]any{"reason": "Authentication required"},
			Timestamp: time.Now(),
		}
		return
	}

	switch message.Type {
	case MESSAGE_TYPE_PING:
		c.send <- Message{
			ID:        uuid.New().String(),
			Type:      MESSAGE_TYPE_PONG,
			Timestamp: time.Now(),
		}
	default:
		log.Warn("Unknown message type", "type", message.Type, "clientID", c.ID)
	}
}

// handleAuthResponse validates a host or guest token and binds the client to
// its session. Hosts name the session in the payload; guest tokens carry it.
func (c *Client) handleAuthResponse(message Message) {
	log := c.Manager.log.Function("handleAuthResponse")

	if c.Status != STATUS_UNAUTHENTICATED {
		log.Warn("Auth response from already authenticated client", "clientID", c.ID)
		return
	}

	token, ok := message.Data["token"].(string)
	if !ok || token == "" {
		c.sendAuthFailure("Invalid token format")
		return
	}

	claims, err := utils.ParseSessionToken(token, c.Manager.config.JWTSecret)
	if err != nil {
		log.Info("Token validation failed", "clientID", c.ID, "error", err.Error())
		c.sendAuthFailure("Authentication failed")
		return
	}

	subjectID, err := claims.SubjectID()
	if err != nil {
		c.sendAuthFailure("Authentication failed")
		return
	}

	var sessionIDRaw string
	switch claims.Kind {
	case utils.TokenKindHost:
		c.UserID = subjectID
		sessionIDRaw, _ = message.Data["sessionId"].(string)
	case utils.TokenKindGuest:
		c.GuestID = subjectID
		sessionIDRaw = claims.SessionID
	default:
		c.sendAuthFailure("Authentication failed")
		return
	}

	sessionID, err := uuid.Parse(sessionIDRaw)
	if err != nil {
		c.sendAuthFailure("Invalid session")
		return
	}

	session, err := c.Manager.sessionRepo.GetByID(context.Background(), sessionID)
	if err != nil || !session.IsActive {
		c.sendAuthFailure("Session not found")
		return
	}

	c.SessionID = sessionID
	c.Status = STATUS_AUTHENTICATED

	log.Info("Client authenticated",
		"clientID", c.ID,
		"sessionID", sessionID,
		"kind", claims.Kind)

	c.send <- Message{
		ID:        uuid.New().String(),
		Type:      MESSAGE_TYPE_AUTH_SUCCESS,
		SessionID: sessionID.String(),
		Timestamp: time.Now(),
	}
}

func (c *Client) sendAuthFailure(reason string) {
	log := c.Manager.log.Function("sendAuthFailure")

	c.send <- Message{
		ID:        uuid.New().String(),
		Type:      MESSAGE_TYPE_AUTH_FAILURE,
		Data:      map[string]any{"reason": reason},
		Timestamp: time.Now(),
	}

	log.Info("Auth failure sent, closing connection", "clientID", c.ID, "reason", reason)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = c.Connection.Close()
	}()
}

func (c *Client) writePump() {
	log := c.Manager.log.Function("writePump")

	ticker := time.NewTicker(PING_INTERVAL)
	defer func() {
		ticker.Stop()
		_ = c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline", err, "clientID", c.ID)
			}
			if !ok {
				_ = c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Connection.WriteJSON(message); err != nil {
				log.Er("WebSocket write error", err, "clientID", c.ID)
				return
			}

		case <-ticker.C:
			if err := c.Connection.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT)); err != nil {
				log.Er("failed to set write deadline for ping", err, "clientID", c.ID)
			}
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
