package websockets

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	STATUS_UNAUTHENTICATED = iota
	STATUS_AUTHENTICATED
	STATUS_CLOSED
)

type Hub struct {
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	clients    map[string]*Client
	mutex      sync.RWMutex
}

func (h *Hub) run(m *Manager) {
	for {
		select {
		case client := <-h.register:
			m.registerClient(client)

		case client := <-h.unregister:
			func() {
				defer func() {
					if r := recover(); r != nil {
						_ = r // Explicitly ignore recovered value
					}
				}()
				close(client.send)
			}()
			m.unregisterClient(client)

		case message := <-h.broadcast:
			sessionID, err := uuid.Parse(message.SessionID)
			if err != nil {
				continue
			}
			m.sendToSession(sessionID, message)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	m.hub.clients[client.ID] = client

	m.log.Function("registerClient").
		Info("Client registered", "clientID", client.ID, "status", client.Status)
}

func (m *Manager) unregisterClient(client *Client) {
	m.hub.mutex.Lock()
	defer m.hub.mutex.Unlock()

	delete(m.hub.clients, client.ID)

	m.log.Function("unregisterClient").
		Info("Client unregistered", "clientID", client.ID, "sessionID", client.SessionID)
}

// sendToSession delivers a message to every authenticated client bound to the
// session. Slow clients get a bounded retry before being disconnected.
func (m *Manager) sendToSession(sessionID uuid.UUID, message Message) {
	log := m.log.Function("sendToSession")

	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()

	for clientID, client := range m.hub.clients {
		if client.Status != STATUS_AUTHENTICATED || client.SessionID != sessionID {
			continue
		}

		select {
		case client.send <- message:
		default:
			go func(c *Client, cID string, msg Message) {
				select {
				case c.send <- msg:
				case <-time.After(5 * time.Second):
					_ = log.Error("Client too slow, disconnecting", "clientID", cID)
					m.hub.unregister <- c
				}
			}(client, clientID, message)
		}
	}
}

// SessionClientCount reports how many authenticated clients a session has.
func (m *Manager) SessionClientCount(sessionID uuid.UUID) int {
	m.hub.mutex.RLock()
	defer m.hub.mutex.RUnlock()

	count := 0
	for _, client := range m.hub.clients {
		if client.Status == STATUS_AUTHENTICATED && client.SessionID == sessionID {
			count++
		}
	}
	return count
}
