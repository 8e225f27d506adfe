package ws

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// The set of active clients, grouped by room code
type Hub struct {
	// Registered clients by room
	rooms map[string]map[*Client]bool

	// Outbound fan-out messages
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex
}

type Message struct {
	RoomCode string
	Data     []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Send implements the session fan-out: the message goes to every
// client currently connected to the room.
func (h *Hub) Send(code string, data []byte) {
	h.broadcast <- &Message{RoomCode: code, Data: data}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.roomCode]; !ok {
				h.rooms[client.roomCode] = make(map[*Client]bool)
			}
			h.rooms[client.roomCode][client] = true
			clientCount := len(h.rooms[client.roomCode])
			h.mu.Unlock()

			logrus.Infof("Client joined room %s (total: %d)", client.roomCode, clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.roomCode]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)

					if len(clients) == 0 {
						delete(h.rooms, client.roomCode)
						logrus.Infof("Room %s has no connections left", client.roomCode)
					} else {
						logrus.Infof("Client left room %s (remaining: %d)", client.roomCode, len(clients))
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.rooms[message.RoomCode]; ok {
				for client := range clients {
					select {
					case client.send <- message.Data:
					default:
						close(client.send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.rooms {
		count += len(clients)
	}
	return count
}
