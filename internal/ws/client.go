package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mkraft/scrumdeck/internal/protocol"
	"github.com/mkraft/scrumdeck/internal/ratelimit"
	"github.com/mkraft/scrumdeck/internal/room"
	"github.com/mkraft/scrumdeck/internal/session"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	messagesPerSecond = 20
	messageBurst      = 40
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	hub         *Hub
	core        *session.Registry
	conn        *websocket.Conn
	send        chan []byte
	roomCode    string
	cid         string
	rateLimiter *ratelimit.Limiter

	// Set when the client sent an explicit leave, so the read pump's
	// cleanup does not also report a transport drop.
	left bool
}

// ServeWs joins the session core first so a bad room code is refused
// with a plain HTTP error before the upgrade. A cid query parameter
// lets a reconnecting client resolve back to its previous identity;
// fresh connections get a new one.
func ServeWs(hub *Hub, core *session.Registry, w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room")
	name := r.URL.Query().Get("name")
	cid := r.URL.Query().Get("cid")
	if cid == "" {
		cid = uuid.NewString()
	}

	_, finalName, err := core.Join(roomCode, cid, name)
	if err != nil {
		msg := "invalid room code"
		if errors.Is(err, session.ErrName) {
			msg = "invalid name"
		}
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		core.ConnectionLost(roomCode, cid)
		return
	}

	client := &Client{
		hub:         hub,
		core:        core,
		conn:        conn,
		send:        make(chan []byte, 256),
		roomCode:    roomCode,
		cid:         cid,
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	hub.register <- client

	if joined, err := protocol.EncodeJoined(roomCode, finalName); err == nil {
		client.send <- joined
	}

	go client.writePump()
	go client.readPump()

	client.broadcastState()
}

// broadcastState pushes the current room document to every connection
// in the room.
func (c *Client) broadcastState() {
	r, ok := c.core.GetRoom(c.roomCode)
	if !ok {
		return
	}
	view := r.View()

	var average *float64
	if view.VotesRevealed {
		if avg, ok := r.Average(); ok {
			average = &avg
		}
	}

	data, err := protocol.EncodeState(view, average)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode room state")
		return
	}
	c.core.Broadcast(c.roomCode, data)
}

func (c *Client) handle(msg *protocol.Inbound) {
	var err error
	switch msg.Type {
	case protocol.TypeVote:
		err = c.core.Vote(c.roomCode, c.cid, msg.Value)
	case protocol.TypeReveal:
		err = c.core.Reveal(c.roomCode)
	case protocol.TypeReset:
		err = c.core.Reset(c.roomCode)
	case protocol.TypeRename:
		_, err = c.core.Rename(c.roomCode, c.cid, msg.Name)
	case protocol.TypeTopic:
		err = c.core.SetTopic(c.roomCode, msg.Label, msg.URL)
	case protocol.TypeSettings:
		if msg.Settings == nil {
			return
		}
		err = c.core.UpdateSettings(c.roomCode, room.Settings{
			SequenceID:        msg.Settings.SequenceID,
			AutoRevealEnabled: msg.Settings.AutoRevealEnabled,
			AllowSpecials:     msg.Settings.AllowSpecials,
			TopicVisible:      msg.Settings.TopicVisible,
		})
	case protocol.TypeParticipating:
		if msg.Participating == nil {
			return
		}
		err = c.core.SetParticipating(c.roomCode, c.cid, *msg.Participating)
	case protocol.TypeLeave:
		if err := c.core.Leave(c.roomCode, c.cid); err == nil {
			c.left = true
		}
	default:
		logrus.WithField("type", msg.Type).Debug("Ignoring unknown message type")
		return
	}

	if err != nil {
		logrus.WithError(err).WithField("room", c.roomCode).Debug("Rejected client event")
		return
	}
	c.broadcastState()
}

func (c *Client) readPump() {
	defer func() {
		if !c.left {
			c.core.ConnectionLost(c.roomCode, c.cid)
			c.broadcastState()
		}
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("WebSocket read error")
			}
			break
		}

		if !c.rateLimiter.Allow() {
			logrus.WithField("room", c.roomCode).Warn("⚠️ Rate limit exceeded, dropping message")
			continue
		}

		msg, err := protocol.ParseInbound(data)
		if err != nil {
			logrus.WithError(err).Warn("⚠️ Malformed client message")
			continue
		}

		c.handle(msg)
		if c.left {
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
