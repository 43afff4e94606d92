package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Reply types acknowledging a subscription change
const (
	ReplySubscribed   = "subscribed"
	ReplyUnsubscribed = "unsubscribed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one subscriber connection. Outgoing messages are queued on
// send and written by writePump; readPump handles subscription requests.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a request sent by a subscriber
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
	}
}

func errorReply(text string) *Message {
	return &Message{Type: MessageTypeError, Data: map[string]string{"error": text}}
}

// handleMessage applies a subscriber request and returns the reply for it
func (c *Client) handleMessage(raw []byte) *Message {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("invalid websocket message", "client_id", c.id, "error", err)
		return errorReply("invalid message format")
	}

	switch msg.Type {
	case MessageTypePing:
		return &Message{Type: MessageTypePong}
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
	default:
		return errorReply("unknown message type " + msg.Type)
	}

	if !validTopic(msg.Topic) {
		return errorReply("unknown topic, expected leaderboard or submissions")
	}
	ack := &Message{Topic: msg.Topic, Data: map[string]string{"status": "ok"}}
	if msg.Type == MessageTypeSubscribe {
		c.hub.Subscribe(c, msg.Topic)
		ack.Type = ReplySubscribed
	} else {
		c.hub.Unsubscribe(c, msg.Topic)
		ack.Type = ReplyUnsubscribed
	}
	return ack
}

// queue hands a reply to writePump, dropping it when the client is not keeping up
func (c *Client) queue(msg *Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("dropping reply for slow client", "client_id", c.id, "type", msg.Type)
	}
}

// readPump reads subscriber requests until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		c.queue(c.handleMessage(raw))
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// writePump writes queued messages, one frame each, and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				// unregistered by the hub
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and registers the connection with the hub
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id)
}
