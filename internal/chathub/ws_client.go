package chathub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// EventRouter receives every inbound frame of a socket.
type EventRouter interface {
	HandleEvent(c Client, event string, data json.RawMessage)
	HandleDisconnect(c Client)
}

// WebSocketClient реалізує інтерфейс chathub.Client поверх gorilla/websocket.
type WebSocketClient struct {
	id       string
	userID   string
	userName string
	conn     *websocket.Conn
	router   EventRouter
	log      *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, userID, userName string, router EventRouter, log *slog.Logger) *WebSocketClient {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &WebSocketClient{
		id:       id,
		userID:   userID,
		userName: userName,
		conn:     conn,
		router:   router,
		log:      log.With("component", "ws-client", "socket_id", id, "user_id", userID),
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *WebSocketClient) ID() string       { return c.id }
func (c *WebSocketClient) UserID() string   { return c.userID }
func (c *WebSocketClient) UserName() string { return c.userName }

func (c *WebSocketClient) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close зупиняє writePump; send канал ніколи не закривається, тому Send безпечний.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("error reading message", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.log.Debug("skipping malformed frame", "error", err)
			continue
		}
		c.router.HandleEvent(c, env.Event, env.Data)
	}
}

// writePump читає кадри з каналу send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-c.done:
			// Хаб або sweep закрили клієнта: дописуємо чергу і закриваємо з'єднання
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes frames that were queued before Close, such as session_ended.
func (c *WebSocketClient) flush() {
	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
