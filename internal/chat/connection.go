package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/lemonroulette/internal/bet"
)

// ErrConnectionClosed is returned when sending on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Connection is one websocket client.
type Connection struct {
	conn   *websocket.Conn
	send   chan *Message
	server *Server
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	player   bet.Identity
	scope    string
	joined   bool
	closeMu  sync.Mutex
	closed   bool
	closeErr error
}

func newConnection(conn *websocket.Conn, server *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 64),
		server: server,
		logger: server.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down. It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return c.closeErr
	}
	c.closed = true
	c.cancel()
	c.server.hub.Leave(c)
	c.closeErr = c.conn.Close()
	return c.closeErr
}

// SendMessage queues msg without blocking. A client that cannot keep up is
// disconnected.
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.Player().Key)
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// Player returns the identity bound by join.
func (c *Connection) Player() bet.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

// Scope returns the scope bound by join.
func (c *Connection) Scope() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scope
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeJoin:
		var data JoinData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join data")
			return
		}
		c.handleJoin(data)

	case MessageTypeSay:
		var data SayData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse say data")
			return
		}
		c.handleSay(data)

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+string(msg.Type))
	}
}

func (c *Connection) handleJoin(data JoinData) {
	key := strings.TrimSpace(data.Key)
	if key == "" {
		c.sendError("invalid_join", "Player key is required")
		return
	}
	name := strings.TrimSpace(data.Name)
	if name == "" {
		name = key
	}

	c.mu.Lock()
	c.player = bet.Identity{Key: key, Name: name}
	c.scope = strings.TrimSpace(data.Scope)
	c.joined = true
	scope := c.scope
	c.mu.Unlock()

	c.server.hub.Join(c, scope)
	c.logger.Info("Player joined", "player", key, "scope", scope)

	reply, err := NewMessage(MessageTypeJoined, JoinedData{
		Scope:    scope,
		Balance:  c.server.balances.Balance(key),
		Currency: c.server.opts.Currency,
		Window:   c.server.window.String(),
	})
	if err == nil {
		_ = c.SendMessage(reply)
	}
}

func (c *Connection) handleSay(data SayData) {
	c.mu.RLock()
	joined, player, scope := c.joined, c.player, c.scope
	c.mu.RUnlock()
	if !joined {
		c.sendError("not_joined", "Join before sending messages")
		return
	}

	text := c.server.dispatcher.Handle(c.ctx, Inbound{Scope: scope, Player: player, Text: data.Text})
	if text == "" {
		return
	}
	reply, err := NewMessage(MessageTypeReply, ReplyData{Text: text})
	if err == nil {
		_ = c.SendMessage(reply)
	}
}

func (c *Connection) sendError(code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err == nil {
		_ = c.SendMessage(msg)
	}
}
