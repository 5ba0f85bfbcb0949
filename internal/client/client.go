// Package client connects to the chat gateway over websocket.
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/lemonroulette/internal/chat"
)

// Client is a websocket chat client.
type Client struct {
	serverURL string
	logger    *log.Logger

	conn     *websocket.Conn
	writeMu  sync.Mutex
	incoming chan *chat.Message

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a client for serverURL (http, https, ws or wss).
func New(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		serverURL: serverURL,
		logger:    logger.WithPrefix("client"),
		incoming:  make(chan *chat.Message, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect dials the gateway and starts reading.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	c.logger.Debug("Connecting to server", "url", u.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	go c.readPump()
	return nil
}

// Incoming delivers every message from the server. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *chat.Message {
	return c.incoming
}

// Join binds this connection to a player and scope.
func (c *Client) Join(scope, key, name string) error {
	return c.send(chat.MessageTypeJoin, chat.JoinData{Scope: scope, Key: key, Name: name})
}

// Say sends a chat line.
func (c *Client) Say(text string) error {
	return c.send(chat.MessageTypeSay, chat.SayData{Text: text})
}

func (c *Client) send(typ chat.MessageType, data any) error {
	msg, err := chat.NewMessage(typ, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readPump() {
	defer close(c.incoming)
	for {
		var msg chat.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		select {
		case c.incoming <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// Close disconnects from the server.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
