package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/lemonroulette/internal/intake"
	"github.com/lox/lemonroulette/internal/ledger"
	"github.com/lox/lemonroulette/internal/report"
	"github.com/lox/lemonroulette/internal/round"
	"github.com/lox/lemonroulette/internal/wheel"
	"github.com/stretchr/testify/require"
)

const testWindow = 5 * time.Second

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type fixedDrawer wheel.Outcome

func (d fixedDrawer) Draw() wheel.Outcome { return wheel.Outcome(d) }

type stack struct {
	clock      *quartz.Mock
	ledger     *ledger.Ledger
	registry   *round.Registry
	hub        *Hub
	dispatcher *Dispatcher
	server     *Server
}

func newStack(t *testing.T, outcome wheel.Outcome, owners ...string) *stack {
	t.Helper()
	logger := testLogger()
	opts := report.DefaultOptions()

	s := &stack{clock: quartz.NewMock(t), ledger: ledger.New(1000)}
	s.hub = NewHub(opts, logger)
	settler := round.NewSettler(fixedDrawer(outcome), s.ledger, nil, s.hub, s.clock, logger)
	s.registry = round.NewRegistry(settler, logger, round.Config{Window: testWindow, Clock: s.clock})
	t.Cleanup(s.registry.Close)

	in := intake.New(s.ledger, s.registry, s.clock, logger)
	isOwner := func(key string) bool {
		for _, o := range owners {
			if o == key {
				return true
			}
		}
		return false
	}
	s.dispatcher = NewDispatcher(in, s.ledger, isOwner, opts, logger)
	s.server = NewServer(s.hub, s.dispatcher, logger, Options{Report: opts, Window: testWindow, Balances: s.ledger})
	return s
}

func (s *stack) expire(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.clock.Advance(testWindow).MustWait(ctx)
	s.registry.Wait()
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(typ MessageType, data any) {
	c.t.Helper()
	msg, err := NewMessage(typ, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func (c *wsClient) expect(typ MessageType, out any) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	require.Equal(c.t, typ, msg.Type, "payload: %s", msg.Data)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(msg.Data, out))
	}
}
