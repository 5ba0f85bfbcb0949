// Package chat is the websocket chat gateway. Clients join a scope (a group
// conversation) as a player and send text lines; the dispatcher turns them
// into wagers, cancellations, balance queries and owner commands, and the
// hub broadcasts settlement reports back to every member of the scope.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/lemonroulette/internal/report"
)

// Server accepts websocket connections.
type Server struct {
	addr       string
	upgrader   websocket.Upgrader
	hub        *Hub
	dispatcher *Dispatcher
	balances   interface{ Balance(string) int64 }
	opts       report.Options
	window     time.Duration
	logger     *log.Logger

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// Options configure a Server.
type Options struct {
	Addr     string
	Report   report.Options
	Window   time.Duration
	Balances interface{ Balance(string) int64 }
}

// NewServer creates a server around an existing hub and dispatcher.
func NewServer(hub *Hub, dispatcher *Dispatcher, logger *log.Logger, opts Options) *Server {
	return &Server{
		addr: opts.Addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		hub:        hub,
		dispatcher: dispatcher,
		balances:   opts.Balances,
		opts:       opts.Report,
		window:     opts.Window,
		logger:     logger.WithPrefix("chat"),
		conns:      make(map[*Connection]struct{}),
	}
}

// Handler returns the HTTP routes: /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then closes every connection.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting chat gateway", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	return err
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := newConnection(ws, s)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-c.ctx.Done()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	s.logger.Debug("New connection", "remote", r.RemoteAddr)
	c.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := len(s.conns)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": n,
	})
}
