package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/lemonroulette/internal/report"
	"github.com/lox/lemonroulette/internal/round"
)

// Hub tracks which connections sit in which scope and broadcasts settlement
// reports to them. It implements round.Notifier.
type Hub struct {
	opts   report.Options
	logger *log.Logger

	mu     sync.RWMutex
	scopes map[string]map[*Connection]struct{}
	conns  map[*Connection]string
}

// NewHub creates an empty hub.
func NewHub(opts report.Options, logger *log.Logger) *Hub {
	return &Hub{
		opts:   opts,
		logger: logger.WithPrefix("hub"),
		scopes: make(map[string]map[*Connection]struct{}),
		conns:  make(map[*Connection]string),
	}
}

// Join moves c into scope, leaving any previous scope.
func (h *Hub) Join(c *Connection, scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	h.conns[c] = scope
	if scope == "" {
		return
	}
	members, ok := h.scopes[scope]
	if !ok {
		members = make(map[*Connection]struct{})
		h.scopes[scope] = members
	}
	members[c] = struct{}{}
}

// Leave forgets c.
func (h *Hub) Leave(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Connection) {
	scope, ok := h.conns[c]
	if !ok {
		return
	}
	delete(h.conns, c)
	if members, ok := h.scopes[scope]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.scopes, scope)
		}
	}
}

// Count returns the number of known connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Members returns the number of connections joined to scope.
func (h *Hub) Members(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}

// Broadcast sends msg to every connection in scope.
func (h *Hub) Broadcast(scope string, msg *Message) error {
	h.mu.RLock()
	members := make([]*Connection, 0, len(h.scopes[scope]))
	for c := range h.scopes[scope] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	var errs []error
	for _, c := range members {
		if err := c.SendMessage(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify renders s and broadcasts it to its scope.
func (h *Hub) Notify(_ context.Context, s *round.Settlement) error {
	msg, err := NewMessage(MessageTypeReport, ReportData{
		Scope:   s.Scope,
		RoundID: s.RoundID,
		Number:  s.Outcome.Number,
		Color:   s.Outcome.Color.String(),
		Text:    report.Text(s, h.opts),
	})
	if err != nil {
		return err
	}
	if h.Members(s.Scope) == 0 {
		h.logger.Debug("No listeners for report", "scope", s.Scope, "round", s.RoundID)
		return nil
	}
	return h.Broadcast(s.Scope, msg)
}
