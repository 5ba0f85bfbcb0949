package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/lox/lemonroulette/internal/client"
	"github.com/lox/lemonroulette/internal/tui"
)

// ChatCmd joins a scope through the gateway with a terminal UI.
type ChatCmd struct {
	Server string `default:"http://localhost:8080" help:"Gateway URL"`
	Scope  string `short:"s" default:"lobby" help:"Group chat to join (empty for a private conversation)"`
	Key    string `short:"k" help:"Identity key (random when empty)"`
	Name   string `short:"n" default:"@player" help:"Display name"`
	Debug  bool   `help:"Log to lemon-chat.log at debug level"`
}

func (c *ChatCmd) Run() error {
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
	if c.Debug {
		f, err := os.OpenFile("lemon-chat.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logger = newLogger(f, "debug")
	}

	key := c.Key
	if key == "" {
		key = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := client.New(c.Server, logger)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Join(c.Scope, key, c.Name); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	model := tui.New(conn, conn.Incoming(), c.Scope, c.Name, logger)
	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
