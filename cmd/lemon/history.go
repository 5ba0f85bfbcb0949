package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/lemonroulette/internal/audit"
	"github.com/lox/lemonroulette/internal/config"
	"github.com/lox/lemonroulette/internal/storage/sqlite"
)

// HistoryCmd prints the most recent audit records.
type HistoryCmd struct {
	Config string `short:"c" default:"lemon.hcl" help:"Path to HCL configuration file"`
	DB     string `help:"SQLite database path (overrides config)"`
	Scope  string `short:"s" help:"Only show this scope"`
	Limit  int    `short:"n" default:"20" help:"Number of bets to show"`
}

var (
	winStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#96CEB4")).Bold(true)
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

func (c *HistoryCmd) Run() error {
	cfg, err := config.Load(c.Config, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	path := cfg.Storage.Path
	if c.DB != "" {
		path = c.DB
	}
	if path == "" {
		return fmt.Errorf("no storage path configured")
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	records, err := store.RecentBets(context.Background(), c.Scope, c.Limit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, records)
	return nil
}

func printHistory(w io.Writer, records []audit.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no settled bets")
		return
	}
	for _, r := range records {
		result := lossStyle.Render("LOSS")
		if r.Payout > 0 {
			result = winStyle.Render(fmt.Sprintf("WIN +%d", r.Payout))
		}
		fmt.Fprintf(w, "%s  %-12s %-16s %6d → %-8s %2d %-5s  %s\n",
			r.SettledAt.Format("2006-01-02 15:04:05"),
			r.Scope, r.PlayerName, r.Stake, r.Target,
			r.OutcomeNumber, r.OutcomeColor, result)
	}
}
