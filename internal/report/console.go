package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/lemonroulette/internal/round"
	"github.com/lox/lemonroulette/internal/wheel"
	"github.com/muesli/termenv"
)

// Console prints every settlement to a terminal. It implements
// round.Notifier so it can sit next to the chat hub.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	currency string
	rounds   uint64

	header lipgloss.Style
	red    lipgloss.Style
	black  lipgloss.Style
	green  lipgloss.Style
	win    lipgloss.Style
	loss   lipgloss.Style
	dim    lipgloss.Style
}

// NewConsole builds a console monitor writing to w (stdout when nil). Pass
// termenv.Ascii to strip colours, e.g. when writing to a file.
func NewConsole(w io.Writer, currency string, profile termenv.Profile) *Console {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)

	return &Console{
		w:        w,
		currency: currency,
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700")),
		red:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555")),
		black:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#BBBBBB")),
		green:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#50FA7B")),
		win:      r.NewStyle().Foreground(lipgloss.Color("#04B575")),
		loss:     r.NewStyle().Foreground(lipgloss.Color("#FF5555")),
		dim:      r.NewStyle().Faint(true),
	}
}

// Notify implements round.Notifier.
func (c *Console) Notify(_ context.Context, s *round.Settlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds++

	fmt.Fprintln(c.w, c.header.Render(fmt.Sprintf("=== Round #%d %s (scope %s) ===", c.rounds, shortID(s.RoundID), s.Scope)))
	fmt.Fprintf(c.w, "Outcome: %s\n", c.colour(s.Outcome))
	for _, e := range s.Entries {
		style := c.loss
		if e.Won > 0 {
			style = c.win
		}
		fmt.Fprintf(c.w, "  %s\n", style.Render(Summary(e, c.currency)))
		for _, line := range e.Lines {
			fmt.Fprintf(c.w, "    %s\n", c.dim.Render(Detail(line)))
		}
	}
	_, err := fmt.Fprintln(c.w)
	return err
}

func (c *Console) colour(o wheel.Outcome) string {
	switch o.Color {
	case wheel.Red:
		return c.red.Render(o.String())
	case wheel.Black:
		return c.black.Render(o.String())
	default:
		return c.green.Render(o.String())
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
