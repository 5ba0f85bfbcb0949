// Package report renders settlements for people: the plain-text chat report
// and a coloured console monitor.
package report

import (
	"fmt"
	"strings"

	"github.com/lox/lemonroulette/internal/round"
)

// Options name the bot and currency printed in reports.
type Options struct {
	BotName  string
	Currency string
}

// DefaultOptions matches the LEMON bot.
func DefaultOptions() Options {
	return Options{BotName: "LEMON", Currency: "LEMON"}
}

// Text renders the chat report: an outcome header, then for every player a
// summary line and their bet details, in first-bet order.
func Text(s *round.Settlement, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nРУЛЕТКА 🎯\nВыпало: %s\n", opts.BotName, s.Outcome)

	for _, e := range s.Entries {
		b.WriteString("\n")
		b.WriteString(Summary(e, opts.Currency))
		b.WriteString("\n  ставки: ")
		for i, line := range e.Lines {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Detail(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Summary is the one-line result for a player.
func Summary(e round.Entry, currency string) string {
	if e.Won > 0 {
		return fmt.Sprintf("%s выиграл %d %s", e.Player.Name, e.Won, currency)
	}
	return fmt.Sprintf("%s проиграл %d %s", e.Player.Name, e.Lost, currency)
}

// Detail renders one bet as "stake→target (WIN|LOSS)".
func Detail(line round.Line) string {
	status := "LOSS"
	if line.Won {
		status = "WIN"
	}
	return fmt.Sprintf("%d→%s (%s)", line.Bet.Stake, line.Bet.Describe(), status)
}
