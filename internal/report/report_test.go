package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/lox/lemonroulette/internal/bet"
	"github.com/lox/lemonroulette/internal/round"
	"github.com/lox/lemonroulette/internal/wheel"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSettlement() *round.Settlement {
	alice := bet.Identity{Key: "1", Name: "@alice"}
	bob := bet.Identity{Key: "2", Name: "@bob"}
	return &round.Settlement{
		RoundID: "0123456789abcdef",
		Scope:   "-100",
		Outcome: wheel.Outcome{Number: 7, Color: wheel.Black},
		Entries: []round.Entry{
			{
				Player: alice,
				Lost:   100,
				Lines: []round.Line{
					{Bet: bet.Bet{Player: alice, Stake: 100, Kind: bet.Color, Target: bet.Target{Color: wheel.Red}}},
				},
			},
			{
				Player: bob,
				Won:    3600,
				Lost:   10,
				Lines: []round.Line{
					{Bet: bet.Bet{Player: bob, Stake: 50, Kind: bet.NumberColor, Target: bet.Target{Number: 7, Color: wheel.Black}}, Won: true, Payout: 3600},
					{Bet: bet.Bet{Player: bob, Stake: 10, Kind: bet.Number, Target: bet.Target{Number: 17}}},
				},
			},
		},
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	got := Text(sampleSettlement(), DefaultOptions())
	want := "LEMON\nРУЛЕТКА 🎯\nВыпало: 7 Black\n" +
		"\n@alice проиграл 100 LEMON\n  ставки: 100→Red (LOSS)\n" +
		"\n@bob выиграл 3600 LEMON\n  ставки: 50→7 Black (WIN), 10→17 (LOSS)\n"
	assert.Equal(t, want, got)
}

func TestConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf, "LEMON", termenv.Ascii)
	require.NoError(t, c.Notify(context.Background(), sampleSettlement()))

	out := buf.String()
	assert.Contains(t, out, "=== Round #1 01234567 (scope -100) ===")
	assert.Contains(t, out, "Outcome: 7 Black")
	assert.Contains(t, out, "@bob выиграл 3600 LEMON")
	assert.Contains(t, out, "10→17 (LOSS)")
	assert.NotContains(t, out, "\x1b[", "ascii profile must not emit escapes")
}
