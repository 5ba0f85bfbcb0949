package bet

import (
	"testing"

	"github.com/lox/lemonroulette/internal/wheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Wager
		err  error
	}{
		{"red latin", "100 k", Wager{Stake: 100, Kind: Color, Target: Target{Color: wheel.Red}}, nil},
		{"red cyrillic glued", "100к", Wager{Stake: 100, Kind: Color, Target: Target{Color: wheel.Red}}, nil},
		{"red uppercase", "  250 К ", Wager{Stake: 250, Kind: Color, Target: Target{Color: wheel.Red}}, nil},
		{"black", "5 ч", Wager{Stake: 5, Kind: Color, Target: Target{Color: wheel.Black}}, nil},
		{"number", "200 17", Wager{Stake: 200, Kind: Number, Target: Target{Number: 17}}, nil},
		{"zero pocket", "10 0", Wager{Stake: 10, Kind: Number, Target: Target{Number: 0}}, nil},
		{"number colour", "50 7 ч", Wager{Stake: 50, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}, nil},
		{"number colour glued", "50 7Ч", Wager{Stake: 50, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}, nil},
		{"zero stake", "0 к", Wager{}, ErrInvalidAmount},
		{"overflow stake", "99999999999999999999 к", Wager{}, ErrInvalidAmount},
		{"payout would overflow", "128102389400760776 7 ч", Wager{}, ErrInvalidAmount},
		{"largest stake", "128102389400760775 7 ч", Wager{Stake: MaxStake, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}, nil},
		{"number off wheel", "10 37", Wager{}, ErrInvalidNumber},
		{"chatter", "hello there", Wager{}, ErrNotABet},
		{"balance keyword", "б", Wager{}, ErrNotABet},
		{"amount only", "100", Wager{}, ErrNotABet},
		{"three digit number", "100 123", Wager{}, ErrNotABet},
		{"unknown colour", "100 з", Wager{}, ErrNotABet},
		{"empty", "", Wager{}, ErrNotABet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.text)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayout(t *testing.T) {
	t.Parallel()

	sevenBlack := wheel.Outcome{Number: 7, Color: wheel.Black}
	zero := wheel.Outcome{Number: 0, Color: wheel.Green}

	tests := []struct {
		name    string
		bet     Bet
		outcome wheel.Outcome
		want    int64
	}{
		{"colour win", Bet{Stake: 100, Kind: Color, Target: Target{Color: wheel.Black}}, sevenBlack, 200},
		{"colour loss", Bet{Stake: 100, Kind: Color, Target: Target{Color: wheel.Red}}, sevenBlack, 0},
		{"colour on zero", Bet{Stake: 100, Kind: Color, Target: Target{Color: wheel.Red}}, zero, 0},
		{"number win", Bet{Stake: 10, Kind: Number, Target: Target{Number: 7}}, sevenBlack, 360},
		{"number zero win", Bet{Stake: 10, Kind: Number, Target: Target{Number: 0}}, zero, 360},
		{"number loss", Bet{Stake: 10, Kind: Number, Target: Target{Number: 8}}, sevenBlack, 0},
		{"number colour win", Bet{Stake: 50, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}, sevenBlack, 3600},
		{"number colour wrong colour", Bet{Stake: 50, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Red}}, sevenBlack, 0},
		{"number colour wrong number", Bet{Stake: 50, Kind: NumberColor, Target: Target{Number: 9, Color: wheel.Black}}, sevenBlack, 0},
		{"unknown kind", Bet{Stake: 50}, sevenBlack, 0},
		{"largest stake", Bet{Stake: MaxStake, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}, sevenBlack, MaxStake * 72},
		{"stake over max", Bet{Stake: MaxStake + 1, Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}, sevenBlack, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Payout(tt.bet, tt.outcome))
		})
	}
}

// Every payout is one of the four values the table allows.
func TestPayoutDomain(t *testing.T) {
	t.Parallel()

	kinds := []Kind{Color, Number, NumberColor}
	colors := []wheel.Color{wheel.Red, wheel.Black, wheel.Green}
	const stake = 13
	for n := 0; n <= wheel.MaxNumber; n++ {
		outcome := wheel.Outcome{Number: n, Color: wheel.ColorOf(n)}
		for _, k := range kinds {
			for tn := 0; tn <= wheel.MaxNumber; tn++ {
				for _, c := range colors {
					got := Payout(Bet{Stake: stake, Kind: k, Target: Target{Number: tn, Color: c}}, outcome)
					require.Contains(t, []int64{0, stake * 2, stake * 36, stake * 72}, got)
					if got != 0 {
						require.Equal(t, stake*k.Multiplier(), got)
					}
				}
			}
		}
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Red", Bet{Kind: Color, Target: Target{Color: wheel.Red}}.Describe())
	assert.Equal(t, "17", Bet{Kind: Number, Target: Target{Number: 17}}.Describe())
	assert.Equal(t, "7 Black", Wager{Kind: NumberColor, Target: Target{Number: 7, Color: wheel.Black}}.Describe())
	assert.Equal(t, "NUMBER_COLOR", NumberColor.String())
}
