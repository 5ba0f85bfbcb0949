// Package bet defines wagers, the chat grammar used to place them and the
// payout table that resolves them against a wheel outcome.
package bet

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/lox/lemonroulette/internal/wheel"
)

// Kind identifies what a wager is placed on.
type Kind int

const (
	Color Kind = iota + 1
	Number
	NumberColor
)

func (k Kind) String() string {
	switch k {
	case Color:
		return "COLOR"
	case Number:
		return "NUMBER"
	case NumberColor:
		return "NUMBER_COLOR"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Payout multipliers applied to the stake on a win.
const (
	ColorMultiplier       = 2
	NumberMultiplier      = 36
	NumberColorMultiplier = 72
)

// MaxStake is the largest stake whose best payout still fits in an int64.
const MaxStake = math.MaxInt64 / NumberColorMultiplier

// Multiplier returns the payout ratio for k.
func (k Kind) Multiplier() int64 {
	switch k {
	case Color:
		return ColorMultiplier
	case Number:
		return NumberMultiplier
	case NumberColor:
		return NumberColorMultiplier
	default:
		return 0
	}
}

// Target is the part of the outcome a wager must match. Number is ignored
// for Color wagers and Color is ignored for Number wagers.
type Target struct {
	Number int
	Color  wheel.Color
}

// Identity is a player. Balances are keyed by Key alone; Name is for display.
type Identity struct {
	Key  string
	Name string
}

// Bet is an admitted wager. It is immutable once queued into a round.
type Bet struct {
	ID          string
	Scope       string
	Player      Identity
	Stake       int64
	Kind        Kind
	Target      Target
	SubmittedAt time.Time
}

// Describe renders the target the way players typed it, e.g. "Red", "17"
// or "7 Black".
func (b Bet) Describe() string {
	return describe(b.Kind, b.Target)
}

func describe(k Kind, t Target) string {
	switch k {
	case Color:
		return t.Color.String()
	case Number:
		return strconv.Itoa(t.Number)
	case NumberColor:
		return fmt.Sprintf("%d %s", t.Number, t.Color)
	default:
		return "?"
	}
}

// Validate reports whether b can be admitted: a positive stake no larger
// than MaxStake and a target on the wheel.
func (b Bet) Validate() error {
	if b.Kind.Multiplier() == 0 {
		return ErrNotABet
	}
	if b.Stake <= 0 || b.Stake > MaxStake {
		return ErrInvalidAmount
	}
	if b.Kind != Color && (b.Target.Number < 0 || b.Target.Number > wheel.MaxNumber) {
		return ErrInvalidNumber
	}
	return nil
}

// Wins reports whether the bet matches outcome.
func (b Bet) Wins(outcome wheel.Outcome) bool {
	switch b.Kind {
	case Color:
		return outcome.Color == b.Target.Color
	case Number:
		return outcome.Number == b.Target.Number
	case NumberColor:
		return outcome.Number == b.Target.Number && outcome.Color == b.Target.Color
	default:
		return false
	}
}

// Payout returns the amount credited for b against outcome: the stake times
// the kind's multiplier on a win, zero on a loss. The stake itself was
// escrowed at admission and is never refunded here.
// Stakes above MaxStake pay nothing; Validate rejects them before admission.
func Payout(b Bet, outcome wheel.Outcome) int64 {
	if b.Stake <= 0 || b.Stake > MaxStake {
		return 0
	}
	if !b.Wins(outcome) {
		return 0
	}
	return b.Stake * b.Kind.Multiplier()
}
