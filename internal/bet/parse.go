package bet

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/lox/lemonroulette/internal/wheel"
)

var (
	// ErrNotABet means the text is not a wager attempt and should be ignored.
	ErrNotABet = errors.New("not a bet")
	// ErrInvalidAmount means the stake is zero or above MaxStake.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidNumber means the pocket number is outside the wheel.
	ErrInvalidNumber = errors.New("invalid number")
)

// <amount> then either "<number>[<colour>]" or "<colour>".
var wagerRE = regexp.MustCompile(`(?i)^\s*(\d+)(?:\s+(\d{1,2})(?:\s*([кk]|ч))?|\s*([кk]|ч))\s*$`)

// Wager is a parsed but not yet admitted bet.
type Wager struct {
	Stake  int64
	Kind   Kind
	Target Target
}

// Describe renders the wager target.
func (w Wager) Describe() string {
	return describe(w.Kind, w.Target)
}

// Parse reads a wager from chat text.
func Parse(text string) (Wager, error) {
	m := wagerRE.FindStringSubmatch(text)
	if m == nil {
		return Wager{}, ErrNotABet
	}

	stake, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || stake <= 0 || stake > MaxStake {
		return Wager{}, ErrInvalidAmount
	}

	if m[2] == "" {
		return Wager{Stake: stake, Kind: Color, Target: Target{Color: colorToken(m[4])}}, nil
	}

	n, err := strconv.Atoi(m[2])
	if err != nil || n < 0 || n > wheel.MaxNumber {
		return Wager{}, ErrInvalidNumber
	}
	if m[3] == "" {
		return Wager{Stake: stake, Kind: Number, Target: Target{Number: n}}, nil
	}
	return Wager{Stake: stake, Kind: NumberColor, Target: Target{Number: n, Color: colorToken(m[3])}}, nil
}

func colorToken(tok string) wheel.Color {
	if strings.EqualFold(tok, "ч") {
		return wheel.Black
	}
	return wheel.Red
}
