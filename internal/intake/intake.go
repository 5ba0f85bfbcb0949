// Package intake admits wagers: it parses chat text, escrows the stake and
// queues the bet into its scope's round. It also handles cancellation, which
// is the only way an escrowed stake comes back before settlement.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/lemonroulette/internal/bet"
	"github.com/lox/lemonroulette/internal/ledger"
	"github.com/lox/lemonroulette/internal/round"
)

var (
	// ErrNoOpenWindow is returned by Cancel when the scope is not collecting
	// bets at all.
	ErrNoOpenWindow = errors.New("no open window")
	// ErrNothingToCancel is returned when the scope's window is open but the
	// player has no pending bets in it.
	ErrNothingToCancel = errors.New("nothing to cancel")
)

// Status tags the result of Submit.
type Status int

const (
	// NotABet means the text was not a wager attempt; callers stay silent.
	NotABet Status = iota
	Rejected
	Accepted
)

func (s Status) String() string {
	switch s {
	case NotABet:
		return "not_a_bet"
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reason explains a rejection.
type Reason int

const (
	ReasonNone Reason = iota
	InvalidAmount
	InvalidNumber
	InsufficientFunds
	Closed
)

func (r Reason) String() string {
	switch r {
	case InvalidAmount:
		return "invalid_amount"
	case InvalidNumber:
		return "invalid_number"
	case InsufficientFunds:
		return "insufficient_funds"
	case Closed:
		return "closed"
	default:
		return "none"
	}
}

// Request is one inbound chat message.
type Request struct {
	Scope  string
	Player bet.Identity
	Text   string
}

// Result is the tagged outcome of Submit.
type Result struct {
	Status   Status
	Reason   Reason
	Bet      bet.Bet
	RoundID  string
	Deadline time.Time
	// Balance after the stake was escrowed, or the balance that was too
	// small to cover it.
	Balance int64
}

// Ledger is the subset of the balance ledger intake needs.
type Ledger interface {
	Balance(key string) int64
	Debit(key string, amount int64) (int64, error)
	Credit(key string, amount int64) (int64, error)
}

// Rounds is the subset of the round registry intake needs.
type Rounds interface {
	Admit(b bet.Bet) (string, time.Time, error)
	Withdraw(scope, identityKey string) ([]bet.Bet, bool)
}

// Intake admits and cancels bets.
type Intake struct {
	ledger Ledger
	rounds Rounds
	clock  quartz.Clock
	logger *log.Logger
}

// New creates an Intake.
func New(l Ledger, rounds Rounds, clock quartz.Clock, logger *log.Logger) *Intake {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Intake{
		ledger: l,
		rounds: rounds,
		clock:  clock,
		logger: logger.WithPrefix("intake"),
	}
}

// Submit parses req.Text and, if it is a valid wager the player can afford,
// escrows the stake and queues the bet.
func (in *Intake) Submit(ctx context.Context, req Request) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: Rejected, Reason: Closed}
	}

	wager, err := bet.Parse(req.Text)
	switch {
	case errors.Is(err, bet.ErrNotABet):
		return Result{Status: NotABet}
	case errors.Is(err, bet.ErrInvalidAmount):
		return Result{Status: Rejected, Reason: InvalidAmount}
	case errors.Is(err, bet.ErrInvalidNumber):
		return Result{Status: Rejected, Reason: InvalidNumber}
	case err != nil:
		return Result{Status: Rejected, Reason: InvalidAmount}
	}

	key := req.Player.Key
	if bal := in.ledger.Balance(key); wager.Stake > bal {
		return Result{Status: Rejected, Reason: InsufficientFunds, Balance: bal}
	}

	bal, err := in.ledger.Debit(key, wager.Stake)
	if err != nil {
		// Lost a race with another debit of the same player.
		return Result{Status: Rejected, Reason: InsufficientFunds, Balance: bal}
	}

	b := bet.Bet{
		ID:          uuid.NewString(),
		Scope:       req.Scope,
		Player:      req.Player,
		Stake:       wager.Stake,
		Kind:        wager.Kind,
		Target:      wager.Target,
		SubmittedAt: in.clock.Now(),
	}

	roundID, deadline, err := in.rounds.Admit(b)
	if err != nil {
		// The bet never entered a round, so the escrow goes straight back.
		if _, cerr := in.ledger.Credit(key, b.Stake); cerr != nil {
			in.logger.Error("Failed to refund rejected bet", "player", key, "stake", b.Stake, "error", cerr)
		}
		reason := Closed
		switch {
		case errors.Is(err, round.ErrClosed):
		case errors.Is(err, bet.ErrInvalidAmount):
			reason = InvalidAmount
		case errors.Is(err, bet.ErrInvalidNumber):
			reason = InvalidNumber
		default:
			in.logger.Error("Failed to admit bet", "scope", req.Scope, "player", key, "error", err)
		}
		return Result{Status: Rejected, Reason: reason, Balance: in.ledger.Balance(key)}
	}

	in.logger.Debug("Bet admitted",
		"scope", req.Scope,
		"round", roundID,
		"player", key,
		"stake", b.Stake,
		"kind", b.Kind,
		"target", b.Describe())

	return Result{
		Status:   Accepted,
		Bet:      b,
		RoundID:  roundID,
		Deadline: deadline,
		Balance:  bal,
	}
}

// Cancel withdraws every pending bet the player has in the scope's open
// window and refunds the stakes. It returns ErrNoOpenWindow when the scope is
// idle and ErrNothingToCancel when only other players have bets pending.
func (in *Intake) Cancel(ctx context.Context, scope string, player bet.Identity) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed, open := in.rounds.Withdraw(scope, player.Key)
	if !open {
		return 0, ErrNoOpenWindow
	}
	if len(removed) == 0 {
		return 0, ErrNothingToCancel
	}

	var refunded int64
	for _, b := range removed {
		if _, err := in.ledger.Credit(b.Player.Key, b.Stake); err != nil {
			in.logger.Error("Failed to refund cancelled bet", "scope", scope, "player", b.Player.Key, "bet", b.ID, "error", err)
			continue
		}
		refunded += b.Stake
	}

	in.logger.Debug("Bets cancelled", "scope", scope, "player", player.Key, "bets", len(removed), "refunded", refunded)
	return refunded, nil
}

var _ Ledger = (*ledger.Ledger)(nil)
var _ Rounds = (*round.Registry)(nil)
