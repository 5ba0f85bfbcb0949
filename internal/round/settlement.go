package round

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/lemonroulette/internal/audit"
	"github.com/lox/lemonroulette/internal/bet"
	"github.com/lox/lemonroulette/internal/wheel"
)

// Drawer produces the outcome of a round.
type Drawer interface {
	Draw() wheel.Outcome
}

// Crediter pays winners.
type Crediter interface {
	Credit(key string, amount int64) (int64, error)
}

// Recorder receives one audit record per settled bet. It must not block.
type Recorder interface {
	Record(rec audit.Record)
}

// Line is one resolved bet.
type Line struct {
	Bet    bet.Bet
	Won    bool
	Payout int64
	// Fault is set when a winning payout could not be credited.
	Fault error
}

// Entry aggregates one player's bets in a round.
type Entry struct {
	Player bet.Identity
	Won    int64
	Lost   int64
	Lines  []Line
}

// Settlement is the resolved round.
type Settlement struct {
	RoundID   string
	Scope     string
	Outcome   wheel.Outcome
	Entries   []Entry
	SettledAt time.Time
}

// Bets returns the number of bets resolved in s.
func (s *Settlement) Bets() int {
	n := 0
	for _, e := range s.Entries {
		n += len(e.Lines)
	}
	return n
}

// Settler draws one outcome per batch, pays winners and reports the result.
type Settler struct {
	drawer   Drawer
	ledger   Crediter
	recorder Recorder
	notifier Notifier
	clock    quartz.Clock
	logger   *log.Logger
}

// NewSettler wires a settler. recorder and notifier may be nil.
func NewSettler(drawer Drawer, ledger Crediter, recorder Recorder, notifier Notifier, clock quartz.Clock, logger *log.Logger) *Settler {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	if notifier == nil {
		notifier = NullNotifier{}
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Settler{
		drawer:   drawer,
		ledger:   ledger,
		recorder: recorder,
		notifier: notifier,
		clock:    clock,
		logger:   logger.WithPrefix("settle"),
	}
}

// Settle resolves batch. An empty batch produces no draw, no report and no
// side effects, and Settle returns nil.
func (s *Settler) Settle(ctx context.Context, batch Batch) *Settlement {
	if len(batch.Bets) == 0 {
		return nil
	}

	outcome := s.drawer.Draw()
	settlement := &Settlement{
		RoundID:   batch.RoundID,
		Scope:     batch.Scope,
		Outcome:   outcome,
		SettledAt: s.clock.Now(),
	}
	logger := s.logger.With("scope", batch.Scope, "round", batch.RoundID)

	index := make(map[string]int)
	for _, b := range batch.Bets {
		line := s.resolve(b, outcome)
		if line.Fault != nil {
			logger.Error("Failed to credit payout", "player", b.Player.Key, "bet", b.ID, "payout", line.Payout, "error", line.Fault)
		}

		i, ok := index[b.Player.Key]
		if !ok {
			i = len(settlement.Entries)
			index[b.Player.Key] = i
			settlement.Entries = append(settlement.Entries, Entry{Player: b.Player})
		}
		entry := &settlement.Entries[i]
		if line.Won {
			entry.Won += creditedAmount(line)
		} else {
			entry.Lost += b.Stake
		}
		entry.Lines = append(entry.Lines, line)

		s.recorder.Record(audit.Record{
			RoundID:       batch.RoundID,
			Scope:         batch.Scope,
			BetID:         b.ID,
			PlayerKey:     b.Player.Key,
			PlayerName:    b.Player.Name,
			Stake:         b.Stake,
			Kind:          b.Kind.String(),
			Target:        b.Describe(),
			OutcomeNumber: outcome.Number,
			OutcomeColor:  outcome.Color.String(),
			Payout:        creditedAmount(line),
			SettledAt:     settlement.SettledAt,
		})
	}

	logger.Info("Round settled", "outcome", outcome, "bets", len(batch.Bets), "players", len(settlement.Entries))

	if err := s.notifier.Notify(ctx, settlement); err != nil {
		logger.Warn("Failed to deliver settlement report", "error", err)
	}
	return settlement
}

// resolve computes and credits one bet. Panics from the ledger are turned
// into a fault on this line so the rest of the batch still settles.
func (s *Settler) resolve(b bet.Bet, outcome wheel.Outcome) (line Line) {
	line = Line{Bet: b, Payout: bet.Payout(b, outcome)}
	line.Won = line.Payout > 0
	if !line.Won {
		return line
	}

	defer func() {
		if r := recover(); r != nil {
			line.Fault = fmt.Errorf("credit panicked: %v", r)
		}
	}()
	if _, err := s.ledger.Credit(b.Player.Key, line.Payout); err != nil {
		line.Fault = err
	}
	return line
}

func creditedAmount(line Line) int64 {
	if !line.Won || line.Fault != nil {
		return 0
	}
	return line.Payout
}
