// Package round runs the collection windows. Each scope owns one Round: the
// first admitted bet arms a single timer, later bets join the same window,
// and when the timer fires the queue is detached and settled in the
// background while the scope is immediately open for the next window.
package round

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/lemonroulette/internal/bet"
)

// DefaultWindow is the collection window used when none is configured.
const DefaultWindow = 5 * time.Second

// ErrClosed is returned by Admit once the registry is shutting down.
var ErrClosed = errors.New("round registry closed")

// State of a round.
type State int

const (
	Idle State = iota
	Collecting
)

func (s State) String() string {
	if s == Collecting {
		return "collecting"
	}
	return "idle"
}

// Batch is a detached queue handed to settlement.
type Batch struct {
	RoundID  string
	Scope    string
	OpenedAt time.Time
	Bets     []bet.Bet
}

// BatchSettler resolves a detached batch.
type BatchSettler interface {
	Settle(ctx context.Context, batch Batch) *Settlement
}

// Round is the per-scope state machine. All fields are guarded by mu; admit,
// withdraw and expire are mutually exclusive on the same Round.
type Round struct {
	scope string

	mu       sync.Mutex
	state    State
	id       string
	openedAt time.Time
	pending  []bet.Bet
	timer    *quartz.Timer
}

// Config configures a Registry.
type Config struct {
	Window time.Duration
	Clock  quartz.Clock
}

// Registry maps scopes to rounds.
type Registry struct {
	settler BatchSettler
	window  time.Duration
	clock   quartz.Clock
	logger  *log.Logger

	mu     sync.Mutex
	rounds map[string]*Round
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	settling sync.WaitGroup
}

// NewRegistry creates a registry that hands expired windows to settler.
func NewRegistry(settler BatchSettler, logger *log.Logger, cfg Config) *Registry {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		settler: settler,
		window:  cfg.Window,
		clock:   cfg.Clock,
		logger:  logger.WithPrefix("round"),
		rounds:  make(map[string]*Round),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Window returns the configured collection window.
func (r *Registry) Window() time.Duration { return r.window }

func (r *Registry) round(scope string, create bool) (*Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	rd, ok := r.rounds[scope]
	if !ok && create {
		rd = &Round{scope: scope}
		r.rounds[scope] = rd
	}
	return rd, nil
}

// Admit queues b into its scope's current window, opening a window and
// arming its timer if the scope was idle. It returns the round ID and the
// window deadline. Bets that fail bet.Validate are refused.
func (r *Registry) Admit(b bet.Bet) (string, time.Time, error) {
	if err := b.Validate(); err != nil {
		return "", time.Time{}, err
	}
	rd, err := r.round(b.Scope, true)
	if err != nil {
		return "", time.Time{}, err
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()

	// Close may have run between the lookup and the lock.
	if rd.state == Idle && r.isClosed() {
		return "", time.Time{}, ErrClosed
	}

	if rd.state == Idle {
		id := uuid.NewString()
		rd.state = Collecting
		rd.id = id
		rd.openedAt = r.clock.Now()
		rd.timer = r.clock.AfterFunc(r.window, func() { r.expire(rd, id) }, "round", "window")
		r.logger.Debug("Window opened", "scope", rd.scope, "round", id, "window", r.window)
	}
	rd.pending = append(rd.pending, b)
	return rd.id, rd.openedAt.Add(r.window), nil
}

// Withdraw removes every pending bet of identityKey from the scope's open
// window and returns them. open reports whether the scope had a collecting
// window at all; nothing is returned once the window has been handed to
// settlement.
func (r *Registry) Withdraw(scope, identityKey string) (removed []bet.Bet, open bool) {
	rd, err := r.round(scope, false)
	if err != nil || rd == nil {
		return nil, false
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.state != Collecting {
		return nil, false
	}

	kept := rd.pending[:0]
	for _, b := range rd.pending {
		if b.Player.Key == identityKey {
			removed = append(removed, b)
			continue
		}
		kept = append(kept, b)
	}
	// Clear the tail so removed bets are not retained by the backing array.
	for i := len(kept); i < len(rd.pending); i++ {
		rd.pending[i] = bet.Bet{}
	}
	rd.pending = kept
	return removed, true
}

// expire is the timer callback. It detaches the queue, clears the timer and
// resets the round to Idle in one step, then settles in the background.
func (r *Registry) expire(rd *Round, id string) {
	batch, ok := r.detach(rd, id)
	if !ok {
		return
	}
	r.dispatch(batch)
}

// detach takes the round's queue and registers the pending settlement with
// the WaitGroup while the round lock is held, so Close cannot observe an
// idle round whose batch is not yet counted. Every successful detach must be
// followed by dispatch.
func (r *Registry) detach(rd *Round, id string) (Batch, bool) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.state != Collecting || rd.id != id {
		return Batch{}, false
	}
	r.settling.Add(1)
	batch := Batch{RoundID: rd.id, Scope: rd.scope, OpenedAt: rd.openedAt, Bets: rd.pending}
	rd.state = Idle
	rd.id = ""
	rd.openedAt = time.Time{}
	rd.pending = nil
	rd.timer = nil
	return batch, true
}

func (r *Registry) dispatch(batch Batch) {
	r.logger.Debug("Window closed", "scope", batch.Scope, "round", batch.RoundID, "bets", len(batch.Bets))
	go func() {
		defer r.settling.Done()
		r.settler.Settle(r.ctx, batch)
	}()
}

// Pending returns a copy of the scope's open queue.
func (r *Registry) Pending(scope string) []bet.Bet {
	rd, err := r.round(scope, false)
	if err != nil || rd == nil {
		return nil
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	out := make([]bet.Bet, len(rd.pending))
	copy(out, rd.pending)
	return out
}

// State returns the scope's state and, when collecting, the window deadline.
func (r *Registry) State(scope string) (State, time.Time) {
	rd, err := r.round(scope, false)
	if err != nil || rd == nil {
		return Idle, time.Time{}
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.state != Collecting {
		return Idle, time.Time{}
	}
	return Collecting, rd.openedAt.Add(r.window)
}

// Wait blocks until every settlement dispatched so far has finished.
func (r *Registry) Wait() {
	r.settling.Wait()
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops accepting bets, settles every open window immediately and
// waits for all settlements to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rounds := make([]*Round, 0, len(r.rounds))
	for _, rd := range r.rounds {
		rounds = append(rounds, rd)
	}
	r.mu.Unlock()

	for _, rd := range rounds {
		rd.mu.Lock()
		id, timer := rd.id, rd.timer
		rd.mu.Unlock()
		if timer == nil {
			continue
		}
		timer.Stop()
		// If the timer already fired, detach fails and expire owns the batch.
		if batch, ok := r.detach(rd, id); ok {
			r.logger.Info("Settling open window on shutdown", "scope", batch.Scope, "bets", len(batch.Bets))
			r.dispatch(batch)
		}
	}

	r.settling.Wait()
	r.cancel()
}
