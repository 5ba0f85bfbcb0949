package round

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/lemonroulette/internal/audit"
	"github.com/lox/lemonroulette/internal/bet"
	"github.com/lox/lemonroulette/internal/ledger"
	"github.com/lox/lemonroulette/internal/wheel"
)

const testWindow = 5 * time.Second

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type fixedDrawer struct {
	outcome wheel.Outcome
	draws   atomic.Int64
}

func (d *fixedDrawer) Draw() wheel.Outcome {
	d.draws.Add(1)
	return d.outcome
}

type captureNotifier struct {
	mu          sync.Mutex
	settlements []*Settlement
}

func (c *captureNotifier) Notify(_ context.Context, s *Settlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settlements = append(c.settlements, s)
	return nil
}

func (c *captureNotifier) all() []*Settlement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Settlement(nil), c.settlements...)
}

type captureRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureRecorder) Record(rec audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

type harness struct {
	clock    *quartz.Mock
	drawer   *fixedDrawer
	ledger   *ledger.Ledger
	notifier *captureNotifier
	recorder *captureRecorder
	settler  *Settler
	registry *Registry
}

func newHarness(t *testing.T, outcome wheel.Outcome) *harness {
	t.Helper()
	h := &harness{
		clock:    quartz.NewMock(t),
		drawer:   &fixedDrawer{outcome: outcome},
		ledger:   ledger.New(1000),
		notifier: &captureNotifier{},
		recorder: &captureRecorder{},
	}
	h.settler = NewSettler(h.drawer, h.ledger, h.recorder, h.notifier, h.clock, testLogger())
	h.registry = NewRegistry(h.settler, testLogger(), Config{Window: testWindow, Clock: h.clock})
	t.Cleanup(h.registry.Close)
	return h
}

var betSeq atomic.Int64

func newBet(scope, key string, stake int64, kind bet.Kind, target bet.Target) bet.Bet {
	return bet.Bet{
		ID:     fmt.Sprintf("bet-%d", betSeq.Add(1)),
		Scope:  scope,
		Player: bet.Identity{Key: key, Name: "@" + key},
		Stake:  stake,
		Kind:   kind,
		Target: target,
	}
}

// admit escrows the stake and queues the bet, the way intake does.
func (h *harness) admit(t *testing.T, b bet.Bet) string {
	t.Helper()
	if _, err := h.ledger.Debit(b.Player.Key, b.Stake); err != nil {
		t.Fatalf("debit: %v", err)
	}
	id, _, err := h.registry.Admit(b)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	return id
}

// expire advances past the window and waits for settlement to finish.
func (h *harness) expire(t *testing.T) {
	t.Helper()
	h.clock.Advance(testWindow).MustWait(testContext(t))
	h.registry.Wait()
}
