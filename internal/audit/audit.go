// Package audit records settled bets. Recording is fire-and-forget: records
// are queued without blocking and written in batches by a background writer.
// A full queue or a failing store loses records, never payouts.
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Record is one settled bet.
type Record struct {
	RoundID       string
	Scope         string
	BetID         string
	PlayerKey     string
	PlayerName    string
	Stake         int64
	Kind          string
	Target        string
	OutcomeNumber int
	OutcomeColor  string
	Payout        int64
	SettledAt     time.Time
}

// Store persists batches of records.
type Store interface {
	AppendBets(ctx context.Context, records []Record) error
}

// Config tunes the writer.
type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	// MaxFailures consecutive store errors disable the writer.
	MaxFailures int
	Clock       quartz.Clock
}

// Writer buffers records and flushes them to a Store.
type Writer struct {
	store  Store
	cfg    Config
	logger *log.Logger
	queue  chan Record
	buf    []Record

	failures int
	disabled bool

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter creates a writer. Call Run to start draining the queue.
func NewWriter(store Store, logger *log.Logger, cfg Config) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	return &Writer{
		store:  store,
		cfg:    cfg,
		logger: logger.WithPrefix("audit"),
		queue:  make(chan Record, cfg.QueueSize),
		buf:    make([]Record, 0, cfg.BatchSize),
	}
}

// Record queues rec without blocking. When the queue is full the record is
// dropped and counted.
func (w *Writer) Record(rec Record) {
	select {
	case w.queue <- rec:
	default:
		if w.dropped.Add(1)%100 == 1 {
			w.logger.Warn("Audit queue full, dropping records", "dropped", w.dropped.Load())
		}
	}
}

// Written returns the number of records the store accepted.
func (w *Writer) Written() uint64 { return w.written.Load() }

// Dropped returns the number of records lost to a full queue, store errors
// or a disabled writer.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Run drains the queue until ctx is cancelled, then writes whatever is still
// queued and returns.
func (w *Writer) Run(ctx context.Context) error {
	ticker := w.cfg.Clock.NewTicker(w.cfg.FlushInterval, "audit", "flush")
	defer ticker.Stop()

	for {
		select {
		case rec := <-w.queue:
			w.buf = append(w.buf, rec)
			if len(w.buf) >= w.cfg.BatchSize {
				w.flush(ctx)
			}
		case <-ticker.C:
			w.flush(ctx)
		case <-ctx.Done():
			w.drain()
			return nil
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case rec := <-w.queue:
			w.buf = append(w.buf, rec)
		default:
			// ctx is already cancelled; give the final batch its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(flushCtx)
			cancel()
			return
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	if len(w.buf) == 0 {
		return
	}
	batch := w.buf
	w.buf = make([]Record, 0, w.cfg.BatchSize)

	if w.disabled {
		w.dropped.Add(uint64(len(batch)))
		return
	}

	if err := w.store.AppendBets(ctx, batch); err != nil {
		w.failures++
		w.dropped.Add(uint64(len(batch)))
		w.logger.Error("Audit flush failed", "error", err, "records", len(batch), "failures", w.failures)
		if w.failures >= w.cfg.MaxFailures {
			w.disabled = true
			w.logger.Error("Audit logging disabled after repeated failures", "failures", w.failures)
		}
		return
	}
	w.failures = 0
	w.written.Add(uint64(len(batch)))
	w.logger.Debug("Flushed audit records", "records", len(batch))
}

// Discard is a recorder that drops everything.
type Discard struct{}

// Record implements the recorder contract.
func (Discard) Record(Record) {}
