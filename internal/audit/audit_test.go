package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records []Record
	batches int
	err     error
}

func (s *memStore) AppendBets(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches++
	s.records = append(s.records, records...)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func startWriter(t *testing.T, w *Writer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("writer did not stop")
		}
	}
}

func TestWriterFlushesFullBatches(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	w := NewWriter(store, testLogger(), Config{BatchSize: 2, Clock: quartz.NewMock(t)})
	stop := startWriter(t, w)
	defer stop()

	w.Record(Record{BetID: "a"})
	w.Record(Record{BetID: "b"})

	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), w.Written())
}

func TestWriterFlushesOnTick(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	store := &memStore{}
	w := NewWriter(store, testLogger(), Config{BatchSize: 100, FlushInterval: time.Second, Clock: mClock})
	stop := startWriter(t, w)
	defer stop()

	w.Record(Record{BetID: "a"})
	require.Eventually(t, func() bool { return len(w.queue) == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, store.count())

	mClock.Advance(time.Second).MustWait(ctx)
	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriterDrainsOnShutdown(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	w := NewWriter(store, testLogger(), Config{BatchSize: 100, Clock: quartz.NewMock(t)})
	stop := startWriter(t, w)

	for i := 0; i < 10; i++ {
		w.Record(Record{Stake: int64(i)})
	}
	stop()

	assert.Equal(t, 10, store.count())
	assert.Equal(t, 1, store.batches)
}

func TestWriterDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	w := NewWriter(&memStore{}, testLogger(), Config{QueueSize: 2, Clock: quartz.NewMock(t)})
	// Not running, so the queue never drains.
	w.Record(Record{})
	w.Record(Record{})
	w.Record(Record{})
	assert.Equal(t, uint64(1), w.Dropped())
}

func TestWriterDisablesAfterFailures(t *testing.T) {
	t.Parallel()

	store := &memStore{err: errors.New("disk full")}
	w := NewWriter(store, testLogger(), Config{BatchSize: 1, MaxFailures: 2, Clock: quartz.NewMock(t)})
	stop := startWriter(t, w)

	w.Record(Record{})
	w.Record(Record{})
	w.Record(Record{})
	require.Eventually(t, func() bool { return w.Dropped() == 3 }, time.Second, 5*time.Millisecond)
	stop()

	assert.True(t, w.disabled)
	assert.Zero(t, w.Written())
}
