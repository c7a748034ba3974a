// Package ledger batches per-request usage records and flushes them to a
// store. Records hold metadata only, never transcript text or audio.
package ledger

import (
	"context"
	"sync"
	"time"

	"voice-gateway/internal/metrics"
	"voice-gateway/internal/shared"

	"go.uber.org/zap"
)

type Record struct {
	RequestID   string
	Capability  string
	Outcome     string
	StatusCode  int
	Duration    time.Duration
	InputBytes  int64
	OutputBytes int64
	CreatedAt   time.Time
}

// Recorder is what the instrumentation layer writes to.
type Recorder interface {
	Add(r Record)
}

// Nop drops every record. Used when no store is configured.
type Nop struct{}

func (Nop) Add(Record) {}

type Saver interface {
	SaveRecords(ctx context.Context, records []Record) error
}

type Ledger struct {
	mu       sync.Mutex
	pending  []Record
	timer    *time.Timer
	inflight sync.WaitGroup

	saver      Saver
	log        *zap.SugaredLogger
	interval   time.Duration
	maxBatch   int
	retryDelay time.Duration
}

type Option func(*Ledger)

func WithFlushInterval(d time.Duration) Option {
	return func(l *Ledger) { l.interval = d }
}

func WithMaxBatch(n int) Option {
	return func(l *Ledger) { l.maxBatch = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(l *Ledger) { l.retryDelay = d }
}

func New(saver Saver, log *zap.SugaredLogger, opts ...Option) *Ledger {
	l := &Ledger{
		saver:      saver,
		log:        log,
		interval:   shared.LedgerFlushInterval,
		maxBatch:   shared.LedgerMaxBatch,
		retryDelay: shared.LedgerRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add queues r. The first record of a fresh batch arms the flush timer; a
// full batch is flushed right away.
func (l *Ledger) Add(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, r)

	if len(l.pending) >= l.maxBatch {
		batch := l.take()
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.save(batch)
		}()
		return
	}

	if l.timer == nil {
		// an armed timer counts as in flight until it fires or is stopped
		l.inflight.Add(1)
		l.timer = time.AfterFunc(l.interval, l.timerFlush)
	}
}

func (l *Ledger) timerFlush() {
	defer l.inflight.Done()
	l.Flush()
}

// take swaps out the pending batch. Caller holds l.mu.
func (l *Ledger) take() []Record {
	if l.timer != nil {
		if l.timer.Stop() {
			l.inflight.Done()
		}
		l.timer = nil
	}
	batch := l.pending
	l.pending = nil
	return batch
}

// Flush writes whatever is pending.
func (l *Ledger) Flush() {
	l.mu.Lock()
	batch := l.take()
	l.mu.Unlock()
	l.save(batch)
}

// Shutdown disarms the timer, waits for in-flight flushes, including one
// the timer already started, and writes the remainder. Add must not be
// called afterwards.
func (l *Ledger) Shutdown() {
	l.log.Info("Shutting down ledger")
	l.mu.Lock()
	batch := l.take()
	l.mu.Unlock()
	l.inflight.Wait()
	l.save(batch)
}

func (l *Ledger) save(batch []Record) {
	if len(batch) == 0 {
		return
	}
	var err error
	for attempt := range shared.MaxFlushRetries {
		err = l.saver.SaveRecords(context.Background(), batch)
		if err == nil {
			l.log.Infow("Flushed ledger", "records", len(batch))
			return
		}
		l.log.Errorw("Failed to save ledger records", "error", err, "attempt", attempt+1)
		if attempt+1 < shared.MaxFlushRetries {
			time.Sleep(l.retryDelay)
		}
	}
	metrics.LedgerFlushErrors.Inc()
	l.log.Errorw("Dropping ledger batch", "records", len(batch), "error", err)
}
