package persistence

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"go.uber.org/zap"
)

// Default batching policy: flush when the batch reaches BatchMax
// events, or BatchInterval has elapsed since the oldest unflushed
// event, whichever comes first.
const (
	DefaultBatchMax      = 4096
	DefaultBatchInterval = 50 * time.Millisecond
	DefaultQueueCapacity = 1 << 16
	DefaultMaxRetries    = 5
)

// Config tunes the buffer's batching and retry policy.
type Config struct {
	BatchMax      int
	BatchInterval time.Duration
	QueueCapacity int
	MaxRetries    uint64
}

func (c Config) withDefaults() Config {
	if c.BatchMax <= 0 {
		c.BatchMax = DefaultBatchMax
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = DefaultBatchInterval
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Buffer batches Events behind a bounded channel and flushes them to
// Postgres in one transaction per batch, off the request path. A
// single writer goroutine owns the channel's receive end; producers
// (the matching engine) block on Enqueue when the channel is full,
// which is the system's only backpressure mechanism (spec.md §5).
type Buffer struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	cfg  Config

	queue   chan []Event
	halted  atomic.Bool
	done    chan struct{}
	flushed chan struct{}
}

// New constructs a Buffer and starts its writer goroutine. Call Close
// to flush whatever remains and stop the writer (exit code 0 path:
// spec.md's "exit: flush persistence first").
func New(pool *pgxpool.Pool, log *zap.Logger, cfg Config) *Buffer {
	b := &Buffer{
		pool:    pool,
		log:     log,
		cfg:     cfg.withDefaults(),
		queue:   make(chan []Event, cfg.withDefaults().QueueCapacity),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
	go b.run()
	return b
}

// Enqueue submits one request's events as a single unit; they are
// never split across batches, preserving the ordering contract within
// a request (OrderInserted -> OrderFilled/Completed/Cancelled ->
// TradeExecuted -> MarketStatsDelta -> OrderIDMinted). Returns
// ErrServiceUnavailable if the buffer has halted after exhausting its
// retry budget.
func (b *Buffer) Enqueue(ctx context.Context, events []Event) error {
	if b.halted.Load() {
		return xerrors.ErrServiceUnavailable
	}
	if len(events) == 0 {
		return nil
	}
	select {
	case b.queue <- events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Halted reports whether the buffer has stopped accepting events.
func (b *Buffer) Halted() bool {
	return b.halted.Load()
}

// Resume clears the halted flag, letting an operator restart the
// writer after fixing whatever took the durable store down. The
// caller is responsible for re-enqueueing anything the client gave up
// on; Resume does not replay.
func (b *Buffer) Resume() {
	b.halted.Store(false)
}

// Close tells the writer goroutine to drain and flush the queue that is
// already pending, and waits for it to exit. Enqueue is not gated by
// Close: events enqueued after the writer has exited are never flushed.
func (b *Buffer) Close(ctx context.Context) error {
	close(b.done)
	select {
	case <-b.flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *Buffer) run() {
	defer close(b.flushed)

	var batch []Event
	// The timer runs only while batch holds events: it starts when the
	// first event of a batch arrives, so it fires once the oldest
	// unflushed event is BatchInterval old.
	timer := time.NewTimer(b.cfg.BatchInterval)
	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	stopTimer()
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := b.flushWithRetry(context.Background(), batch); err != nil {
			b.log.Error("persistence batch exhausted retries, halting", zap.Error(err), zap.Int("batch_size", len(batch)))
			b.halted.Store(true)
		}
		batch = nil
	}

	for {
		select {
		case events := <-b.queue:
			if len(batch) == 0 {
				timer.Reset(b.cfg.BatchInterval)
			}
			batch = append(batch, events...)
			if len(batch) >= b.cfg.BatchMax {
				stopTimer()
				flush()
			}
		case <-timer.C:
			flush()
		case <-b.done:
			drain := true
			for drain {
				select {
				case events := <-b.queue:
					batch = append(batch, events...)
				default:
					drain = false
				}
			}
			flush()
			return
		}
	}
}

func (b *Buffer) flushWithRetry(ctx context.Context, batch []Event) error {
	op := func() error {
		tx, err := b.pool.Begin(ctx)
		if err != nil {
			return err
		}
		for _, ev := range batch {
			if err := ev.Apply(ctx, tx); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
		return tx.Commit(ctx)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), b.cfg.MaxRetries)
	return backoff.Retry(op, bo)
}
