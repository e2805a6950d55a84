// Package clicks moves access-count increments off the request path.
//
// A Recorder accepts short codes without blocking, merges increments for the
// same code and writes them to the store in batches from a single background
// goroutine. Failed writes are logged and not retried: the access count is a
// best-effort metric.
package clicks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	defaultFlushTimeout  = 3 * time.Second
)

// ErrClosed is returned by Close when the recorder was already closed.
var ErrClosed = errors.New("recorder closed")

// Store persists merged increments.
type Store interface {
	IncrementAccessCount(ctx context.Context, shortCode string, delta int64) error
}

type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.QueueSize <= 0 {
		out.QueueSize = defaultQueueSize
	}
	if out.BatchSize <= 0 {
		out.BatchSize = defaultBatchSize
	}
	if out.FlushInterval <= 0 {
		out.FlushInterval = defaultFlushInterval
	}
	if out.FlushTimeout <= 0 {
		out.FlushTimeout = defaultFlushTimeout
	}
	return out
}

type Recorder struct {
	store  Store
	logger *slog.Logger
	cfg    Config

	queue chan string
	stop  chan struct{}
	done  chan struct{}

	// mu orders sends on queue before close of stop, so the final drain sees every accepted click.
	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the background worker. Call Close to flush and stop it.
func NewRecorder(store Store, logger *slog.Logger, cfg Config) *Recorder {
	cfg = cfg.withDefaults()

	r := &Recorder{
		store:  store,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go r.run()

	return r
}

// Record schedules one increment for shortCode. It never blocks; when the queue
// is full or the recorder is closed the click is dropped and logged.
func (r *Recorder) Record(shortCode string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("click dropped: recorder closed", slog.String("short_code", shortCode))
		return
	}

	select {
	case r.queue <- shortCode:
	default:
		r.logger.Warn("click dropped: queue full", slog.String("short_code", shortCode))
	}
}

// Close stops accepting clicks, flushes everything already queued and waits
// for the worker to exit or ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	const op = "clicks.Recorder.Close"

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Error("clicks not flushed before shutdown", slog.String("op", op), slog.Any("err", ctx.Err()))
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make(map[string]int64)
	var n int

	flush := func() {
		if len(pending) == 0 {
			return
		}
		r.flush(pending)
		pending = make(map[string]int64)
		n = 0
	}

	add := func(shortCode string) {
		pending[shortCode]++
		n++
		if n >= r.cfg.BatchSize {
			flush()
		}
	}

	for {
		select {
		case shortCode := <-r.queue:
			add(shortCode)

		case <-ticker.C:
			flush()

		case <-r.stop:
			for {
				select {
				case shortCode := <-r.queue:
					add(shortCode)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(pending map[string]int64) {
	const op = "clicks.Recorder.flush"

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FlushTimeout)
	defer cancel()

	for shortCode, delta := range pending {
		if err := r.store.IncrementAccessCount(ctx, shortCode, delta); err != nil {
			r.logger.Error("failed to record clicks",
				slog.String("op", op),
				slog.String("short_code", shortCode),
				slog.Int64("delta", delta),
				slog.Any("err", err),
			)
		}
	}
}
