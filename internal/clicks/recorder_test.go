package clicks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	calls  int
	counts map[string]int64
	err    error
	block  chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[string]int64)}
}

func (s *fakeStore) IncrementAccessCount(_ context.Context, shortCode string, delta int64) error {
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return s.err
	}
	s.counts[shortCode] += delta
	return nil
}

func (s *fakeStore) count(shortCode string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[shortCode]
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRecorder_MergesPerShortCode(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store, discardLogger, Config{
		BatchSize:     1000,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		r.Record("abc123")
	}
	r.Record("xyz789")

	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, int64(10), store.count("abc123"))
	assert.Equal(t, int64(1), store.count("xyz789"))
	assert.Equal(t, 2, store.callCount())
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store, discardLogger, Config{
		BatchSize:     1000,
		FlushInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	r.Record("abc123")
	r.Record("abc123")

	assert.Eventually(t, func() bool {
		return store.count("abc123") == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRecorder_FlushesOnBatchSize(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store, discardLogger, Config{
		BatchSize:     5,
		FlushInterval: time.Hour,
	})
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	for i := 0; i < 5; i++ {
		r.Record("abc123")
	}

	assert.Eventually(t, func() bool {
		return store.count("abc123") == 5
	}, time.Second, 5*time.Millisecond)
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	const n = 500

	store := newFakeStore()
	r := NewRecorder(store, discardLogger, Config{
		QueueSize:     n,
		BatchSize:     50,
		FlushInterval: 5 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("abc123")
		}()
	}
	wg.Wait()

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, int64(n), store.count("abc123"))
}

func TestRecorder_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("storage unavailable")

	r := NewRecorder(store, discardLogger, Config{FlushInterval: time.Hour})

	r.Record("abc123")

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 1, store.callCount())
	assert.Zero(t, store.count("abc123"))
}

func TestRecorder_Close(t *testing.T) {
	t.Run("record after close is dropped", func(t *testing.T) {
		store := newFakeStore()
		r := NewRecorder(store, discardLogger, Config{})
		require.NoError(t, r.Close(context.Background()))

		r.Record("abc123")

		assert.Zero(t, store.callCount())
	})

	t.Run("close twice", func(t *testing.T) {
		r := NewRecorder(newFakeStore(), discardLogger, Config{})
		require.NoError(t, r.Close(context.Background()))

		assert.ErrorIs(t, r.Close(context.Background()), ErrClosed)
	})

	t.Run("context expires before flush", func(t *testing.T) {
		store := newFakeStore()
		store.block = make(chan struct{})
		t.Cleanup(func() { close(store.block) })

		r := NewRecorder(store, discardLogger, Config{FlushInterval: time.Hour})
		r.Record("abc123")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	})
}

// droppedCounter counts warnings, which the recorder emits once per dropped click.
type droppedCounter struct {
	n atomic.Int64
}

func (h *droppedCounter) Enabled(context.Context, slog.Level) bool { return true }

func (h *droppedCounter) Handle(_ context.Context, rec slog.Record) error {
	if rec.Level == slog.LevelWarn {
		h.n.Add(1)
	}
	return nil
}

func (h *droppedCounter) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *droppedCounter) WithGroup(string) slog.Handler      { return h }

func TestRecorder_RecordRacingClose(t *testing.T) {
	const (
		workers   = 8
		perWorker = 200
	)

	for i := 0; i < 20; i++ {
		store := newFakeStore()
		dropped := &droppedCounter{}

		r := NewRecorder(store, slog.New(dropped), Config{
			QueueSize:     workers * perWorker,
			BatchSize:     1000,
			FlushInterval: time.Hour,
		})

		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perWorker; j++ {
					r.Record("abc123")
				}
			}()
		}

		close(start)
		require.NoError(t, r.Close(context.Background()))
		wg.Wait()

		assert.Empty(t, r.queue)
		assert.Equal(t, int64(workers*perWorker), store.count("abc123")+dropped.n.Load())
	}
}

func TestRecorder_QueueFull(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})

	r := NewRecorder(store, discardLogger, Config{
		QueueSize:     1,
		BatchSize:     1,
		FlushInterval: time.Hour,
	})

	// the first click is taken by the worker, which then blocks in the store
	r.Record("abc123")
	assert.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, time.Millisecond)

	r.Record("abc123")
	r.Record("abc123")
	r.Record("abc123")

	close(store.block)
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, int64(2), store.count("abc123"))
}
