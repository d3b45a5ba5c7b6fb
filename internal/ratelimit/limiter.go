// Package ratelimit provides a keyed sliding-window throttle with FIFO
// ordering. Operations sharing a key are serialised through a per-key
// queue and released only when the window has capacity; distinct keys
// never delay one another.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("ratelimit: limiter closed")

// Snapshot and write cadences for hub endpoints that ban bursts.
const (
	snapshotWindow = 10 * time.Second
	writeWindow    = 1 * time.Second
)

// task is one queued operation awaiting its window slot.
type task struct {
	ctx  context.Context
	op   func(context.Context) error
	done chan error // buffered, worker never blocks on delivery
}

// keyState holds one key's queue and its sliding window of recent
// operation start times. It outlives its worker so window capacity is
// honoured across idle periods.
type keyState struct {
	queue   []*task
	history []time.Time
	running bool
}

// Limiter throttles operations per key: at most maxOps operation starts
// within any rolling window, executed strictly in submission order.
type Limiter struct {
	maxOps int
	window time.Duration

	mu     sync.Mutex
	keys   map[string]*keyState
	closed bool
}

// New creates a Limiter allowing maxOps operation starts per key within
// a rolling window.
func New(maxOps int, window time.Duration) *Limiter {
	if maxOps < 1 {
		maxOps = 1
	}
	return &Limiter{
		maxOps: maxOps,
		window: window,
		keys:   make(map[string]*keyState),
	}
}

// NewSnapshotLimiter creates the limiter for camera snapshot fetches:
// one per device every ten seconds.
func NewSnapshotLimiter() *Limiter {
	return New(1, snapshotWindow)
}

// NewWriteLimiter creates the limiter for device property writes: one
// per device every second.
func NewWriteLimiter() *Limiter {
	return New(1, writeWindow)
}

// Do queues op under key and blocks until it has run, returning op's
// error. Ordering within a key is FIFO. If ctx is cancelled before the
// operation starts, Do returns the context error and the operation is
// discarded without consuming a window slot; an operation that has
// already started is not interrupted by Do returning.
func (l *Limiter) Do(ctx context.Context, key string, op func(context.Context) error) error {
	t := &task{ctx: ctx, op: op, done: make(chan error, 1)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	ks := l.keys[key]
	if ks == nil {
		ks = &keyState{}
		l.keys[key] = ks
	}
	ks.queue = append(ks.queue, t)
	if !ks.running {
		ks.running = true
		go l.work(key)
	}
	l.mu.Unlock()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		// The worker will discard the task when it reaches it.
		return ctx.Err()
	}
}

// work drains one key's queue, sleeping out the window whenever the key
// is at capacity. Exits when the queue empties; the key's history stays
// behind so a restarted worker still sees recent starts.
func (l *Limiter) work(key string) {
	for {
		l.mu.Lock()
		ks := l.keys[key]
		if len(ks.queue) == 0 {
			ks.running = false
			l.mu.Unlock()
			return
		}

		t := ks.queue[0]
		if t.ctx.Err() != nil {
			ks.queue = ks.queue[1:]
			l.mu.Unlock()
			t.done <- t.ctx.Err()
			continue
		}

		now := time.Now()
		ks.history = pruneWindow(ks.history, now.Add(-l.window))
		if len(ks.history) >= l.maxOps {
			wait := ks.history[0].Add(l.window).Sub(now)
			l.mu.Unlock()
			time.Sleep(wait)
			continue
		}

		ks.queue = ks.queue[1:]
		ks.history = append(ks.history, now)
		l.mu.Unlock()

		// An op error consumes its slot like any other run and never
		// stalls the queue behind it.
		t.done <- t.op(t.ctx)
	}
}

// pruneWindow drops start times at or before cutoff.
func pruneWindow(history []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(history) && !history[i].After(cutoff) {
		i++
	}
	return history[i:]
}

// Pending reports how many operations are queued under key.
func (l *Limiter) Pending(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ks := l.keys[key]; ks != nil {
		return len(ks.queue)
	}
	return 0
}

// Close rejects new submissions. Already queued operations still run.
func (l *Limiter) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
