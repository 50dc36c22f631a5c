// Package livesync is the client side of the polling contract: each view owns pollers
// that refetch the complete state of one meeting list at a fixed interval.
package livesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
)

// Intervals observed for the three meeting panels.
const (
	ChatInterval        = 3 * time.Second
	FilesInterval       = 5 * time.Second
	WaitingRoomInterval = 3 * time.Second
)

var ErrAlreadyStarted = errors.New("poller already started")

type FetchFunc[T any] func(ctx context.Context) (T, error)

// Poller is a cancellable scheduled task. Snapshots are delivered to the observer one at a
// time, in fetch order. Fetch errors never reach the observer: they are logged and the next
// tick retries.
type Poller[T any] struct {
	name       string
	interval   time.Duration
	fetch      FetchFunc[T]
	onSnapshot func(T)
	logger     *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	failures   int
	delivering bool
}

func NewPoller[T any](name string, interval time.Duration, fetch FetchFunc[T], onSnapshot func(T), logger *slog.Logger) *Poller[T] {
	if interval <= 0 {
		interval = ChatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller[T]{
		name:       name,
		interval:   interval,
		fetch:      fetch,
		onSnapshot: onSnapshot,
		logger:     logger,
	}
}

// Start fetches immediately and then once per interval until Close is called or ctx ends.
func (p *Poller[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Close stops the loop and waits for it to exit. No snapshot delivery starts after Close
// returns. While the snapshot callback is running Close does not wait, so the callback
// may close its own poller; the callback in flight is the last one. Calling Close more
// than once, or before Start, is safe.
func (p *Poller[T]) Close() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	if cancel != nil {
		cancel()
	}
	delivering := p.delivering
	p.mu.Unlock()
	if cancel == nil || delivering {
		return
	}
	<-done
}

// Failures returns the number of consecutive failed fetches.
func (p *Poller[T]) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller[T]) tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
	snapshot, err := p.fetch(fetchCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.mu.Lock()
		p.failures++
		failures := p.failures
		p.mu.Unlock()
		p.logger.Debug("poll failed, retrying next tick",
			"poller", p.name,
			"consecutive_failures", failures,
			"err", apperr.TransientFetch(p.name, err),
		)
		return
	}

	p.mu.Lock()
	p.failures = 0
	if p.onSnapshot == nil || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.delivering = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.delivering = false
		p.mu.Unlock()
	}()
	p.onSnapshot(snapshot)
}
