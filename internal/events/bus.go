package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/metrics"
)

// Sink receives every delivered event. Sinks run on the publisher's
// goroutine and should return quickly.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Config controls duplicate suppression and subscriber buffering.
//   - DedupTTL: structural (type, source, coarse ts) window (default 10s).
//   - NotifyTTL: human-readable (message, type) window (default 2s).
//   - SweepInterval: how often expired dedup entries are purged (default 60s).
//   - BufferSize: per-subscriber channel depth (default 256).
//   - Clock: drives dedup expiry; defaults to the system clock.
type Config struct {
	DedupTTL      time.Duration
	NotifyTTL     time.Duration
	SweepInterval time.Duration
	BufferSize    int
	SinkTimeout   time.Duration
	Clock         extract.Clock
	Logger        *zap.Logger
}

const (
	defaultDedupTTL      = 10 * time.Second
	defaultNotifyTTL     = 2 * time.Second
	defaultSweepInterval = 60 * time.Second
	defaultBufferSize    = 256
	defaultSinkTimeout   = 5 * time.Second
	dropLogInterval      = 5 * time.Second
)

// Bus delivers ordered pipeline events to live subscribers while suppressing
// duplicates from retried or overlapping source events. Publish never blocks;
// a subscriber that falls behind loses events rather than stalling the
// pipeline.
type Bus struct {
	cfg    Config
	sinks  []Sink
	dedup  *DedupCache
	notify *DedupCache
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[int]chan Event
	nextSub int

	terminal    atomic.Bool
	closed      atomic.Bool
	dropped     atomic.Int64
	dropLimiter rateLimiter

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewBus initializes a Bus and starts the background sweep goroutine.
func NewBus(cfg Config, sinks ...Sink) *Bus {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	if cfg.NotifyTTL <= 0 {
		cfg.NotifyTTL = defaultNotifyTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = systemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		dedup:       NewDedupCache(cfg.DedupTTL, clk),
		notify:      NewDedupCache(cfg.NotifyTTL, clk),
		logger:      logger,
		subs:        make(map[int]chan Event),
		dropLimiter: rateLimiter{interval: dropLogInterval},
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	go b.sweepLoop()
	return b
}

// Publish runs an event through validation and both dedup windows, then fans
// it out. Unknown kinds are ignored. After a terminal event has been
// delivered, further terminal events are dropped so each run sees exactly
// one of complete or error.
func (b *Bus) Publish(evt Event) {
	if b == nil || b.closed.Load() {
		return
	}
	if !KnownKind(evt.Type) {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid event", zap.Error(err))
		return
	}
	if b.dedup.Seen(evt.DedupKey()) {
		metrics.ObserveEventSuppressed("dedup")
		return
	}
	if evt.Message != "" && b.notify.Seen(evt.NotificationKey()) {
		metrics.ObserveEventSuppressed("notification")
		return
	}
	if evt.Type.Terminal() && b.terminal.Swap(true) {
		metrics.ObserveEventSuppressed("terminal")
		return
	}
	b.deliver(evt)
}

// Subscribe registers a live subscriber. The returned cancel func must be
// called when the subscriber goes away; the channel is closed on Bus close.
// Subscribing to a closed bus yields an already-closed channel, never one
// that would block forever.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.cfg.BufferSize)
	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Terminal reports whether a terminal event has already been delivered.
func (b *Bus) Terminal() bool {
	return b.terminal.Load()
}

// Close stops the sweep loop, closes subscriber channels, and closes sinks.
// Safe to call multiple times.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stopCh)
		<-b.doneCh

		b.mu.Lock()
		for id, ch := range b.subs {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()

		for _, sink := range b.sinks {
			if sink == nil {
				continue
			}
			if err := sink.Close(ctx); err != nil {
				b.logger.Warn("event sink close failed", zap.Error(err))
			}
		}
	})
	return nil
}

func (b *Bus) deliver(evt Event) {
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			if b.dropLimiter.Allow(time.Now()) {
				count := b.dropped.Swap(0)
				b.logger.Warn("events dropped due to slow subscriber", zap.Int64("dropped", count))
			}
		}
	}
	b.mu.Unlock()

	for _, sink := range b.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.SinkTimeout)
		if err := sink.Consume(ctx, evt); err != nil {
			b.logger.Warn("event sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (b *Bus) sweepLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := b.dedup.Sweep() + b.notify.Sweep()
			if removed > 0 {
				b.logger.Debug("swept expired dedup entries", zap.Int("removed", removed))
			}
		case <-b.stopCh:
			return
		}
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
