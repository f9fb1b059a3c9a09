// Package eventbus implements the process-local fan-out broker the
// supervisor uses to publish BarkEvents, pipeline telemetry and audio level
// ticks to in-process listeners that subscribe through the supervisor.
// Each subscriber gets a bounded channel; a
// publish that would block past a per-message timeout marks that
// subscriber slow and drops it rather than stalling the pipeline.
package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/machug/woofalytics-v2-sub000/internal/barkerr"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// Config controls the bounded-channel fan-out policy.
type Config struct {
	QueueDepth     int
	SendTimeout    time.Duration
}

// DefaultConfig matches the runtime defaults: 32-deep queues, 100ms sends.
func DefaultConfig() Config {
	return Config{QueueDepth: 32, SendTimeout: 100 * time.Millisecond}
}

// Subscription is a live handle returned by Subscribe. Call Unsubscribe when
// done listening; the channel stays open (but unused) once the bus has
// dropped the subscriber for being slow.
type Subscription[T any] struct {
	id     uint64
	ch     chan T
	bus    *Bus[T]
}

// C returns the channel to range over for delivered messages.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Unsubscribe removes the subscription from the bus and closes its channel.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.remove(s.id)
}

// Bus fans out published values of type T to bounded-channel subscribers,
// dropping any subscriber whose channel stays full past the send timeout.
type Bus[T any] struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan T
	dropped map[uint64]bool
}

// New constructs a Bus with the given fan-out policy.
func New[T any](cfg Config, logger *slog.Logger) *Bus[T] {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus[T]{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "eventbus"),
		subs:    make(map[uint64]chan T),
		dropped: make(map[uint64]bool),
	}
}

// Subscribe registers a new bounded-channel listener.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan T, b.cfg.QueueDepth)
	b.subs[id] = ch
	return &Subscription[T]{id: id, ch: ch, bus: b}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		delete(b.dropped, id)
		close(ch)
	}
}

// Publish delivers msg to every live subscriber, preserving per-subscriber
// ordering; the order in which subscribers are served is not defined. A subscriber whose queue is still
// full after SendTimeout is marked slow, logged, and dropped from the bus;
// publish never blocks on it again.
func (b *Bus[T]) Publish(msg T) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		if !b.dropped[id] {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	timer := time.NewTimer(b.cfg.SendTimeout)
	defer timer.Stop()

	for _, id := range ids {
		b.mu.Lock()
		ch, ok := b.subs[id]
		b.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- msg:
		default:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(b.cfg.SendTimeout)
			select {
			case ch <- msg:
			case <-timer.C:
				b.markSlow(id)
			}
		}
	}
}

func (b *Bus[T]) markSlow(id uint64) {
	b.mu.Lock()
	already := b.dropped[id]
	b.dropped[id] = true
	b.mu.Unlock()
	if already {
		return
	}
	err := barkerr.Wrap(barkerr.ErrSubscriberSlow, "eventbus", "publish", nil)
	b.logger.Warn("subscriber did not drain in time; dropping",
		logging.Error(err),
		logging.Int64("subscriber_id", int64(id)),
		logging.String(logging.FieldEventType, "subscriber_slow"),
		logging.String(logging.FieldImpact, "subscriber stops receiving further events"),
	)
}

// SubscriberCount reports the number of live (non-dropped) subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id := range b.subs {
		if !b.dropped[id] {
			n++
		}
	}
	return n
}
