package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink forwards events to an external channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, evt Event) error
}

const (
	sinkTimeout = 5 * time.Second
	// DefaultSinkQueueSize bounds the events buffered per sink.
	DefaultSinkQueueSize = 1024
)

// Bus fans events out to in-process subscribers and to external sinks.
// Local delivery happens on the caller's goroutine. Each sink has its own
// bounded queue drained by a worker, so a slow or hung sink never delays the
// publisher or the other sinks. A full queue drops the event.
type Bus struct {
	origin    string
	logger    *zap.Logger
	queueSize int

	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	workers []*sinkWorker
	started bool
	closed  bool

	// ctx bounds in-flight sink sends; cancelled when Close gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type sinkWorker struct {
	sink  Sink
	queue chan Event
}

// NewBus creates a bus. origin identifies this instance on shared channels so
// it can ignore its own broadcasts. Sinks receive nothing until Start.
func NewBus(origin string, logger *zap.Logger, sinks ...Sink) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		origin:    origin,
		logger:    logger,
		queueSize: DefaultSinkQueueSize,
		subs:      make(map[uint64]*Subscription),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, s := range sinks {
		b.AddSink(s)
	}
	return b
}

func (b *Bus) Origin() string { return b.origin }

// SetQueueSize changes the per-sink buffer for sinks added afterwards.
func (b *Bus) SetQueueSize(n int) {
	if n > 0 {
		b.mu.Lock()
		b.queueSize = n
		b.mu.Unlock()
	}
}

func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	w := &sinkWorker{sink: s, queue: make(chan Event, b.queueSize)}
	b.workers = append(b.workers, w)
	if b.started {
		b.run(w)
	}
}

// Start launches one dispatch worker per sink. Calling it again is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	for _, w := range b.workers {
		b.run(w)
	}
}

func (b *Bus) run(w *sinkWorker) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for evt := range w.queue {
			if b.ctx.Err() != nil {
				continue
			}
			b.send(w.sink, evt)
		}
	}()
}

func (b *Bus) send(s Sink, evt Event) {
	ctx, cancel := context.WithTimeout(b.ctx, sinkTimeout)
	defer cancel()
	if err := s.Send(ctx, evt); err != nil {
		b.logger.Warn("Event sink failed (non-fatal)",
			zap.String("sink", s.Name()),
			zap.String("event_type", string(evt.Type)),
			zap.String("product_id", evt.ProductID),
			zap.Error(err),
		)
	}
}

// Close stops accepting events and waits for the sink queues to drain. When
// ctx expires first, in-flight sends are cancelled and queued events dropped.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, w := range b.workers {
		close(w.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}

// Publish delivers locally and queues the event for every sink. It never
// blocks on a sink; ctx is not used for sink delivery.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.Origin == "" {
		evt.Origin = b.origin
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.Deliver(evt)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, w := range b.workers {
		select {
		case w.queue <- evt:
		default:
			b.logger.Warn("Event sink queue full, dropping event",
				zap.String("sink", w.sink.Name()),
				zap.String("event_type", string(evt.Type)),
				zap.String("product_id", evt.ProductID),
			)
		}
	}
}

// Deliver hands an event to local subscribers only. Used for events relayed
// from other instances.
func (b *Bus) Deliver(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.productID != "" && sub.productID != evt.ProductID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.logger.Debug("Dropping event for slow subscriber",
				zap.Uint64("subscriber", sub.id),
				zap.String("event_type", string(evt.Type)),
			)
		}
	}
}

// Subscription receives events until Close is called.
type Subscription struct {
	id        uint64
	productID string
	ch        chan Event
	bus       *Bus
	once      sync.Once
}

func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a local subscriber. An empty productID receives every
// product's events.
func (b *Bus) Subscribe(productID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		productID: productID,
		ch:        make(chan Event, buffer),
		bus:       b,
	}
	b.subs[sub.id] = sub
	return sub
}

// SubscriberCount is exposed for health output and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
