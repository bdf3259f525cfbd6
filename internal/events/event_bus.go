// Package events routes session notifications to subscribers such as the
// WebSocket hub and telemetry.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler processes one event
type EventHandler func(event Event) error

// EventFilter decides whether a subscription sees an event
type EventFilter func(event Event) bool

// SubscriptionOptions configures a subscription
type SubscriptionOptions struct {
	Filter EventFilter
	Async  bool // run the handler on its own goroutine, losing ordering
}

// Subscription is a registered handler. An empty EventType matches every event.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive reports whether the subscription still receives events
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

func (s *Subscription) wants(e Event) bool {
	if !s.active.Load() {
		return false
	}
	if s.EventType != "" && s.EventType != e.GetType() {
		return false
	}
	return s.Options.Filter == nil || s.Options.Filter(e)
}

// EventBusStats is a point-in-time view of the bus counters
type EventBusStats struct {
	Published     int64         `json:"published"`
	Delivered     int64         `json:"delivered"`
	Dropped       int64         `json:"dropped"`
	HandlerErrors int64         `json:"handlerErrors"`
	Subscribers   int64         `json:"subscribers"`
	Queued        int           `json:"queued"`
	MaxDispatch   time.Duration `json:"maxDispatch"`
}

// EventBusConfig configures the event bus
type EventBusConfig struct {
	NumWorkers int `json:"numWorkers"`
	BufferSize int `json:"bufferSize"`
}

// DefaultEventBusConfig returns defaults. A single worker keeps delivery in
// publish order.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		NumWorkers: 1,
		BufferSize: 4096,
	}
}

// EventBus fans events out to subscribers from a bounded queue. Publish never
// blocks, so it is safe to call while holding the session lock.
type EventBus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs []*Subscription

	queue chan Event
	quit  chan struct{}
	wg    sync.WaitGroup

	published     atomic.Int64
	delivered     atomic.Int64
	dropped       atomic.Int64
	handlerErrors atomic.Int64
	subscribers   atomic.Int64
	maxDispatch   atomic.Int64
	stopped       atomic.Bool
}

// NewEventBus creates an event bus and starts its workers
func NewEventBus(logger *zap.Logger, config EventBusConfig) *EventBus {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultEventBusConfig().BufferSize
	}

	eb := &EventBus{
		logger: logger,
		queue:  make(chan Event, config.BufferSize),
		quit:   make(chan struct{}),
	}

	for i := 0; i < config.NumWorkers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	eb.logger.Debug("EventBus started",
		zap.Int("workers", config.NumWorkers),
		zap.Int("buffer_size", config.BufferSize),
	)

	return eb
}

// worker delivers queued events until Stop, then drains what is left
func (eb *EventBus) worker() {
	defer eb.wg.Done()

	for {
		select {
		case e := <-eb.queue:
			eb.dispatch(e)
		case <-eb.quit:
			for {
				select {
				case e := <-eb.queue:
					eb.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) dispatch(e Event) {
	start := time.Now()

	eb.mu.RLock()
	subs := eb.subs
	eb.mu.RUnlock()

	for _, sub := range subs {
		if !sub.wants(e) {
			continue
		}
		if sub.Options.Async {
			go eb.call(sub, e)
		} else {
			eb.call(sub, e)
		}
	}

	eb.delivered.Add(1)
	if d := int64(time.Since(start)); d > eb.maxDispatch.Load() {
		eb.maxDispatch.Store(d)
	}
}

// call runs one handler, turning a panic into a counted error
func (eb *EventBus) call(sub *Subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.handlerErrors.Add(1)
			eb.logger.Error("Event handler panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(e.GetType())),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.Handler(e); err != nil {
		eb.handlerErrors.Add(1)
		eb.logger.Warn("Event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(e.GetType())),
			zap.Error(err),
		)
	}
}

// Subscribe registers a handler for one event type. Handlers run on the bus
// worker in publish order unless Async is set.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	sub := &Subscription{
		ID:        "sub_" + uuid.NewString(),
		EventType: eventType,
		Handler:   handler,
	}
	if len(opts) > 0 {
		sub.Options = opts[0]
	}
	sub.active.Store(true)

	eb.mu.Lock()
	// Copy on write so dispatch can iterate without the lock
	next := make([]*Subscription, len(eb.subs), len(eb.subs)+1)
	copy(next, eb.subs)
	eb.subs = append(next, sub)
	eb.mu.Unlock()

	eb.subscribers.Add(1)
	eb.logger.Debug("Subscription added",
		zap.String("id", sub.ID),
		zap.String("event_type", string(eventType)),
	)
	return sub
}

// SubscribeAll registers a handler for every event type
func (eb *EventBus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	return eb.Subscribe("", handler, opts...)
}

// Unsubscribe removes a subscription. Calling it twice is harmless.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.active.Swap(false) {
		return
	}
	eb.subscribers.Add(-1)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	next := make([]*Subscription, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s != sub {
			next = append(next, s)
		}
	}
	eb.subs = next
}

// Publish queues an event without blocking. Events published after Stop or
// while the queue is full are dropped and counted.
func (eb *EventBus) Publish(e Event) {
	if eb.stopped.Load() {
		eb.dropped.Add(1)
		return
	}

	select {
	case eb.queue <- e:
		eb.published.Add(1)
	default:
		eb.dropped.Add(1)
		eb.logger.Warn("Event dropped, queue full",
			zap.String("event_type", string(e.GetType())),
		)
	}
}

// PublishSync delivers an event on the caller's goroutine
func (eb *EventBus) PublishSync(e Event) {
	eb.published.Add(1)
	eb.dispatch(e)
}

// GetStats returns the current counters
func (eb *EventBus) GetStats() EventBusStats {
	return EventBusStats{
		Published:     eb.published.Load(),
		Delivered:     eb.delivered.Load(),
		Dropped:       eb.dropped.Load(),
		HandlerErrors: eb.handlerErrors.Load(),
		Subscribers:   eb.subscribers.Load(),
		Queued:        len(eb.queue),
		MaxDispatch:   time.Duration(eb.maxDispatch.Load()),
	}
}

// Stop delivers what is already queued and stops the workers. It waits at
// most five seconds for slow handlers.
func (eb *EventBus) Stop() {
	if eb.stopped.Swap(true) {
		return
	}
	close(eb.quit)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Debug("EventBus stopped",
			zap.Int64("delivered", eb.delivered.Load()),
			zap.Int64("dropped", eb.dropped.Load()),
		)
	case <-time.After(5 * time.Second):
		eb.logger.Warn("EventBus stop timed out", zap.Int("queued", len(eb.queue)))
	}
}
