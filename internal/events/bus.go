// Package events provides an in-process bus for simulation job lifecycle
// events. Publishers never block on slow subscribers; events are delivered
// by a single dispatcher in publish order.
package events

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType defines the category of event
type EventType string

const (
	EventJobQueued    EventType = "job_queued"
	EventJobStarted   EventType = "job_started"
	EventJobProgress  EventType = "job_progress"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
	EventJobCancelled EventType = "job_cancelled"
)

// Terminal reports whether no further events follow for the job.
func (t EventType) Terminal() bool {
	return t == EventJobCompleted || t == EventJobFailed || t == EventJobCancelled
}

// Event is one lifecycle notification for a job.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	JobID     string      `json:"job_id"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var eventCounter atomic.Int64

// NewEvent stamps an event with a sequence id and the current time.
func NewEvent(eventType EventType, jobID string, payload interface{}) Event {
	return Event{
		ID:        "evt_" + strconv.FormatInt(eventCounter.Add(1), 10),
		Type:      eventType,
		JobID:     jobID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// EventHandler processes an event. Returned errors are logged and counted.
type EventHandler func(Event) error

// Subscription represents an active subscription
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	active    atomic.Bool
}

// IsActive returns whether subscription is active
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// BusStats tracks delivery counters.
type BusStats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsProcessed   int64 `json:"events_processed"`
	EventsDropped     int64 `json:"events_dropped"`
	HandlerErrors     int64 `json:"handler_errors"`
	ActiveSubscribers int64 `json:"active_subscribers"`
}

// BusConfig configures the event bus
type BusConfig struct {
	BufferSize int `json:"bufferSize"`
}

// DefaultBusConfig returns sensible defaults
func DefaultBusConfig() BusConfig {
	return BusConfig{BufferSize: 4096}
}

// Bus routes events to subscribers.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan chan Event

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	handlerErrors     atomic.Int64
	activeSubscribers atomic.Int64
	subCounter        atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewBus creates a bus and starts its dispatcher.
func NewBus(logger *zap.Logger, config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig().BufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, config.BufferSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      logger,
	}
	go b.dispatch()

	logger.Debug("Event bus initialized", zap.Int("buffer_size", config.BufferSize))
	return b
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			// deliver what was already accepted
			for {
				select {
				case event := <-b.eventChan:
					b.processEvent(event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			b.processEvent(event)
		}
	}
}

func (b *Bus) processEvent(event Event) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subscribers[event.Type]...)
	subs = append(subs, b.allSubscribers...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			b.executeHandler(sub, event)
		}
	}
	b.eventsProcessed.Add(1)
}

// executeHandler safely executes a handler with panic recovery
func (b *Bus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrors.Add(1)
			b.logger.Error("Event handler panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.Handler(event); err != nil {
		b.handlerErrors.Add(1)
		b.logger.Warn("Event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (b *Bus) newSubscription(eventType EventType, handler EventHandler) *Subscription {
	sub := &Subscription{
		ID:        "sub_" + strconv.FormatInt(b.subCounter.Add(1), 10),
		EventType: eventType,
		Handler:   handler,
	}
	sub.active.Store(true)
	b.activeSubscribers.Add(1)
	return sub
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) *Subscription {
	sub := b.newSubscription(eventType, handler)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()

	b.logger.Debug("Subscription added",
		zap.String("id", sub.ID),
		zap.String("event_type", string(eventType)),
	)
	return sub
}

// SubscribeAll registers a handler for all event types
func (b *Bus) SubscribeAll(handler EventHandler) *Subscription {
	sub := b.newSubscription("*", handler)

	b.mu.Lock()
	b.allSubscribers = append(b.allSubscribers, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe deactivates a subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub.active.CompareAndSwap(true, false) {
		b.activeSubscribers.Add(-1)
	}
}

// Publish queues an event without blocking. If the buffer is full or the
// bus is closed the event is dropped and counted.
func (b *Bus) Publish(event Event) {
	if b.ctx.Err() != nil {
		b.eventsDropped.Add(1)
		return
	}
	select {
	case b.eventChan <- event:
		b.eventsPublished.Add(1)
	default:
		b.eventsDropped.Add(1)
		b.logger.Warn("Event dropped - buffer full",
			zap.String("event_type", string(event.Type)),
			zap.String("job_id", event.JobID),
		)
	}
}

// PublishSync delivers an event on the caller's goroutine.
func (b *Bus) PublishSync(event Event) {
	b.eventsPublished.Add(1)
	b.processEvent(event)
}

// Stats returns current counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsProcessed:   b.eventsProcessed.Load(),
		EventsDropped:     b.eventsDropped.Load(),
		HandlerErrors:     b.handlerErrors.Load(),
		ActiveSubscribers: b.activeSubscribers.Load(),
	}
}

// Close stops the dispatcher after delivering queued events.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		select {
		case <-b.done:
		case <-time.After(5 * time.Second):
			b.logger.Warn("Event bus shutdown timed out")
		}
		b.logger.Debug("Event bus closed",
			zap.Int64("events_processed", b.eventsProcessed.Load()),
			zap.Int64("events_dropped", b.eventsDropped.Load()),
		)
	})
}
