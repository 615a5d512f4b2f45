package events

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus fans events out to named handlers. The session manager emits
// command and session events; history, telemetry, health and the webhook
// notifier subscribe to them.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscriber
	stopCh   chan struct{}
	stopped  bool
	inflight sync.WaitGroup
	logger   zerolog.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

type subscriber struct {
	name    string
	handler HandlerFunc
}

// Stats counts handler invocations since the bus was created.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscriber),
		stopCh:   make(chan struct{}),
		logger:   log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers handler under name. Subscribing the same name twice
// for one event type replaces the earlier handler.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.handlers[eventType]
	if i := slices.IndexFunc(subs, func(s subscriber) bool { return s.name == name }); i >= 0 {
		subs[i].handler = handler
	} else {
		eb.handlers[eventType] = append(subs, subscriber{name: name, handler: handler})
	}

	eb.logger.Debug().Str("event", string(eventType)).Str("handler", name).Msg("subscribed")
}

// Unsubscribe removes a named handler from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = slices.DeleteFunc(eb.handlers[eventType], func(s subscriber) bool {
		return s.name == name
	})
}

// snapshot returns the handlers for eventType, or nil once the bus is
// stopped. Dropped events are counted.
func (eb *EventBus) snapshot(eventType EventType) []subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		eb.dropped.Add(uint64(len(eb.handlers[eventType])))
		return nil
	}
	return slices.Clone(eb.handlers[eventType])
}

// Emit delivers event to every subscriber on its own goroutine and returns
// immediately. Stop waits for these deliveries.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		eb.dropped.Add(uint64(len(eb.handlers[event.Type])))
		return
	}

	subs := eb.handlers[event.Type]
	eb.logger.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emit")

	for _, s := range subs {
		eb.inflight.Add(1)
		go func() {
			defer eb.inflight.Done()
			eb.deliver(ctx, s, event)
		}()
	}
}

// EmitSync delivers event to every subscriber concurrently and waits for
// all of them. It returns the first handler error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	subs := eb.snapshot(event.Type)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, s := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eb.deliver(ctx, s, event); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// deliver runs one handler. A panicking handler is logged and counted as
// failed; it never takes the bus down.
func (eb *EventBus) deliver(ctx context.Context, s subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eb.failed.Add(1)
			eb.logger.Error().
				Str("event", string(event.Type)).
				Str("handler", s.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = s.handler(ctx, event); err != nil {
		eb.failed.Add(1)
		eb.logger.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", s.name).
			Msg("handler returned error")
		return err
	}
	eb.delivered.Add(1)
	return nil
}

// Stop rejects further events and waits for in-flight asynchronous
// deliveries. Calling Stop twice is a no-op.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	eb.mu.Unlock()

	eb.inflight.Wait()
	eb.logger.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for eventType.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// Stats returns delivery counters.
func (eb *EventBus) Stats() Stats {
	return Stats{
		Delivered: eb.delivered.Load(),
		Dropped:   eb.dropped.Load(),
		Failed:    eb.failed.Load(),
	}
}
