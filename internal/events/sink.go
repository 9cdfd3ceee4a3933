package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink publishes wire events for one investigation.
type Sink interface {
	Publish(ctx context.Context, investigationID string, ev WireEvent) error
}

// Emit is how components hand internal events to whoever is listening.
type Emit func(Event)

// Discard drops every event.
func Discard(Event) {}

// Forwarder returns an Emit that translates each event and publishes it to
// every sink. Sink failures are logged and never fail the caller.
func Forwarder(ctx context.Context, investigationID string, logger *zap.Logger, sinks ...Sink) Emit {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")
	return func(ev Event) {
		wire, ok := Translate(ev)
		if !ok {
			return
		}
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Publish(ctx, investigationID, wire); err != nil {
				logger.Warn("publish event failed",
					zap.String("investigation_id", investigationID),
					zap.String("event", wire.Event),
					zap.Error(err))
			}
		}
	}
}

// Broker fans wire events out to in-process subscribers. Slow subscribers
// miss events rather than blocking publishers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan WireEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subscribers: map[string]map[chan WireEvent]struct{}{}}
}

// Subscribe returns a channel that is closed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, investigationID string) <-chan WireEvent {
	ch := make(chan WireEvent, 64)

	b.mu.Lock()
	if b.subscribers[investigationID] == nil {
		b.subscribers[investigationID] = map[chan WireEvent]struct{}{}
	}
	b.subscribers[investigationID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if subs := b.subscribers[investigationID]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subscribers, investigationID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// Publish implements Sink.
func (b *Broker) Publish(_ context.Context, investigationID string, ev WireEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[investigationID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}
