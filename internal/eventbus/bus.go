package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge/core/internal/logger"
)

// Subscriber receives published events matching its Filter.
type Subscriber interface {
	Name() string
	Filter() Filter
	OnEvent(ctx context.Context, event Event) error
}

// Bus fans events out to local subscribers and, when constructed with a
// Redis client, republishes every local Publish onto a Redis channel so
// other processes' Bus instances (subscribed via Listen) observe it too.
// Grounded on the teacher's ObserverManager: non-blocking notify, one
// goroutine per subscriber, panics recovered and logged rather than
// propagated.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	redis       *redis.Client
}

// New builds a Bus. redisClient may be nil for a purely in-process bus
// (e.g. in tests).
func New(redisClient *redis.Client) *Bus {
	return &Bus{redis: redisClient}
}

// Subscribe registers a subscriber. Names must be unique.
func (b *Bus) Subscribe(s Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.subscribers {
		if existing.Name() == s.Name() {
			return fmt.Errorf("eventbus: subscriber %q already registered", s.Name())
		}
	}
	b.subscribers = append(b.subscribers, s)
	return nil
}

// Unsubscribe removes a subscriber by name.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.Name() == name {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish fans event out to every local subscriber whose filter passes,
// and, if a Redis client is configured, republishes it on event.Channel
// for cross-process delivery. Best-effort: publish errors are logged,
// never returned, matching spec.md §4.10's "no back-pressure on the core".
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.notifyLocal(ctx, event)

	if b.redis == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Default().Error("eventbus: marshal event failed", "error", err)
		return
	}
	if err := b.redis.Publish(ctx, event.Channel, payload).Err(); err != nil {
		logger.Default().Error("eventbus: redis publish failed", "channel", event.Channel, "error", err)
	}
}

func (b *Bus) notifyLocal(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		go b.notifyOne(ctx, s, event)
	}
}

func (b *Bus) notifyOne(ctx context.Context, s Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Default().Error("eventbus: subscriber panic recovered", "subscriber", s.Name(), "panic", r)
		}
	}()

	if f := s.Filter(); f != nil && !f.ShouldNotify(event) {
		return
	}
	if err := s.OnEvent(ctx, event); err != nil {
		logger.Default().Error("eventbus: subscriber notify failed", "subscriber", s.Name(), "error", err)
	}
}

// Listen subscribes to channel on Redis and republishes every message it
// receives through notifyLocal, until ctx is cancelled. Use this on a
// process that did not originate the event (e.g. a dashboard-facing API
// server subscribing to events produced by orchestrator workers).
func (b *Bus) Listen(ctx context.Context, channel string) error {
	if b.redis == nil {
		return fmt.Errorf("eventbus: listen requires a redis client")
	}
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Default().Error("eventbus: unmarshal redis message failed", "error", err)
				continue
			}
			b.notifyLocal(ctx, event)
		}
	}
}

// Count returns the number of locally-registered subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
