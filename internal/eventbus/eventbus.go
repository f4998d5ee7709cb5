// Package eventbus is an in-process publish/subscribe bus. Handlers run synchronously on the publishing goroutine, in
// the order they subscribed.
package eventbus

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topics published by the boot sequence and the systems it starts.
const (
	TopicBootComplete = "boot.complete"
	TopicSceneLoading = "scene.loading"
	TopicSceneLoaded  = "scene.loaded"
)

// ErrNotInitialized is returned when publishing on a Bus that hasn't been initialized.
var ErrNotInitialized = errors.New("event bus not initialized")

// Event is a message published on a topic.
type Event struct {
	Topic   string
	Payload any
}

// Handler receives events for the topics it subscribed to.
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Bus dispatches events to subscribers.
type Bus struct {
	mu          sync.RWMutex
	initialized bool
	topics      map[string][]subscription
	logger      *zap.Logger
}

// New returns a Bus. Subscribing works right away; publishing requires Initialize.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string][]subscription),
		logger: logger.Named("eventbus"),
	}
}

// Initialize readies the bus for publishing and returns it.
func (b *Bus) Initialize() (*Bus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.initialized = true
	b.logger.Debug("event bus initialized")
	return b, nil
}

// Subscribe registers h for topic and returns an id for Unsubscribe.
func (b *Bus) Subscribe(topic string, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: h})
	b.logger.Debug("created subscription", zap.String("topic", topic), zap.String("subscription_id", id))
	return id
}

// Unsubscribe removes the subscription with the given id. It reports whether one was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.topics {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			b.logger.Debug("removed subscription", zap.String("topic", topic), zap.String("subscription_id", id))
			return true
		}
	}
	return false
}

// Publish delivers e to every handler subscribed to its topic and returns how many handlers received it. A handler
// that panics is logged and skipped.
func (b *Bus) Publish(e Event) (int, error) {
	b.mu.RLock()
	if !b.initialized {
		b.mu.RUnlock()
		return 0, errors.Wrapf(ErrNotInitialized, "publish %s", e.Topic)
	}
	subs := append([]subscription(nil), b.topics[e.Topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
	return len(subs), nil
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.AssertionFailedf("handler panicked: %v", r)
			b.logger.Error("event handler panicked", zap.String("topic", e.Topic),
				zap.String("subscription_id", s.id), zap.Error(err))
		}
	}()
	s.handler(e)
}
