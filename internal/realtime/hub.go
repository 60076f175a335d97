// Package realtime fans committed conversation changes out to connected
// clients.
package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

const defaultBuffer = 64

// Observer is told about subscriber churn and dropped events.
type Observer interface {
	SubscriberAdded()
	SubscriberRemoved()
	EventDropped()
}

type nopObserver struct{}

func (nopObserver) SubscriberAdded()   {}
func (nopObserver) SubscriberRemoved() {}
func (nopObserver) EventDropped()      {}

// Hub keeps the live subscriptions of every user. A user may hold several
// subscriptions at once, one per open connection.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*Subscription]struct{}
	buffer   int
	logger   *zap.Logger
	observer Observer
}

// NewHub creates an empty hub. A nil observer disables instrumentation.
func NewHub(logger *zap.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Hub{
		subs:     make(map[string]map[*Subscription]struct{}),
		buffer:   defaultBuffer,
		logger:   logger,
		observer: observer,
	}
}

// Subscription is a bounded queue of events for one connection.
type Subscription struct {
	UserID string

	hub    *Hub
	events chan chat.Event
	once   sync.Once
}

// Events yields the queued events. The channel is closed by Close.
func (s *Subscription) Events() <-chan chat.Event {
	return s.events
}

// Close detaches the subscription from the hub. It is safe to call more than
// once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe registers a new subscription for userID.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		UserID: userID,
		hub:    h,
		events: make(chan chat.Event, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.observer.SubscriberAdded()
	h.logger.Debug("subscriber_added", zap.String("user", userID))
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.UserID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	// closed under the write lock so Publish never sends on a closed channel
	close(sub.events)
	h.mu.Unlock()

	h.observer.SubscriberRemoved()
	h.logger.Debug("subscriber_removed", zap.String("user", sub.UserID))
}

// Publish delivers event to every subscription of the recipients. Slow
// subscribers whose queue is full miss the event instead of blocking the
// writer.
func (h *Hub) Publish(recipients []string, event chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range recipients {
		for sub := range h.subs[userID] {
			select {
			case sub.events <- event:
			default:
				h.observer.EventDropped()
				h.logger.Warn("event_dropped",
					zap.String("user", userID),
					zap.String("type", string(event.Type)))
			}
		}
	}
}

// Subscribers reports the number of open subscriptions of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
