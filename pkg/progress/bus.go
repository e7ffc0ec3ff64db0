// Package progress fans orchestration progress out to interactive
// clients. An in-process Bus carries events per conversation; the
// WebSocket gateway forwards them to browsers.
package progress

import (
	"log/slog"
	"sync"
	"time"
)

// Event types emitted during orchestration.
const (
	EventAgentSpawned   = "agent:spawned"
	EventAgentStatus    = "agent:status"
	EventAgentMessage   = "agent:message"
	EventTaskCreated    = "task:created"
	EventTaskUpdated    = "task:updated"
	EventQueryProgress  = "query:progress"
	EventQueryCompleted = "query:completed"
	EventError          = "error"
)

// ValidType reports whether t belongs to the closed event type set.
func ValidType(t string) bool {
	switch t {
	case EventAgentSpawned, EventAgentStatus, EventAgentMessage,
		EventTaskCreated, EventTaskUpdated,
		EventQueryProgress, EventQueryCompleted, EventError:
		return true
	}
	return false
}

// Event is one progress notification. Subscribers receive immutable
// snapshots; emitters must not mutate Data after publishing.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	QueryID        string `json:"queryId,omitempty"`
	Timestamp      string `json:"timestamp"`
	Data           any    `json:"data,omitempty"`
}

// subscriberBuffer bounds each subscription channel. A subscriber that
// falls this far behind starts losing events rather than stalling the
// publisher.
const subscriberBuffer = 64

// Subscription is one subscriber's view of a conversation.
type Subscription struct {
	C              <-chan Event
	conversationID string
	ch             chan Event
}

// ConversationID returns the conversation this subscription follows.
func (s *Subscription) ConversationID() string {
	return s.conversationID
}

// Bus is the in-process progress fan-out. Delivery is at-most-once per
// subscriber; emission order per conversation is preserved for
// subscribers that keep up.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Join subscribes to a conversation's events.
func (b *Bus) Join(conversationID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, conversationID: conversationID}

	b.mu.Lock()
	set, ok := b.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Leave removes the subscription and closes its channel.
func (b *Bus) Leave(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	set, ok := b.subs[sub.conversationID]
	if ok {
		if _, member := set[sub]; member {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(b.subs, sub.conversationID)
		}
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber of its conversation.
// The timestamp is stamped here if the emitter left it empty. Slow
// subscribers are dropped-to, never blocked-on.
func (b *Bus) Publish(event Event) {
	if !ValidType(event.Type) {
		b.logger.Warn("dropping event with unknown type", "type", event.Type)
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[event.ConversationID] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				"conversation_id", event.ConversationID, "type", event.Type)
		}
	}
}

// SubscriberCount reports how many subscribers follow a conversation.
func (b *Bus) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}
