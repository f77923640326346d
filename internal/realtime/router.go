package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler consumes one event payload.
type Handler func(payload json.RawMessage)

// Subscription identifies one registered handler. Registering the same
// function twice yields two distinct subscriptions; unsubscribing a
// subscription twice is a no-op.
type Subscription struct {
	eventType string
	id        uint64
	fn        Handler
}

// Router fans inbound envelopes out to every subscriber of their type.
// The registry lives for the whole session and is shared by all
// conversations plus out-of-band consumers (incoming calls).
type Router struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]*Subscription
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{subs: make(map[string][]*Subscription)}
}

// Subscribe registers fn for eventType and returns its subscription handle.
func (r *Router) Subscribe(eventType string, fn Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub := &Subscription{eventType: eventType, id: r.nextID, fn: fn}
	r.subs[eventType] = append(r.subs[eventType], sub)
	return sub
}

// Unsubscribe removes a subscription. Safe to call more than once and
// safe to call from inside a dispatch.
func (r *Router) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[sub.eventType]
	for i, s := range list {
		if s.id == sub.id {
			r.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler currently registered for eventType, in
// registration order. Handlers are iterated over a snapshot, so subscribing
// or unsubscribing mid-dispatch never corrupts the walk, and a panicking
// handler does not stop the rest.
func (r *Router) Dispatch(eventType string, payload json.RawMessage) {
	r.mu.Lock()
	list := r.subs[eventType]
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)
	r.mu.Unlock()

	for _, sub := range snapshot {
		invoke(sub, eventType, payload)
	}
}

func invoke(sub *Subscription, eventType string, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event handler panicked", "type", eventType, "panic", rec)
		}
	}()
	sub.fn(payload)
}
