// Package broadcast implements the fan-out channel between contexts. Every
// context attaches to a Hub, and anything it publishes is delivered to all
// of the other attached contexts. Delivery is best-effort: messages aren't
// acknowledged, aren't replayed to contexts that attach later, and are
// dropped for contexts that aren't keeping up.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/metrics"
)

// DefaultInboxSize is the number of undelivered messages a context may
// have before new messages to it are dropped.
const DefaultInboxSize = 256

// Hub connects all the contexts in the same scope.
type Hub struct {
	inboxSize int

	lock      sync.RWMutex
	endpoints map[string]*Endpoint
}

// NewHub creates a Hub. If inboxSize isn't positive, DefaultInboxSize is
// used.
func NewHub(inboxSize int) *Hub {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Hub{
		inboxSize: inboxSize,
		endpoints: map[string]*Endpoint{},
	}
}

// Attach connects a new context to the hub. The context only receives
// messages published after this call returns.
func (h *Hub) Attach() *Endpoint {
	e := &Endpoint{
		id:    uuid.New().String(),
		hub:   h,
		inbox: make(chan Message, h.inboxSize),
	}

	h.lock.Lock()
	h.endpoints[e.id] = e
	count := len(h.endpoints)
	h.lock.Unlock()

	metrics.SetContextsAttached(count)
	log.WithField("endpoint", e.id).WithField("attached", count).Debug("Context attached")
	return e
}

// Count returns the number of attached contexts.
func (h *Hub) Count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.endpoints)
}

func (h *Hub) publish(from string, msg Message) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	for id, e := range h.endpoints {
		if id == from {
			continue
		}

		select {
		case e.inbox <- msg:
		default:
			metrics.RecordDroppedDelivery(string(msg.Kind()))
			log.WithField("endpoint", id).WithField("kind", msg.Kind()).
				Warn("Context isn't keeping up. Dropping message.")
		}
	}
	metrics.RecordBroadcast(string(msg.Kind()))
}

func (h *Hub) detach(e *Endpoint) {
	h.lock.Lock()
	delete(h.endpoints, e.id)
	close(e.inbox)
	count := len(h.endpoints)
	h.lock.Unlock()

	metrics.SetContextsAttached(count)
	log.WithField("endpoint", e.id).WithField("attached", count).Debug("Context detached")
}

// Endpoint is a single context's connection to the Hub.
type Endpoint struct {
	id    string
	hub   *Hub
	inbox chan Message

	closeOnce sync.Once
}

// ID uniquely identifies the endpoint within its hub.
func (e *Endpoint) ID() string {
	return e.id
}

// Publish sends the message to every other attached context. It never
// blocks, and messages from the same endpoint are received in the order
// they were published.
func (e *Endpoint) Publish(msg Message) {
	e.hub.publish(e.id, msg)
}

// Messages returns the channel of messages received by this endpoint. It's
// closed when the endpoint is closed.
func (e *Endpoint) Messages() <-chan Message {
	return e.inbox
}

// OnMessage calls `handler` once for each received message, one at a time,
// in the order they arrived. It returns immediately.
// Only one consumer should read from an endpoint.
func (e *Endpoint) OnMessage(handler func(Message)) {
	go func() {
		defer util.HandlePanic()
		for msg := range e.inbox {
			handler(msg)
		}
	}()
}

// Close detaches the endpoint from the hub. Messages that were already
// queued can still be read.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() {
		e.hub.detach(e)
	})
}
