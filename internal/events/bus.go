// Package events fans booking notifications out to live viewers.
package events

import (
	"sync"

	"github.com/atendeai/booking-engine/pkg/logging"
)

// EventTypeBookingCreated is emitted once per committed appointment.
const EventTypeBookingCreated = "booking.created"

// AppointmentPayload is the viewer-facing appointment summary.
type AppointmentPayload struct {
	ID               string `json:"id"`
	ClientName       string `json:"client_name"`
	ServiceName      string `json:"service_name"`
	ProfessionalName string `json:"professional_name"`
	Date             string `json:"date"`
	Time             string `json:"time"`
}

// Event is the JSON envelope pushed to viewers.
type Event struct {
	Type        string             `json:"type"`
	Appointment AppointmentPayload `json:"appointment"`
}

// Bus is an injected pub/sub abstraction; it replaces any global mutable
// connection registry. Publish is fire-and-forget.
type Bus interface {
	Subscribe() (<-chan Event, func())
	Publish(event Event)
}

// MemoryBus is an in-process Bus. A subscriber whose channel is full is
// considered dead and pruned on the failed write.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *logging.Logger
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus(logger *logging.Logger) *MemoryBus {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryBus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

var _ Bus = (*MemoryBus)(nil)

const subscriberBuffer = 16

// Subscribe registers a viewer channel. The returned function unsubscribes.
func (b *MemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every live subscriber without blocking.
func (b *MemoryBus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber stopped draining; prune it.
			delete(b.subs, id)
			close(ch)
			b.logger.Warn("pruned dead event subscriber", "subscriber_id", id)
		}
	}
}

// SubscriberCount reports the number of live subscribers, for tests.
func (b *MemoryBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
