package events

import (
	"testing"
	"time"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)

	ch1, unsub1 := bus.Subscribe()
	ch2, unsub2 := bus.Subscribe()
	defer unsub1()
	defer unsub2()

	event := Event{Type: EventTypeBookingCreated, Appointment: AppointmentPayload{ID: "a1"}}
	bus.Publish(event)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Appointment.ID != "a1" {
				t.Errorf("got appointment %q, want a1", got.Appointment.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(nil)

	_, unsub := bus.Subscribe()
	unsub()

	if got := bus.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count = %d, want 0", got)
	}
	// A second unsubscribe is a no-op.
	unsub()
}

func TestMemoryBusPrunesStalledSubscriber(t *testing.T) {
	bus := NewMemoryBus(nil)

	ch, unsub := bus.Subscribe()
	defer unsub()
	_ = ch // never drained

	for i := 0; i <= subscriberBuffer; i++ {
		bus.Publish(Event{Type: EventTypeBookingCreated})
	}

	if got := bus.SubscriberCount(); got != 0 {
		t.Fatalf("stalled subscriber was not pruned, count = %d", got)
	}
}
