package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveInbound("messages.upsert", "accepted")
	m.ObserveLLMLatency("chat", time.Second)
	m.IncLLMFailure("chat")
	m.IncExtraction("complete")
	m.IncBooking("created")
}

func TestRegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveInbound("messages.upsert", "accepted")
	m.IncBooking("created")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}
