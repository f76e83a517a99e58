package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendeai/booking-engine/internal/directory"
)

type recordingProcessor struct {
	mu       sync.Mutex
	messages []InboundMessage
	done     chan struct{}
	readyErr error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, 8)}
}

func (p *recordingProcessor) Ready() error {
	return p.readyErr
}

func (p *recordingProcessor) Process(_ context.Context, _ *directory.Instance, msg InboundMessage) error {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func (p *recordingProcessor) wait(t *testing.T) InboundMessage {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor was never invoked")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[len(p.messages)-1]
}

func serve(t *testing.T, h *Handler, instanceName, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/webhook/{instanceName}", h.ServeHTTP)

	req := httptest.NewRequest(http.MethodPost, "/webhook/"+instanceName, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func upsertBody(fromMe bool) string {
	from := "false"
	if fromMe {
		from = "true"
	}
	return `{
		"event": "messages.upsert",
		"instance": "clinic-a",
		"data": [{
			"key": {"remoteJid": "5511999998888@s.whatsapp.net", "fromMe": ` + from + `, "id": "MSG-1"},
			"pushName": "Carlos",
			"message": {"conversation": "oi"}
		}]
	}`
}

func TestHandlerDispatchesMessage(t *testing.T) {
	store := directory.NewInMemoryStore()
	store.AddInstance(directory.Instance{Name: "clinic-a", CompanyID: uuid.New()})
	proc := newRecordingProcessor()
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "clinic-a", upsertBody(false))
	require.Equal(t, http.StatusOK, rec.Code)

	msg := proc.wait(t)
	assert.Equal(t, "5511999998888", msg.Phone)
	assert.Equal(t, "oi", msg.Text)
}

func TestHandlerUnknownInstanceIs404(t *testing.T) {
	store := directory.NewInMemoryStore()
	proc := newRecordingProcessor()
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "nope", upsertBody(false))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerSkipsOwnMessages(t *testing.T) {
	store := directory.NewInMemoryStore()
	store.AddInstance(directory.Instance{Name: "clinic-a", CompanyID: uuid.New()})
	proc := newRecordingProcessor()
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "clinic-a", upsertBody(true))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-proc.done:
		t.Fatal("fromMe message must not be processed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerRejectsMessagesWhenNotConfigured(t *testing.T) {
	store := directory.NewInMemoryStore()
	store.AddInstance(directory.Instance{Name: "clinic-a", CompanyID: uuid.New()})
	proc := newRecordingProcessor()
	proc.readyErr = errors.New("gateway not configured")
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "clinic-a", upsertBody(false))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	select {
	case <-proc.done:
		t.Fatal("message must not be processed without configuration")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerAcksLifecycleEventsWhenNotConfigured(t *testing.T) {
	// A connection-state callback carries no chat content, so it is
	// acknowledged even when message processing is unavailable.
	store := directory.NewInMemoryStore()
	proc := newRecordingProcessor()
	proc.readyErr = errors.New("gateway not configured")
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "clinic-a", `{"event": "connection.update", "instance": "clinic-a"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerAcksLifecycleEventsWithoutLookup(t *testing.T) {
	// Empty store: a lifecycle event must still be acknowledged.
	store := directory.NewInMemoryStore()
	proc := newRecordingProcessor()
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "clinic-a", `{"event": "qrcode.updated", "instance": "clinic-a"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRejectsInvalidPayload(t *testing.T) {
	store := directory.NewInMemoryStore()
	proc := newRecordingProcessor()
	h := NewHandler(store, proc, nil, nil)

	rec := serve(t, h, "clinic-a", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
