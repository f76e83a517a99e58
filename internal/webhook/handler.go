package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/observability/metrics"
	"github.com/atendeai/booking-engine/pkg/logging"
)

const maxBodyBytes = 4 << 20 // audio messages arrive base64-inlined

// Processor consumes one normalized inbound message. Ready reports a
// configuration error (missing gateway or model credentials) that makes
// message processing impossible, so the handler can fail the request
// instead of accepting messages it cannot answer.
type Processor interface {
	Ready() error
	Process(ctx context.Context, instance *directory.Instance, msg InboundMessage) error
}

// Handler is the gateway callback endpoint. Instance resolution is
// synchronous so configuration mistakes surface as HTTP errors; message
// processing runs async so the gateway never waits on the model.
type Handler struct {
	store     directory.Store
	processor Processor
	logger    *logging.Logger
	metrics   *metrics.Metrics

	// processTimeout bounds each async message pipeline run.
	processTimeout time.Duration
}

// NewHandler creates the webhook handler.
func NewHandler(store directory.Store, processor Processor, logger *logging.Logger, m *metrics.Metrics) *Handler {
	if store == nil {
		panic("webhook: store required")
	}
	if processor == nil {
		panic("webhook: processor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:          store,
		processor:      processor,
		logger:         logger,
		metrics:        m,
		processTimeout: 2 * time.Minute,
	}
}

// ServeHTTP handles POST /webhook/{instanceName}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	instanceName := chi.URLParam(r, "instanceName")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.metrics.ObserveInbound("unknown", "bad_body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	env, err := Parse(body)
	if err != nil {
		h.logger.Warn("unparseable webhook body", "instance", instanceName, "error", err)
		h.metrics.ObserveInbound("unknown", "bad_payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Lifecycle events carry no chat content.
	if env.Event == EventConnectionUpdate || env.Event == EventQRCodeUpdated {
		h.metrics.ObserveInbound(env.Event, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	instance, err := h.store.GetInstanceByName(r.Context(), instanceName)
	if err != nil {
		if errors.Is(err, directory.ErrInstanceNotFound) {
			h.logger.Warn("webhook for unknown instance", "instance", instanceName)
			h.metrics.ObserveInbound(env.Event, "unknown_instance")
			http.Error(w, "unknown instance", http.StatusNotFound)
			return
		}
		h.logger.Error("instance lookup failed", "instance", instanceName, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pending := make([]InboundMessage, 0, len(env.Messages))
	for _, msg := range env.Messages {
		if msg.FromMe {
			continue
		}
		pending = append(pending, msg)
	}
	if len(pending) > 0 {
		if err := h.processor.Ready(); err != nil {
			h.logger.Error("pipeline not configured, rejecting webhook",
				"instance", instanceName, "error", err)
			h.metrics.ObserveInbound(env.Event, "not_configured")
			http.Error(w, "service not configured", http.StatusUnprocessableEntity)
			return
		}
	}
	for _, msg := range pending {
		go h.process(instance, msg)
	}
	accepted := len(pending)
	h.metrics.ObserveInbound(env.Event, "accepted")
	h.logger.Debug("webhook accepted",
		"instance", instanceName, "event", env.Event, "messages", accepted)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) process(instance *directory.Instance, msg InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	defer cancel()
	if err := h.processor.Process(ctx, instance, msg); err != nil {
		h.logger.Error("message processing failed",
			"instance", instance.Name, "phone", msg.Phone, "error", err)
	}
}
