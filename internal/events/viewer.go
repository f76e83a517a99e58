package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atendeai/booking-engine/pkg/logging"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 75 * time.Second
)

// ViewerHandler upgrades live-view connections and streams booking events.
type ViewerHandler struct {
	bus      Bus
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewViewerHandler creates a WebSocket fanout handler on the given bus.
func NewViewerHandler(bus Bus, logger *logging.Logger) *ViewerHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ViewerHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /events/ws.
func (h *ViewerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	eventsCh, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Read pump: discard inbound frames, detect closed connections.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("viewer write failed, dropping connection", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
