package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atendeai/booking-engine/pkg/logging"
)

// ErrNotConfigured indicates missing gateway credentials.
var ErrNotConfigured = errors.New("messaging: gateway not configured")

// Gateway sends outbound chat messages through the channel provider.
type Gateway interface {
	SendText(ctx context.Context, instance, number, text string) error
}

// HTTPGateway talks to an Evolution-style WhatsApp gateway over HTTP.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logging.Logger
}

// NewHTTPGateway builds a gateway client. Returns ErrNotConfigured when
// base URL or API key are missing.
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) (*HTTPGateway, error) {
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type sendTextPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText posts a text message to the instance's send endpoint.
func (g *HTTPGateway) SendText(ctx context.Context, instance, number, text string) error {
	body, err := json.Marshal(sendTextPayload{Number: number, Text: text})
	if err != nil {
		return fmt.Errorf("messaging: encode send payload: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", g.baseURL, instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messaging: build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: send text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Warn("gateway rejected send", "status", resp.StatusCode, "instance", instance, "body", string(snippet))
		return fmt.Errorf("messaging: gateway returned status %d", resp.StatusCode)
	}
	return nil
}
