package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPGatewayRequiresCredentials(t *testing.T) {
	_, err := NewHTTPGateway("", "key", time.Second, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewHTTPGateway("http://gateway", "", time.Second, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestSendTextPostsToInstanceEndpoint(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload sendTextPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g, err := NewHTTPGateway(srv.URL, "secret", time.Second, nil)
	require.NoError(t, err)

	err = g.SendText(context.Background(), "clinic-a", "5511999998888", "olá!")
	require.NoError(t, err)

	assert.Equal(t, "/message/sendText/clinic-a", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "5511999998888", gotPayload.Number)
	assert.Equal(t, "olá!", gotPayload.Text)
}

func TestSendTextNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"instance disconnected"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	g, err := NewHTTPGateway(srv.URL, "secret", time.Second, nil)
	require.NoError(t, err)

	err = g.SendText(context.Background(), "clinic-a", "5511999998888", "olá!")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
