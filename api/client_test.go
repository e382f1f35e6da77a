package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/interfaces"
)

func TestJSONClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"value":"pong"}`))
		case "/denied":
			http.Error(w, "enrollment denied", http.StatusForbidden)
		case "/locked":
			http.Error(w, "system keys are locked", http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := &JSONClient{BaseURL: server.URL, Client: server.Client()}

	var out struct {
		Value string `json:"value"`
	}
	require.NoError(t, client.Post(context.Background(), "/ok", map[string]string{"ping": "1"}, &out))
	assert.Equal(t, "pong", out.Value)

	err := client.Get(context.Background(), "/denied", nil)
	assert.ErrorIs(t, err, interfaces.ErrEnrollmentDenied)

	err = client.Get(context.Background(), "/locked", nil)
	assert.ErrorIs(t, err, interfaces.ErrLocked)

	err = client.Get(context.Background(), "/missing", nil)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestJSONClientDoesNotRetryResponses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := &JSONClient{BaseURL: server.URL, Client: server.Client()}
	assert.Error(t, client.Get(context.Background(), "/", nil))
	assert.Equal(t, int32(1), calls.Load())
}

func TestJSONClientRetriesTransportFailures(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := &JSONClient{BaseURL: url, MaxRetries: 1}
	err := client.Get(context.Background(), "/", nil)
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}
