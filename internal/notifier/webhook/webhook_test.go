package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyPostsPayload(t *testing.T) {
	t.Parallel()

	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer token"}}, srv.Client(), zap.NewNop())
	require.NoError(t, err)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	require.NoError(t, n.Notify(context.Background(), "subject", "body"))
	assert.Equal(t, Payload{Subject: "subject", Body: "body", SentAt: fixed}, got)
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, MaxRetries: 3, Backoff: time.Millisecond}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "s", "b"))
	assert.Equal(t, int32(3), hits.Load())
}

func TestNotifyExhaustsRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, MaxRetries: 1, Backoff: time.Millisecond}, nil, nil)
	require.NoError(t, err)
	err = n.Notify(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}
