package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{}, zap.NewNop())
	assert.Equal(t, DefaultUserAgent, f.baseCollector.UserAgent)
	assert.Equal(t, defaultTimeout, f.cfg.Timeout)
	assert.True(t, f.baseCollector.IgnoreRobotsTxt)
	assert.True(t, f.baseCollector.AllowURLRevisit)

	f = New(Config{UserAgent: "agent", RespectRobots: true, Timeout: time.Second}, zap.NewNop())
	assert.Equal(t, "agent", f.baseCollector.UserAgent)
	assert.False(t, f.baseCollector.IgnoreRobotsTxt)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var result fetchResult
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, &result)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	assert.Equal(t, http.StatusOK, result.status)
	assert.Equal(t, "body", string(result.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	assert.Equal(t, http.StatusBadGateway, result.status)
	assert.EqualError(t, result.err, "boom")
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent", r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "agent", Timeout: 2 * time.Second}, zap.NewNop())
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hello")
}

func TestFetchWarnsWhenBodyTruncated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	f := New(Config{Timeout: 2 * time.Second, MaxBodyBytes: 10}, zap.New(core))
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 10)

	entries := logs.FilterMessage("response body truncated").All()
	require.Len(t, entries, 1)
	assert.Equal(t, srv.URL, entries[0].ContextMap()["url"])
	assert.Equal(t, int64(10), entries[0].ContextMap()["max_body_bytes"])
}

func TestFetchSmallBodyDoesNotWarn(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	f := New(Config{Timeout: 2 * time.Second, MaxBodyBytes: 1024}, zap.New(core))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestFetchRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *monitor.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, monitor.FetchErrorHTTPStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "HTTP 404", fe.Error())
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 100 * time.Millisecond}, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL)

	var fe *monitor.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, monitor.FetchErrorTimeout, fe.Kind)
}

func TestFetchNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	_, err := f.Fetch(context.Background(), addr)

	var fe *monitor.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, monitor.FetchErrorNetwork, fe.Kind)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, monitor.FetchErrorTimeout, classify(context.DeadlineExceeded).(*monitor.FetchError).Kind)
	assert.Equal(t, monitor.FetchErrorNetwork, classify(errors.New("reset")).(*monitor.FetchError).Kind)

	original := monitor.NewHTTPStatusError(http.StatusTeapot)
	assert.Same(t, original, classify(original))
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
