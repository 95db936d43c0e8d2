package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(NewTracker(), zap.NewNop()), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_ReadyzWaitsForFirstCycle(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	server := NewServer(tracker, zap.NewNop())

	rec := serve(t, server, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	tracker.Record(monitor.Summary{CycleID: "c1"}, nil)
	rec = serve(t, server, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	next := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker.Record(monitor.Summary{CycleID: "c1", Total: 3, Changed: 1}, errors.New("notify: boom"))
	tracker.ScheduleNext(next)

	rec := serve(t, NewServer(tracker, nil), http.MethodGet, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Cycles)
	require.NotNil(t, got.LastCycle)
	assert.Equal(t, "c1", got.LastCycle.CycleID)
	assert.Equal(t, 3, got.LastCycle.Total)
	assert.Equal(t, "notify: boom", got.LastError)
	require.NotNil(t, got.NextRun)
	assert.True(t, next.Equal(*got.NextRun))
}

func TestServer_RequestCycle(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	server := NewServer(tracker, zap.NewNop())

	rec := serve(t, server, http.MethodPost, "/v1/cycles")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(t, server, http.MethodPost, "/v1/cycles")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already pending")

	select {
	case <-tracker.Requests():
	default:
		t.Fatal("expected a pending cycle request")
	}

	rec = serve(t, server, http.MethodPost, "/v1/cycles")
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(NewTracker(), zap.NewNop())
	_ = serve(t, server, http.MethodGet, "/healthz")

	rec := serve(t, server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := NewServer(NewTracker(), zap.NewNop())
	server.router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := serve(t, server, http.MethodGet, "/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	assert.False(t, tracker.Ready())
	tracker.Record(monitor.Summary{CycleID: "c1"}, nil)

	snap := tracker.Snapshot()
	snap.LastCycle.CycleID = "mutated"
	assert.Equal(t, "c1", tracker.Snapshot().LastCycle.CycleID)
	assert.True(t, tracker.Ready())
	assert.Empty(t, tracker.Snapshot().LastError)
}
