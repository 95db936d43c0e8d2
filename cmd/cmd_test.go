package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func writeConfig(t *testing.T, dir, urlsFile string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`monitor:
  urls_file: %q
state:
  backend: file
  path: %q
archive:
  backend: none
notify:
  channel: log
logging:
  level: error
`, urlsFile, filepath.Join(dir, "state.json"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root, opts := newRootCmd()
	defer opts.close()
	root.SetArgs(args)
	root.SetOut(&discard{})
	root.SetErr(&discard{})
	return root.ExecuteContext(context.Background())
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRunCommand(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	urls := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(urls, []byte(srv.URL+"\n"), 0o600))

	require.NoError(t, execute(t, "--config", writeConfig(t, dir, urls), "run"))

	data, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), srv.URL)
	assert.Contains(t, string(data), `"hash"`)
}

func TestRunCommandURLsFlagOverridesConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := execute(t, "--config", writeConfig(t, dir, "urls.txt"), "--urls", filepath.Join(dir, "nope.txt"), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.txt")
}

func TestStateMigrateUpgradesLegacyRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"https://a.example/":"abc123"}`), 0o600))

	require.NoError(t, execute(t, "--config", writeConfig(t, dir, "urls.txt"), "state", "migrate"))

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hash": "abc123"`)
	assert.NotContains(t, string(data), `"https://a.example/": "abc123"`)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := execute(t, "--config", writeConfig(t, dir, "urls.txt"), "--log-level", "loud", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestCycleLoopRecordsAndStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := api.NewTracker()
	var calls atomic.Int32
	runOnce := func(context.Context) (monitor.Summary, error) {
		n := calls.Add(1)
		if n == 2 {
			cancel()
			return monitor.Summary{}, context.Canceled
		}
		return monitor.Summary{CycleID: fmt.Sprintf("c%d", n)}, errors.New("notify: down")
	}

	done := make(chan error, 1)
	go func() {
		done <- cycleLoop(ctx, runOnce, tracker, time.Hour, zap.NewNop())
	}()

	require.Eventually(t, tracker.Ready, time.Second, 5*time.Millisecond)
	require.True(t, tracker.RequestCycle())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cycle loop did not stop")
	}

	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.Cycles)
	assert.Equal(t, "c1", snap.LastCycle.CycleID)
	assert.Equal(t, "notify: down", snap.LastError)
	assert.NotNil(t, snap.NextRun)
	assert.Equal(t, int32(2), calls.Load())
}
