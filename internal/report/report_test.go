package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func TestSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[pagewatch] 2 change(s) detected", Subject("", 2))
	assert.Equal(t, "[scores] 1 change(s) detected", Subject("[scores]", 1))
}

func TestBodyRendersEventsInOrder(t *testing.T) {
	t.Parallel()

	body := Body([]monitor.ChangeEvent{
		{
			Target:          monitor.WatchTarget{URL: "https://a.example.com", Group: "Football"},
			Diff:            "--- before\n+++ after\n@@ -1 +1 @@\n-1 - 0\n+2 - 0",
			PreviousExtract: "=== Table 1 ===\nA | 1",
			ArchiveLocator:  "file:///archive/a.txt",
		},
		{
			Target: monitor.WatchTarget{URL: "https://b.example.com"},
		},
	}, nil)

	first := strings.Index(body, "URL: https://a.example.com")
	second := strings.Index(body, "URL: https://b.example.com")
	assert.Positive(t, first)
	assert.Greater(t, second, first)

	assert.Contains(t, body, "Group: Football")
	assert.Contains(t, body, "--- EXTRACT BEFORE ---\n=== Table 1 ===\nA | 1")
	assert.Contains(t, body, "--- EXTRACT AFTER ---\n(none)")
	assert.Contains(t, body, "+2 - 0")
	assert.Contains(t, body, "Archive: file:///archive/a.txt")
	assert.Contains(t, body, "--- DIFF ---\n(diff unavailable - first capture of content)")
	assert.Equal(t, 1, strings.Count(body, "--- EXTRACT BEFORE ---"))
	assert.NotContains(t, body, "failure(s)")
}

func TestBodyFailureSummary(t *testing.T) {
	t.Parallel()

	body := Body(
		[]monitor.ChangeEvent{{Target: monitor.WatchTarget{URL: "https://a.example.com"}, Diff: "+x"}},
		[]monitor.Failure{
			{Target: monitor.WatchTarget{URL: "https://c.example.com"}, Kind: monitor.FetchErrorTimeout, Detail: "Timeout"},
			{Target: monitor.WatchTarget{URL: "https://d.example.com"}, Kind: monitor.FetchErrorHTTPStatus, Detail: "HTTP 503"},
		},
	)

	assert.Contains(t, body, "2 failure(s) encountered:")
	assert.Contains(t, body, "  - https://c.example.com: Timeout\n")
	assert.Contains(t, body, "  - https://d.example.com: HTTP 503\n")
	assert.True(t, strings.HasSuffix(body, "HTTP 503\n"))
}
