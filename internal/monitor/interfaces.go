package monitor

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw content of a URL.
// Failures should be returned as *FetchError so they can be classified.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notifier delivers one aggregated report.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// StateStore loads and saves the full URL -> WatchRecord mapping.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Archiver persists an immutable snapshot for a detected change and returns its locator.
type Archiver interface {
	Archive(ctx context.Context, target WatchTarget, snapshot PageSnapshot) (string, error)
}

// BlobStore writes artifacts under a path without overwriting existing ones, returning a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests over normalized content.
type Hasher interface {
	Fingerprint(text string) string
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
