// Package retry implements the fetch retry policy with jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Config controls retry behavior. MaxRetries counts retries after the first attempt.
type Config struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	DisableJitter bool
}

// ExponentialPolicy implements monitor.RetryPolicy.
type ExponentialPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     bool
}

// New builds a policy, filling zero values with defaults.
func New(cfg Config) *ExponentialPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &ExponentialPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		jitter:     !cfg.DisableJitter,
	}
}

// Never returns a policy that performs a single attempt.
func Never() *ExponentialPolicy {
	return New(Config{MaxRetries: 0})
}

// ShouldRetry reports whether a failed attempt (1-based) deserves another try.
// Timeouts, network errors, 429 and 5xx responses are retried; other statuses
// and caller cancellation are not.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt > p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *monitor.FetchError
	if !errors.As(err, &fe) {
		return true
	}
	switch fe.Kind {
	case monitor.FetchErrorTimeout, monitor.FetchErrorNetwork:
		return true
	case monitor.FetchErrorHTTPStatus:
		return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// Backoff returns the wait before the attempt following attempt.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	if !p.jitter {
		return time.Duration(delay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
