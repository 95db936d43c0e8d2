// Package webhook POSTs notifications as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Payload is the JSON document sent for each notification.
type Payload struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Config controls the endpoint and delivery retries.
type Config struct {
	URL        string
	Headers    map[string]string
	MaxRetries int
	Backoff    time.Duration
	Timeout    time.Duration
}

// Notifier delivers payloads with retry and exponential backoff.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Notifier. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: url is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, client: client, logger: logger.Named("webhook"), now: time.Now}, nil
}

// Notify posts the payload, retrying transport errors and non-2xx responses.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	data, err := json.Marshal(Payload{Subject: subject, Body: body, SentAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := n.cfg.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w", ctx.Err())
			}
		}
		if lastErr = n.post(ctx, data); lastErr == nil {
			return nil
		}
		n.logger.Warn("webhook delivery failed", zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

func (n *Notifier) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
