// Package github opens an issue for each notification.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// maxBodyRunes is GitHub's issue body limit.
const maxBodyRunes = 65536

const truncatedSuffix = "\n\n(truncated)"

// Config identifies the repository and credentials.
type Config struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	Labels  []string
	Timeout time.Duration
}

// Notifier creates GitHub issues.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type issueResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// New validates cfg and builds a Notifier.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Notifier, error) {
	if cfg.Token == "" || cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github: token, owner and repo are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, client: client, logger: logger.Named("github")}, nil
}

// Notify opens one issue titled subject.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(issueRequest{Title: subject, Body: truncate(body), Labels: n.cfg.Labels})
	if err != nil {
		return fmt.Errorf("github: marshal issue: %w", err)
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues", n.cfg.BaseURL, n.cfg.Owner, n.cfg.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("github: new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("github: create issue: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github: create issue: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var created issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("github: decode response: %w", err)
	}
	n.logger.Info("issue created", zap.Int("number", created.Number), zap.String("url", created.HTMLURL))
	return nil
}

func truncate(body string) string {
	if utf8.RuneCountInString(body) <= maxBodyRunes {
		return body
	}
	runes := []rune(body)
	keep := maxBodyRunes - utf8.RuneCountInString(truncatedSuffix)
	return string(runes[:keep]) + truncatedSuffix
}
