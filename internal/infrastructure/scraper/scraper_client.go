// Package scraper talks to the catalog collaborator that refreshes job listings.
package scraper

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

	"job-recommender/internal/logger"
)

var ErrNotConfigured = errors.New("catalog refresh endpoint not configured")

// RefreshClient asks the collaborator to re-scrape one source. It returns the collaborator's task id.
type RefreshClient interface {
	RefreshSource(ctx context.Context, source, query string) (taskID string, err error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

type refreshRequest struct {
	Source string `json:"source"`
	Query  string `json:"query,omitempty"`
}

type refreshResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// NewHTTPClient returns nil when baseURL is empty; callers treat a nil client as "refresh disabled".
func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) *HTTPClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger.OrNop(log),
	}
}

func (c *HTTPClient) RefreshSource(ctx context.Context, source, query string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrNotConfigured
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("empty source")
	}
	endpoint := c.baseURL + "/scrape"

	b, err := json.Marshal(refreshRequest{Source: source, Query: strings.TrimSpace(query)})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		bodyStr := strings.TrimSpace(string(rb))
		c.log.Warn("catalog refresh rejected", map[string]interface{}{
			"endpoint": endpoint,
			"source":   source,
			"status":   resp.StatusCode,
			"body":     bodyStr,
		})
		return "", fmt.Errorf("refresh %s failed: status=%d body=%s", source, resp.StatusCode, bodyStr)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	return strings.TrimSpace(out.TaskID), nil
}

var _ RefreshClient = (*HTTPClient)(nil)
