package presidio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

// ErrUnavailable is returned when the analyzer cannot be reached or
// answers with a non-success status. Callers use it to fall back to local
// detection layers.
var ErrUnavailable = errors.New("presidio analyzer unavailable")

// Client is an HTTP client for a Presidio analyzer instance. Safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient builds a client for the analyzer at baseURL. requestTimeout
// bounds whole requests (<= 0 means 30s); connections are capped at 5s.
func NewClient(baseURL string, requestTimeout time.Duration, log *logger.Logger) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
		log: log,
	}
}

// Analyze submits text to the analyzer and returns its findings. A
// transport failure or non-2xx status yields ErrUnavailable; a successful
// response with no findings yields a nil slice.
func (c *Client) Analyze(ctx context.Context, text, language string) ([]RemoteEntity, error) {
	body, err := json.Marshal(AnalyzeRequest{Text: text, Language: language})
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugf("remote_analyze", "transport error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warnf("remote_analyze", "status=%d", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entities []RemoteEntity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	return entities, nil
}

// Ping checks the analyzer health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// SupportedEntities lists the entity type names the analyzer recognizes.
func (c *Client) SupportedEntities(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supportedentities", nil)
	if err != nil {
		return nil, fmt.Errorf("build supportedentities request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("decode supportedentities response: %w", err)
	}
	return names, nil
}
