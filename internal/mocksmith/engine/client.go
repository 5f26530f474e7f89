package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mocksmith/common/retry"
	"mocksmith/internal/mocksmith/domain"
)

// ErrEngineUnavailable wraps transport and server-side failures of the
// engine admin API.
var ErrEngineUnavailable = errors.New("engine: unavailable")

// Client talks to a mock engine's admin API. Mutations retry briefly on
// transient failures; the assistant treats sync as best-effort regardless.
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
}

// NewClient builds an admin client for the engine at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// PushMapping creates or replaces a mapping on the engine.
func (c *Client) PushMapping(ctx context.Context, m *domain.Mapping) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("engine: marshal mapping: %w", err)
	}
	url := fmt.Sprintf("%s/__admin/mappings/%s", c.baseURL, m.ID)
	return retry.Do(ctx, c.retry, func() error {
		return c.send(ctx, http.MethodPut, url, body)
	})
}

// RemoveMapping deletes a mapping from the engine. A 404 is success; the
// engine already lacks it.
func (c *Client) RemoveMapping(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/__admin/mappings/%s", c.baseURL, id)
	return retry.Do(ctx, c.retry, func() error {
		err := c.send(ctx, http.MethodDelete, url, nil)
		if errors.Is(err, errNotFound) {
			return nil
		}
		return err
	})
}

// Reset removes every mapping from the engine. Used when re-syncing a
// workspace from scratch.
func (c *Client) Reset(ctx context.Context) error {
	url := c.baseURL + "/__admin/mappings"
	return retry.Do(ctx, c.retry, func() error {
		return c.send(ctx, http.MethodDelete, url, nil)
	})
}

// Healthy reports whether the engine admin API answers.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/__admin/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrEngineUnavailable, resp.StatusCode)
	}
	return nil
}

var errNotFound = errors.New("engine: not found")

func (c *Client) send(ctx context.Context, method, url string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d", ErrEngineUnavailable, method, url, resp.StatusCode)
	case resp.StatusCode >= 400:
		// Client errors are permanent; retrying cannot help.
		return retry.Permanent(fmt.Errorf("engine: %s %s returned %d", method, url, resp.StatusCode))
	}
	return nil
}
