// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/kapsel-sh/kapsel/internal/buildinfo"
)

// ErrClientDisabled is returned by every call after an upstream API has
// rejected our credentials. The client never re-enables itself.
var ErrClientDisabled = errors.New("api client disabled after authentication failure")

const maxAPIResponseBytes int64 = 4 << 20

// apiClient wraps one upstream JSON API with minimum-delay rate limiting,
// permanent disable on 401, and response memoization. Memo hits bypass the
// limiter entirely.
type apiClient struct {
	name       string
	limiter    *Limiter
	httpClient *http.Client

	mu       sync.Mutex
	disabled bool
	memo     map[string][]byte

	group singleflight.Group
}

func newAPIClient(name string, minDelay, timeout time.Duration) *apiClient {
	return &apiClient{
		name:       name,
		limiter:    NewLimiter(minDelay),
		httpClient: &http.Client{Timeout: timeout},
		memo:       make(map[string][]byte),
	}
}

func (c *apiClient) enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled
}

func (c *apiClient) disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disabled {
		c.disabled = true
		log.Error().Str("api", c.name).Msg("Credentials rejected, disabling client for this run")
	}
}

func (c *apiClient) cached(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.memo[url]
	return body, ok
}

func (c *apiClient) remember(url string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo[url] = body
}

// getJSON fetches url with the given extra headers and returns the body.
// Successful bodies are memoized per URL; repeated lookups never touch the
// network or the limiter again. Identical concurrent fetches collapse into
// one request.
func (c *apiClient) getJSON(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if !c.enabled() {
		return nil, ErrClientDisabled
	}

	if body, ok := c.cached(url); ok {
		return body, nil
	}

	result, err, _ := c.group.Do(url, func() (interface{}, error) {
		if body, ok := c.cached(url); ok {
			return body, nil
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", c.name, err)
		}
		req.Header.Set("User-Agent", buildinfo.UserAgent)
		for key, values := range header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", c.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			c.disable()
			return nil, ErrClientDisabled
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &ProbeError{StatusCode: resp.StatusCode, URL: url}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", c.name, err)
		}

		c.remember(url, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
