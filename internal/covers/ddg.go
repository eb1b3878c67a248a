// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

const ddgDefaultBaseURL = "https://duckduckgo.com"

// browserUserAgent is sent instead of our own agent string; the image
// endpoint only answers browser-looking clients.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var vqdRe = regexp.MustCompile(`vqd=['"]?([\d-]+)`)

// ImageSearch is the desperation tier: an unauthenticated DuckDuckGo
// image search scoped to vertical box art. A single result is taken and
// any failure along the way simply reports a miss.
type ImageSearch struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache

	minDelay time.Duration
	maxDelay time.Duration
}

func NewImageSearch(cache *Cache) *ImageSearch {
	return &ImageSearch{
		baseURL:    ddgDefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		minDelay:   500 * time.Millisecond,
		maxDelay:   time.Second,
	}
}

// SetBaseURL overrides the search endpoint, used by tests.
func (s *ImageSearch) SetBaseURL(baseURL string) {
	s.baseURL = baseURL
}

// SetDelayBounds overrides the pre-call jitter window, used by tests.
func (s *ImageSearch) SetDelayBounds(min, max time.Duration) {
	s.minDelay = min
	s.maxDelay = max
}

// Fetch searches for vertical box art matching name and writes the first
// result to dest. Returns false on any failure; this tier never errors.
func (s *ImageSearch) Fetch(ctx context.Context, name, dest string) bool {
	if name == "" {
		return false
	}

	// Random spacing keeps bulk scans from hammering the endpoint with a
	// recognizable cadence.
	if s.maxDelay > 0 {
		delay := s.minDelay
		if jitter := s.maxDelay - s.minDelay; jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(jitter)))
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}

	query := name + " game box art vertical 600x900"

	vqd := s.fetchToken(ctx, query)
	if vqd == "" {
		return false
	}

	imageURL := s.firstImage(ctx, query, vqd)
	if imageURL == "" {
		return false
	}

	if err := s.cache.Download(ctx, imageURL, dest); err != nil {
		log.Debug().Err(err).Str("title", name).Msg("Image search result failed to download")
		return false
	}

	return ValidFile(dest)
}

// fetchToken scrapes the vqd token from the search landing page; the
// image endpoint rejects requests without it.
func (s *ImageSearch) fetchToken(ctx context.Context, query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("iax", "images")
	params.Set("ia", "images")

	body := s.get(ctx, s.baseURL+"/?"+params.Encode())
	if body == nil {
		return ""
	}

	match := vqdRe.FindSubmatch(body)
	if match == nil {
		log.Debug().Str("query", query).Msg("Image search token not found on landing page")
		return ""
	}

	return string(match[1])
}

type ddgImageResponse struct {
	Results []struct {
		Image string `json:"image"`
	} `json:"results"`
}

func (s *ImageSearch) firstImage(ctx context.Context, query, vqd string) string {
	params := url.Values{}
	params.Set("l", "us-en")
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("vqd", vqd)
	params.Set("p", "1")

	body := s.get(ctx, s.baseURL+"/i.js?"+params.Encode())
	if body == nil {
		return ""
	}

	var resp ddgImageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Debug().Err(err).Str("query", query).Msg("Image search returned malformed JSON")
		return ""
	}
	if len(resp.Results) == 0 {
		return ""
	}

	return resp.Results[0].Image
}

func (s *ImageSearch) get(ctx context.Context, url string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Image search request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("Image search request rejected")
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil
	}

	return body
}
