// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/kapsel-sh/kapsel/internal/buildinfo"
)

const storeSearchDefaultBaseURL = "https://store.steampowered.com/api/storesearch/"

// StoreSearch resolves game titles to Steam app ids through the public
// storefront search. Results, including misses, are memoized per
// normalized title so a library full of duplicates costs one request.
type StoreSearch struct {
	baseURL    string
	pause      time.Duration
	httpClient *http.Client

	mu   sync.Mutex
	memo map[string]string
}

func NewStoreSearch() *StoreSearch {
	return &StoreSearch{
		baseURL:    storeSearchDefaultBaseURL,
		pause:      200 * time.Millisecond,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		memo:       make(map[string]string),
	}
}

// SetBaseURL overrides the storefront endpoint, used by tests.
func (s *StoreSearch) SetBaseURL(baseURL string) {
	s.baseURL = baseURL
}

// SetPause overrides the post-call courtesy pause, used by tests.
func (s *StoreSearch) SetPause(pause time.Duration) {
	s.pause = pause
}

type storeSearchResponse struct {
	Total int `json:"total"`
	Items []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"items"`
}

// FindAppID returns the Steam app id for a normalized title, or "" when
// the storefront has no convincing match. The first storefront hit must
// fuzzy-match the query; storefront search is loose enough to return
// unrelated games for short or generic titles.
func (s *StoreSearch) FindAppID(ctx context.Context, normalized string) string {
	if len(normalized) < 2 {
		return ""
	}

	s.mu.Lock()
	if appID, ok := s.memo[normalized]; ok {
		s.mu.Unlock()
		return appID
	}
	s.mu.Unlock()

	appID := s.search(ctx, normalized)

	s.mu.Lock()
	s.memo[normalized] = appID
	s.mu.Unlock()

	// Fixed pause after every real storefront call, hit or miss.
	if s.pause > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.pause):
		}
	}

	return appID
}

func (s *StoreSearch) search(ctx context.Context, normalized string) string {
	params := url.Values{}
	params.Set("term", normalized)
	params.Set("l", "english")
	params.Set("cc", "US")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("title", normalized).Msg("Storefront search failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Str("title", normalized).Msg("Storefront search rejected")
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return ""
	}

	var result storeSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Debug().Err(err).Str("title", normalized).Msg("Storefront search returned malformed JSON")
		return ""
	}
	if result.Total == 0 || len(result.Items) == 0 {
		return ""
	}

	first := result.Items[0]
	if !fuzzy.MatchNormalizedFold(normalized, first.Name) && !fuzzy.MatchNormalizedFold(first.Name, normalized) {
		log.Debug().Str("title", normalized).Str("hit", first.Name).Msg("Storefront hit rejected by name check")
		return ""
	}

	appID := first.ID.String()
	if _, err := strconv.ParseInt(appID, 10, 64); err != nil {
		return ""
	}

	log.Debug().Str("title", normalized).Str("appId", appID).Str("name", first.Name).Msg("Storefront search matched")
	return appID
}
