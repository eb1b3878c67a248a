// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const rawgDefaultBaseURL = "https://api.rawg.io/api"

// RAWG searches the RAWG games database for background art. Background
// images are landscape, so this ranks below every vertical-grid source.
type RAWG struct {
	baseURL string
	apiKey  string
	client  *apiClient
}

func NewRAWG(apiKey string) *RAWG {
	return &RAWG{
		baseURL: rawgDefaultBaseURL,
		apiKey:  apiKey,
		client:  newAPIClient("rawg", 100*time.Millisecond, 10*time.Second),
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (r *RAWG) SetBaseURL(baseURL string) {
	r.baseURL = baseURL
}

func (r *RAWG) Enabled() bool {
	return r.apiKey != "" && r.client.enabled()
}

type rawgResponse struct {
	Results []struct {
		BackgroundImage string `json:"background_image"`
	} `json:"results"`
}

// SearchBackground returns the background image URL for the best match, or
// "" when the search comes up empty. Empty results are memoized like hits;
// the underlying client caches the response body per URL.
func (r *RAWG) SearchBackground(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("key", r.apiKey)
	params.Set("search", name)
	params.Set("search_precise", "true")
	params.Set("page_size", "1")

	body, err := r.client.getJSON(ctx, r.baseURL+"/games?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	var resp rawgResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode rawg response: %w", err)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}

	return resp.Results[0].BackgroundImage, nil
}
