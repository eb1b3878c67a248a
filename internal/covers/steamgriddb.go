// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const sgdbDefaultBaseURL = "https://www.steamgriddb.com/api/v2"

// SteamGridDB is the authenticated grid-art client. Vertical 600x900 grids
// are the target asset; anything else is a fallback.
type SteamGridDB struct {
	baseURL string
	apiKey  string
	client  *apiClient
}

func NewSteamGridDB(apiKey string) *SteamGridDB {
	return &SteamGridDB{
		baseURL: sgdbDefaultBaseURL,
		apiKey:  apiKey,
		client:  newAPIClient("steamgriddb", 250*time.Millisecond, 10*time.Second),
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (s *SteamGridDB) SetBaseURL(baseURL string) {
	s.baseURL = baseURL
}

// Enabled reports whether the client has a key and has not been disabled
// by an authentication failure.
func (s *SteamGridDB) Enabled() bool {
	return s.apiKey != "" && s.client.enabled()
}

type sgdbResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type sgdbGrid struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type sgdbGame struct {
	ID int64 `json:"id"`
}

func (s *SteamGridDB) get(ctx context.Context, path string) (json.RawMessage, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)

	body, err := s.client.getJSON(ctx, s.baseURL+path, header)
	if err != nil {
		return nil, err
	}

	var resp sgdbResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode steamgriddb response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("steamgriddb reported failure for %s", path)
	}

	return resp.Data, nil
}

// GridsBySteamID returns candidate grid URLs for a Steam app id.
func (s *SteamGridDB) GridsBySteamID(ctx context.Context, appID string) ([]string, error) {
	data, err := s.get(ctx, "/grids/steam/"+url.PathEscape(appID))
	if err != nil {
		return nil, err
	}
	return pickGrids(data)
}

// SearchGame resolves a game name to a SteamGridDB game id via
// autocomplete. Returns 0 when nothing matches.
func (s *SteamGridDB) SearchGame(ctx context.Context, name string) (int64, error) {
	data, err := s.get(ctx, "/search/autocomplete/"+url.PathEscape(name))
	if err != nil {
		return 0, err
	}

	var games []sgdbGame
	if err := json.Unmarshal(data, &games); err != nil {
		return 0, fmt.Errorf("decode steamgriddb search results: %w", err)
	}
	if len(games) == 0 {
		return 0, nil
	}

	return games[0].ID, nil
}

// GridsByGameID returns candidate grid URLs for a SteamGridDB game id.
func (s *SteamGridDB) GridsByGameID(ctx context.Context, gameID int64) ([]string, error) {
	data, err := s.get(ctx, fmt.Sprintf("/grids/game/%d", gameID))
	if err != nil {
		return nil, err
	}
	return pickGrids(data)
}

// pickGrids orders candidates: every exact 600x900 grid first, then up to
// three others as a fallback when no vertical grid exists.
func pickGrids(data json.RawMessage) ([]string, error) {
	var grids []sgdbGrid
	if err := json.Unmarshal(data, &grids); err != nil {
		return nil, fmt.Errorf("decode steamgriddb grids: %w", err)
	}

	var vertical []string
	for _, grid := range grids {
		if grid.Width == 600 && grid.Height == 900 {
			vertical = append(vertical, grid.URL)
		}
	}
	if len(vertical) > 0 {
		return vertical, nil
	}

	urls := make([]string, 0, 3)
	for _, grid := range grids {
		urls = append(urls, grid.URL)
		if len(urls) == 3 {
			break
		}
	}

	return urls, nil
}
