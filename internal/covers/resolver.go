// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
)

// Source tags where a cover ultimately came from.
type Source string

const (
	SourceSteamGridDB Source = "SteamGridDB"
	SourceSteamCDN    Source = "SteamCDN"
	SourceRAWG        Source = "RAWG"
	SourceSteamStore  Source = "SteamStoreSearch"
	SourceDuckDuckGo  Source = "DuckDuckGo"
	SourceExeIcon     Source = "ExeIcon"
	SourceNone        Source = "None"

	// SourceCache marks a request satisfied without any fetch at all. It
	// is not one of the seven provider tags above: it only appears when a
	// previous resolve already populated the cache entry.
	SourceCache Source = "Cache"
)

// Request identifies one game needing a cover. AppID and ExePath are
// optional; Title is what discovery or the user provided, raw.
type Request struct {
	Title   string
	AppID   string
	ExePath string
}

// Resolution is the total outcome of a resolve. Resolve never fails: an
// exhausted request yields SourceNone with an empty path. Source is one
// of the provider tags, or SourceCache when the entry was already on
// disk; callers matching on provider tags should treat SourceCache as a
// hit, not a provider.
type Resolution struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
}

// Config carries the upstream credentials. Empty keys disable the
// corresponding tiers without error.
type Config struct {
	SteamGridDBKey string
	RAWGKey        string
}

// tier is one rung of the fallback ladder. ready gates cheaply on the
// request shape; fetch does the work and reports whether dest now holds a
// valid cover.
type tier struct {
	source Source
	ready  func(req Request) bool
	fetch  func(ctx context.Context, req Request, dest string) bool
}

// Resolver walks a strict ladder of cover sources, best first, and stops
// at the first one that produces a valid image.
type Resolver struct {
	cache       *Cache
	sgdb        *SteamGridDB
	rawg        *RAWG
	cdn         *CDNProbe
	store       *StoreSearch
	imageSearch *ImageSearch
	extract     func(exePath, dest string) bool
	tiers       []tier
}

func NewResolver(cache *Cache, cfg Config) *Resolver {
	r := &Resolver{
		cache:       cache,
		sgdb:        NewSteamGridDB(cfg.SteamGridDBKey),
		rawg:        NewRAWG(cfg.RAWGKey),
		cdn:         NewCDNProbe(cache),
		store:       NewStoreSearch(),
		imageSearch: NewImageSearch(cache),
		extract:     ExtractIcon,
	}

	r.tiers = []tier{
		{
			source: SourceSteamGridDB,
			ready:  func(req Request) bool { return req.AppID != "" && r.sgdb.Enabled() },
			fetch:  r.fetchGridsBySteamID,
		},
		{
			source: SourceSteamCDN,
			ready:  func(req Request) bool { return req.AppID != "" },
			fetch: func(ctx context.Context, req Request, dest string) bool {
				return r.cdn.Fetch(ctx, req.AppID, dest)
			},
		},
		{
			source: SourceRAWG,
			ready:  func(req Request) bool { return req.Title != "" && r.rawg.Enabled() },
			fetch:  r.fetchRAWG,
		},
		{
			source: SourceSteamStore,
			ready:  func(req Request) bool { return req.Title != "" },
			fetch:  r.fetchViaStoreSearch,
		},
		{
			source: SourceSteamGridDB,
			ready:  func(req Request) bool { return req.Title != "" && r.sgdb.Enabled() },
			fetch:  r.fetchGridsByName,
		},
		{
			source: SourceDuckDuckGo,
			ready:  func(req Request) bool { return req.Title != "" },
			fetch: func(ctx context.Context, req Request, dest string) bool {
				return r.imageSearch.Fetch(ctx, Normalize(req.Title), dest)
			},
		},
		{
			source: SourceExeIcon,
			ready:  func(req Request) bool { return req.ExePath != "" },
			fetch: func(ctx context.Context, req Request, dest string) bool {
				return r.extract(req.ExePath, dest)
			},
		},
	}

	return r
}

// SteamGridDB exposes the grid client so serve mode can report its state.
func (r *Resolver) SteamGridDB() *SteamGridDB { return r.sgdb }

// RAWG exposes the RAWG client so serve mode can report its state.
func (r *Resolver) RAWG() *RAWG { return r.rawg }

// CDN exposes the CDN probe, used by tests to redirect templates.
func (r *Resolver) CDN() *CDNProbe { return r.cdn }

// StoreSearch exposes the storefront client, used by tests.
func (r *Resolver) StoreSearch() *StoreSearch { return r.store }

// ImageSearch exposes the image search client, used by tests.
func (r *Resolver) ImageSearch() *ImageSearch { return r.imageSearch }

// SetIconExtractor replaces the executable icon extractor, used by tests.
func (r *Resolver) SetIconExtractor(fn func(exePath, dest string) bool) {
	r.extract = fn
}

// Key returns the cache key Resolve will use for req.
func (r *Resolver) Key(req Request) string {
	return CacheKey(req.Title, req.AppID)
}

// Resolve finds a cover for req, preferring the cache, then walking the
// tier ladder. The result is total: exhaustion reports SourceNone rather
// than an error, and the cached path is returned on every later call.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	dest := r.cache.PathFor(r.Key(req))

	if ValidFile(dest) {
		return Resolution{Path: dest, Source: SourceCache}
	}

	for _, t := range r.tiers {
		if ctx.Err() != nil {
			break
		}
		if !t.ready(req) {
			continue
		}
		if t.fetch(ctx, req, dest) {
			log.Info().Str("title", req.Title).Str("source", string(t.source)).Msg("Cover resolved")
			return Resolution{Path: dest, Source: t.source}
		}
	}

	// A tier may have written a partial or undersized file before failing.
	if !ValidFile(dest) {
		os.Remove(dest)
	}

	log.Debug().Str("title", req.Title).Str("appId", req.AppID).Msg("Every cover source exhausted")
	return Resolution{Source: SourceNone}
}

// Refresh discards any cached cover for req and resolves it again.
func (r *Resolver) Refresh(ctx context.Context, req Request) Resolution {
	dest := r.cache.PathFor(r.Key(req))
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", dest).Msg("Could not remove cached cover before refresh")
	}
	return r.Resolve(ctx, req)
}

func (r *Resolver) fetchGridsBySteamID(ctx context.Context, req Request, dest string) bool {
	urls, err := r.sgdb.GridsBySteamID(ctx, req.AppID)
	if err != nil {
		logGridError(err, req)
		return false
	}
	return r.downloadFirst(ctx, urls, dest)
}

func (r *Resolver) fetchGridsByName(ctx context.Context, req Request, dest string) bool {
	name := Normalize(req.Title)
	if name == "" {
		return false
	}

	gameID, err := r.sgdb.SearchGame(ctx, name)
	if err != nil {
		logGridError(err, req)
		return false
	}
	if gameID == 0 {
		return false
	}

	urls, err := r.sgdb.GridsByGameID(ctx, gameID)
	if err != nil {
		logGridError(err, req)
		return false
	}
	return r.downloadFirst(ctx, urls, dest)
}

func (r *Resolver) fetchRAWG(ctx context.Context, req Request, dest string) bool {
	imageURL, err := r.rawg.SearchBackground(ctx, Normalize(req.Title))
	if err != nil {
		log.Debug().Err(err).Str("title", req.Title).Msg("RAWG lookup failed")
		return false
	}
	if imageURL == "" {
		return false
	}

	if err := r.cache.Download(ctx, imageURL, dest); err != nil {
		log.Debug().Err(err).Str("url", imageURL).Msg("RAWG image failed to download")
		return false
	}
	return ValidFile(dest)
}

func (r *Resolver) fetchViaStoreSearch(ctx context.Context, req Request, dest string) bool {
	appID := r.store.FindAppID(ctx, Normalize(req.Title))
	if appID == "" {
		return false
	}
	return r.cdn.Fetch(ctx, appID, dest)
}

// downloadFirst tries candidate URLs in order and keeps the first one
// that lands a valid file at dest.
func (r *Resolver) downloadFirst(ctx context.Context, urls []string, dest string) bool {
	for _, u := range urls {
		if ctx.Err() != nil {
			return false
		}
		if err := r.cache.Download(ctx, u, dest); err != nil {
			log.Trace().Err(err).Str("url", u).Msg("Grid candidate failed")
			continue
		}
		if ValidFile(dest) {
			return true
		}
	}
	return false
}

func logGridError(err error, req Request) {
	if err == ErrClientDisabled {
		return
	}
	log.Debug().Err(err).Str("title", req.Title).Str("appId", req.AppID).Msg("SteamGridDB lookup failed")
}
