// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/kapsel-sh/kapsel/internal/library"
)

// Validator audits the cover cache against the game inventory. The
// inventory file is loaded fresh for every pass; external edits between
// calls are expected.
type Validator struct {
	cache    *Cache
	store    *library.Store
	resolver *Resolver
}

func NewValidator(cache *Cache, store *library.Store, resolver *Resolver) *Validator {
	return &Validator{
		cache:    cache,
		store:    store,
		resolver: resolver,
	}
}

// requestFor maps an inventory entry onto a resolve request.
func requestFor(game library.Game) Request {
	return Request{
		Title:   game.Title,
		AppID:   game.AppID,
		ExePath: game.ExePath,
	}
}

// coverPath returns the cover location for a game: its recorded
// reference when one is set, the derived cache path otherwise.
func (v *Validator) coverPath(game library.Game) string {
	if game.IconPath != "" {
		return game.IconPath
	}
	return v.cache.PathFor(CacheKey(game.Title, game.AppID))
}

// IsValid reports whether the game has a usable cover on disk.
func (v *Validator) IsValid(game library.Game) bool {
	return ValidFile(v.coverPath(game))
}

// Repair clears cover references that no longer pass the validity check.
// The slice is mutated in place; persisting it is the caller's job.
// Returns how many entries were changed.
func (v *Validator) Repair(games []library.Game) int {
	repaired := 0
	for i := range games {
		if games[i].IconPath == "" || ValidFile(games[i].IconPath) {
			continue
		}
		log.Debug().Str("title", games[i].Title).Str("path", games[i].IconPath).Msg("Clearing broken cover reference")
		games[i].IconPath = ""
		repaired++
	}
	return repaired
}

// Restore runs a full maintenance pass: load the inventory, clear broken
// references, resolve a cover for every game that lacks a valid one,
// record the new paths, and persist. Returns how many references were
// cleared and how many covers were fetched.
func (v *Validator) Restore(ctx context.Context) (repaired, fetched int, err error) {
	games, err := v.store.Load()
	if err != nil {
		return 0, 0, err
	}

	repaired = v.Repair(games)

	for i := range games {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		if games[i].IconPath != "" {
			continue
		}

		// A cover may already sit at the derived path without being
		// referenced; adopt it instead of fetching.
		path := v.cache.PathFor(CacheKey(games[i].Title, games[i].AppID))
		if ValidFile(path) {
			games[i].IconPath = path
			continue
		}

		res := v.resolver.Resolve(ctx, requestFor(games[i]))
		if res.Source == SourceNone {
			continue
		}
		games[i].IconPath = res.Path
		fetched++
		log.Info().Str("title", games[i].Title).Str("source", string(res.Source)).Msg("Cover restored")
	}

	if saveErr := v.store.Save(games); saveErr != nil && err == nil {
		err = saveErr
	}
	return repaired, fetched, err
}

// SweepOrphans deletes cache files no inventory entry references, either
// through a recorded cover path or through the derived cache name.
// Returns the number removed and the number of files examined.
func (v *Validator) SweepOrphans() (int, int, error) {
	games, err := v.store.Load()
	if err != nil {
		return 0, 0, err
	}

	expected := make(map[string]struct{}, len(games)*2)
	for _, game := range games {
		if game.IconPath != "" {
			expected[filepath.Base(game.IconPath)] = struct{}{}
		}
		name := hash12(CacheKey(game.Title, game.AppID))
		expected[name+".jpg"] = struct{}{}
		expected[name+".png"] = struct{}{}
	}

	var files []string
	for _, pattern := range []string{"*.jpg", "*.png"} {
		matches, err := filepath.Glob(filepath.Join(v.cache.Dir(), pattern))
		if err != nil {
			return 0, 0, err
		}
		files = append(files, matches...)
	}

	removed := 0
	for _, file := range files {
		if _, ok := expected[filepath.Base(file)]; ok {
			continue
		}
		if err := os.Remove(file); err != nil {
			log.Warn().Err(err).Str("path", file).Msg("Could not remove orphaned cover")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Int("total", len(files)).Msg("Orphaned covers swept")
	}

	return removed, len(files), nil
}
