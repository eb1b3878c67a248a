// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kapsel-sh/kapsel/internal/covers"
	"github.com/kapsel-sh/kapsel/internal/library"
)

type CoversHandler struct {
	queue     *covers.Queue
	store     *library.Store
	cache     *covers.Cache
	validator *covers.Validator
	uploader  *covers.Uploader
}

func NewCoversHandler(queue *covers.Queue, store *library.Store, cache *covers.Cache, validator *covers.Validator, uploader *covers.Uploader) *CoversHandler {
	return &CoversHandler{
		queue:     queue,
		store:     store,
		cache:     cache,
		validator: validator,
		uploader:  uploader,
	}
}

type resolveRequest struct {
	Title   string `json:"title"`
	AppID   string `json:"app_id"`
	ExePath string `json:"exe_path"`
}

// Resolve finds a cover for an ad-hoc request. Jobs run one at a time;
// the call blocks until the ladder finishes.
func (h *CoversHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var input resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if input.Title == "" && input.AppID == "" {
		RespondError(w, http.StatusBadRequest, "A title or app id is required")
		return
	}

	res, err := h.queue.Resolve(r.Context(), covers.Request{
		Title:   input.Title,
		AppID:   input.AppID,
		ExePath: input.ExePath,
	})
	if err != nil {
		log.Error().Err(err).Str("title", input.Title).Msg("failed to resolve cover")
		RespondError(w, http.StatusServiceUnavailable, "Resolve queue unavailable")
		return
	}

	RespondJSON(w, http.StatusOK, res)
}

// Get serves the cached cover for a library game.
func (h *CoversHandler) Get(w http.ResponseWriter, r *http.Request) {
	game, ok := h.lookupGame(w, r)
	if !ok {
		return
	}

	path := h.coverPath(*game)
	if !covers.ValidFile(path) {
		RespondError(w, http.StatusNotFound, "No cover cached for this game")
		return
	}

	http.ServeFile(w, r, path)
}

// Refresh discards the cached cover for a game and resolves it again.
func (h *CoversHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	game, ok := h.lookupGame(w, r)
	if !ok {
		return
	}

	res, err := h.queue.Refresh(r.Context(), covers.Request{
		Title:   game.Title,
		AppID:   game.AppID,
		ExePath: game.ExePath,
	})
	if err != nil {
		log.Error().Err(err).Str("uid", game.UID).Msg("failed to refresh cover")
		RespondError(w, http.StatusServiceUnavailable, "Resolve queue unavailable")
		return
	}

	RespondJSON(w, http.StatusOK, res)
}

type uploadRequest struct {
	URL string `json:"url"`
}

// Upload installs a user-chosen cover for a game, either as a multipart
// file or as a JSON body naming a URL to fetch.
func (h *CoversHandler) Upload(w http.ResponseWriter, r *http.Request) {
	game, ok := h.lookupGame(w, r)
	if !ok {
		return
	}
	dest := h.coverPath(*game)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.uploadFile(w, r, dest)
		return
	}

	var input uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.URL == "" {
		RespondError(w, http.StatusBadRequest, "Expected a multipart file or a JSON body with a url")
		return
	}

	if err := h.uploader.FromURL(r.Context(), input.URL, dest); err != nil {
		log.Error().Err(err).Str("uid", game.UID).Msg("failed to install cover from url")
		RespondError(w, http.StatusBadGateway, "Could not fetch cover from url")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"path": dest})
}

func (h *CoversHandler) uploadFile(w http.ResponseWriter, r *http.Request, dest string) {
	file, _, err := r.FormFile("file")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "kapsel-upload-*.img")
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Could not buffer upload")
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		RespondError(w, http.StatusInternalServerError, "Could not buffer upload")
		return
	}
	tmp.Close()

	if err := h.uploader.FromFile(tmpPath, dest); err != nil {
		log.Warn().Err(err).Msg("failed to install uploaded cover")
		RespondError(w, http.StatusBadRequest, "Uploaded file is not a usable image")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"path": dest})
}

// Validate repairs broken cover references, fetches missing covers and
// sweeps orphaned cache files.
func (h *CoversHandler) Validate(w http.ResponseWriter, r *http.Request) {
	repaired, fetched, err := h.validator.Restore(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to restore covers")
		RespondError(w, http.StatusInternalServerError, "Could not read the game library")
		return
	}

	removed, total, err := h.validator.SweepOrphans()
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep orphaned covers")
		RespondError(w, http.StatusInternalServerError, "Could not sweep the cover cache")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]int{
		"repaired":        repaired,
		"fetched":         fetched,
		"orphans_removed": removed,
		"files_scanned":   total,
	})
}

func (h *CoversHandler) lookupGame(w http.ResponseWriter, r *http.Request) (*library.Game, bool) {
	uid := chi.URLParam(r, "uid")
	if uid == "" {
		RespondError(w, http.StatusBadRequest, "Missing game uid")
		return nil, false
	}

	game, err := h.store.FindByUID(uid)
	if err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("failed to load game library")
		RespondError(w, http.StatusInternalServerError, "Could not read the game library")
		return nil, false
	}
	if game == nil {
		RespondError(w, http.StatusNotFound, "Unknown game uid")
		return nil, false
	}

	return game, true
}

func (h *CoversHandler) coverPath(game library.Game) string {
	if game.IconPath != "" && covers.ValidFile(game.IconPath) {
		return game.IconPath
	}
	return h.cache.PathFor(covers.CacheKey(game.Title, game.AppID))
}
