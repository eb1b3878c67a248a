// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapsel-sh/kapsel/internal/covers"
	"github.com/kapsel-sh/kapsel/internal/library"
)

var testImage = bytes.Repeat([]byte{0xCC}, covers.MinValidSize+512)

type testEnv struct {
	api   *httptest.Server
	cache *covers.Cache
	store *library.Store
}

// newTestEnv wires a full server around local mock upstreams: the CDN
// knows app id 400, everything else misses.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cdn/400.jpg" {
			w.Write(testImage)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(cdn.Close)

	dead := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(dead.Close)

	cache, err := covers.NewCache(t.TempDir())
	require.NoError(t, err)

	resolver := covers.NewResolver(cache, covers.Config{})
	resolver.CDN().SetTemplates([]string{cdn.URL + "/cdn/%s.jpg"})
	resolver.StoreSearch().SetBaseURL(dead.URL + "/storesearch/")
	resolver.StoreSearch().SetPause(0)
	resolver.ImageSearch().SetBaseURL(dead.URL)
	resolver.ImageSearch().SetDelayBounds(0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	queue := covers.NewQueue(resolver)
	queue.Start(ctx)

	store := library.NewStore(filepath.Join(t.TempDir(), "library.json"))

	srv := NewServer(&Dependencies{
		Version:   "test",
		Queue:     queue,
		Store:     store,
		Cache:     cache,
		Validator: covers.NewValidator(cache, store, resolver),
		Uploader:  covers.NewUploader(cache),
	})

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &testEnv{api: api, cache: cache, store: store}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.api.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.api.URL + "/api/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestResolveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/covers/resolve", map[string]string{
		"title":  "Portal",
		"app_id": "400",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeJSON[covers.Resolution](t, resp)
	assert.Equal(t, covers.SourceSteamCDN, res.Source)
	assert.True(t, covers.ValidFile(res.Path))
}

func TestResolveEndpointRejectsEmptyRequest(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/covers/resolve", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetCover(t *testing.T) {
	env := newTestEnv(t)

	game := library.Game{UID: "abc123def456", Title: "Portal", AppID: "400", Platform: "steam"}
	require.NoError(t, env.store.Save([]library.Game{game}))

	t.Run("missing cover", func(t *testing.T) {
		resp, err := http.Get(env.api.URL + "/api/covers/" + game.UID)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown uid", func(t *testing.T) {
		resp, err := http.Get(env.api.URL + "/api/covers/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cached cover served", func(t *testing.T) {
		path := env.cache.PathFor(covers.CacheKey(game.Title, game.AppID))
		require.NoError(t, os.WriteFile(path, testImage, 0644))

		resp, err := http.Get(env.api.URL + "/api/covers/" + game.UID)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)

	game := library.Game{UID: "abc123def456", Title: "Portal", AppID: "400", Platform: "steam"}
	require.NoError(t, env.store.Save([]library.Game{game}))

	// Seed a stale cover; refresh must replace it, not return it.
	path := env.cache.PathFor(covers.CacheKey(game.Title, game.AppID))
	require.NoError(t, os.WriteFile(path, testImage, 0644))

	resp := env.postJSON(t, "/api/covers/"+game.UID+"/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeJSON[covers.Resolution](t, resp)
	assert.Equal(t, covers.SourceSteamCDN, res.Source)
}

func TestUploadFromURL(t *testing.T) {
	env := newTestEnv(t)

	// Noisy pixels so the PNG clears the minimum download size.
	img := image.NewNRGBA(image.Rect(0, 0, 600, 900))
	for y := 0; y < 900; y++ {
		for x := 0; x < 600; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x * y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer images.Close()

	game := library.Game{UID: "abc123def456", Title: "Obscure Indie Game", Platform: "other"}
	require.NoError(t, env.store.Save([]library.Game{game}))

	resp := env.postJSON(t, "/api/covers/"+game.UID+"/upload", map[string]string{
		"url": images.URL + "/cover.png",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	path := env.cache.PathFor(covers.CacheKey(game.Title, game.AppID))
	assert.True(t, covers.ValidFile(path))
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	game := library.Game{UID: "abc123def456", Title: "Portal", AppID: "400", Platform: "steam"}
	require.NoError(t, env.store.Save([]library.Game{game}))

	// One broken cover to repair, one orphan to sweep.
	broken := env.cache.PathFor(covers.CacheKey(game.Title, game.AppID))
	require.NoError(t, os.WriteFile(broken, []byte("stub"), 0644))
	orphan := filepath.Join(env.cache.Dir(), "deadbeef0000.jpg")
	require.NoError(t, os.WriteFile(orphan, testImage, 0644))

	resp := env.postJSON(t, "/api/covers/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON[map[string]int](t, resp)
	assert.Equal(t, 1, body["fetched"])
	assert.Equal(t, 1, body["orphans_removed"])

	assert.True(t, covers.ValidFile(broken))
	assert.NoFileExists(t, orphan)
}
