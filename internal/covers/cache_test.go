// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathForDeterministic(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	p1 := cache.PathFor("doom eternal")
	p2 := cache.PathFor("doom eternal")
	assert.Equal(t, p1, p2)

	base := filepath.Base(p1)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}\.jpg$`), base)

	// Case on the key must not change the file name.
	assert.Equal(t, p1, cache.PathFor("DOOM Eternal"))

	assert.NotEqual(t, p1, cache.PathFor("hades"))
}

func TestValidFile(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "small.jpg")
	require.NoError(t, os.WriteFile(small, make([]byte, MinValidSize), 0644))

	large := filepath.Join(dir, "large.jpg")
	require.NoError(t, os.WriteFile(large, make([]byte, MinValidSize+1), 0644))

	assert.False(t, ValidFile(""), "empty path")
	assert.False(t, ValidFile(filepath.Join(dir, "missing.jpg")), "missing file")
	assert.False(t, ValidFile(small), "exactly at threshold is invalid")
	assert.True(t, ValidFile(large), "above threshold is valid")
}

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, MinValidSize+100)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.jpg":
			w.Write(payload)
		case "/tiny.jpg":
			w.Write([]byte("nope"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	t.Run("successful download", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.jpg")
		require.NoError(t, cache.Download(context.Background(), srv.URL+"/cover.jpg", dest))

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
		assert.True(t, ValidFile(dest))
	})

	t.Run("404 yields probe error", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.jpg")
		err := cache.Download(context.Background(), srv.URL+"/missing.jpg", dest)
		require.Error(t, err)

		var probeErr *ProbeError
		require.True(t, errors.As(err, &probeErr))
		assert.Equal(t, http.StatusNotFound, probeErr.StatusCode)

		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr), "no file written on error")
	})

	t.Run("undersized body rejected", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.jpg")
		err := cache.Download(context.Background(), srv.URL+"/tiny.jpg", dest)
		require.Error(t, err)
		assert.NotErrorIs(t, err, &ProbeError{})

		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		dest := filepath.Join(t.TempDir(), "out.jpg")
		err := cache.Download(ctx, srv.URL+"/cover.jpg", dest)
		require.Error(t, err)
	})
}
