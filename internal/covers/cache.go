// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package covers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kapsel-sh/kapsel/internal/buildinfo"
)

const (
	// MinValidSize is the validity threshold for cache entries. Anything at
	// or below this is treated as a failed or placeholder download.
	MinValidSize = 2048

	// maxCoverDownloadBytes bounds a single cover fetch.
	maxCoverDownloadBytes int64 = 16 << 20

	downloadTimeout = 15 * time.Second
)

// ProbeError represents an HTTP error while fetching a cover candidate.
type ProbeError struct {
	StatusCode int
	URL        string
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("cover fetch from %s returned status %d", e.URL, e.StatusCode)
}

func (e *ProbeError) Is(target error) bool {
	_, ok := target.(*ProbeError)
	return ok
}

// CacheKey derives the canonical resolution key: the stable storefront id
// when present, otherwise the normalized title. Two requests with the same
// id always collide regardless of title text, and two titles normalizing
// identically collide too; both are intentional dedup behaviour.
func CacheKey(title, appID string) string {
	if appID != "" {
		return strings.ToLower(appID)
	}
	return strings.ToLower(Normalize(title))
}

// hash12 returns the first 12 hex characters of the xxhash64 digest of the
// lowercased key. This names every file in the cache directory.
func hash12(key string) string {
	sum := xxhash.Sum64String(strings.ToLower(key))
	return fmt.Sprintf("%016x", sum)[:12]
}

// ValidFile reports whether a cache file exists and clears the minimum size
// threshold. No decode is attempted; size is the validity proof.
func ValidFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > MinValidSize
}

// Cache maps resolution keys to files in a flat directory and owns the
// single download-to-path primitive every probe shares.
type Cache struct {
	dir        string
	httpClient *http.Client
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &Cache{
		dir:        dir,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// PathFor returns the deterministic cache path for a resolution key.
func (c *Cache) PathFor(key string) string {
	return filepath.Join(c.dir, hash12(key)+".jpg")
}

// Download fetches url and writes the body to dest as a whole file. Bodies
// at or below MinValidSize are rejected; they are error pages or stub
// images, not covers.
func (c *Cache) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build cover request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cover fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProbeError{StatusCode: resp.StatusCode, URL: url}
	}

	limited := io.LimitReader(resp.Body, maxCoverDownloadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("read cover body: %w", err)
	}
	if int64(len(data)) > maxCoverDownloadBytes {
		return fmt.Errorf("cover download exceeded %d bytes limit", maxCoverDownloadBytes)
	}
	if len(data) <= MinValidSize {
		return fmt.Errorf("cover body too small (%d bytes) from %s", len(data), url)
	}

	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("write cover file: %w", err)
	}

	return nil
}
