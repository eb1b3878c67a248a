// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package library holds the game inventory: the records discovery
// produces and the JSON file they persist in. The inventory file is also
// edited by hand and by other tools, so it is always read fresh from disk
// rather than held in memory.
package library

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Game is one inventory entry. UID is derived from the executable path
// and stays stable across rescans.
type Game struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	ExePath     string    `json:"exe_path"`
	IconPath    string    `json:"icon_path,omitempty"`
	Platform    string    `json:"platform"`
	AppID       string    `json:"app_id,omitempty"`
	InstallPath string    `json:"install_path,omitempty"`
	Favorite    bool      `json:"is_favorite"`
	AddedAt     time.Time `json:"added_date"`
}

// GenerateUID derives a stable 12-hex identifier from a path. Case is
// folded so the same install found through differently-cased mount points
// collapses to one entry.
func GenerateUID(path string) string {
	sum := xxhash.Sum64String(strings.ToLower(path))
	return fmt.Sprintf("%016x", sum)[:12]
}
