// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package discovery finds installed games: Steam installs through their
// manifests, everything else by walking configured directories for game
// executables.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"

	"github.com/kapsel-sh/kapsel/internal/library"
)

// Candidate is one discovered install, not yet merged into the library.
type Candidate struct {
	Title       string
	AppID       string
	ExePath     string
	InstallPath string
	Platform    string
}

// minExeSize filters out stub binaries; real game executables are never
// this small.
const minExeSize = 512 * 1024

// ignoredExeTokens marks helper binaries that live next to game
// executables but are never the game itself.
var ignoredExeTokens = []string{
	"unins",
	"setup",
	"install",
	"redist",
	"vcredist",
	"vc_redist",
	"dotnet",
	"dxsetup",
	"dxwebsetup",
	"crash",
	"report",
	"cleanup",
	"updater",
	"patcher",
	"benchmark",
	"config",
	"easyanticheat",
	"ueprereq",
}

// DiskScanner finds games by walking directory roots. Each first-level
// subdirectory of a root is treated as one install.
type DiskScanner struct {
	roots []string
}

func NewDiskScanner(roots []string) *DiskScanner {
	return &DiskScanner{roots: roots}
}

// Scan walks every root and returns one candidate per game directory that
// contains a plausible game executable. Unreadable roots are logged and
// skipped.
func (s *DiskScanner) Scan() []Candidate {
	var found []Candidate

	for _, root := range s.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("Scan root unreadable")
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			dir := filepath.Join(root, entry.Name())
			exe := bestExe(dir, entry.Name())
			if exe == "" {
				continue
			}

			found = append(found, Candidate{
				Title:       titleFromDirName(entry.Name()),
				ExePath:     exe,
				InstallPath: dir,
				Platform:    "other",
			})
		}
	}

	log.Info().Int("count", len(found)).Msg("Disk scan finished")
	return found
}

// bestExe picks the most plausible game executable under dir: helper
// binaries filtered out, a name match with the directory preferred, the
// largest file otherwise.
func bestExe(dir, dirName string) string {
	type exeInfo struct {
		path string
		name string
		size int64
	}

	var exes []exeInfo
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".exe") {
			return nil
		}
		for _, token := range ignoredExeTokens {
			if strings.Contains(name, token) {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() < minExeSize {
			return nil
		}
		exes = append(exes, exeInfo{path: path, name: name, size: info.Size()})
		return nil
	})

	if len(exes) == 0 {
		return ""
	}

	// A binary named like its directory beats everything.
	dirToken := strings.ToLower(strings.Join(strings.FieldsFunc(dirName, func(r rune) bool {
		return r == ' ' || r == '.' || r == '_' || r == '-'
	}), ""))
	for _, exe := range exes {
		base := strings.TrimSuffix(exe.name, ".exe")
		base = strings.ReplaceAll(base, " ", "")
		base = strings.ReplaceAll(base, "_", "")
		base = strings.ReplaceAll(base, "-", "")
		if dirToken != "" && (strings.Contains(dirToken, base) || strings.Contains(base, dirToken)) {
			return exe.path
		}
	}

	best := exes[0]
	for _, exe := range exes[1:] {
		if exe.size > best.size {
			best = exe
		}
	}
	return best.path
}

// titleFromDirName turns a directory name into a display title. Release
// name parsing handles scene-style names; plain names just get their
// separators spaced out.
func titleFromDirName(name string) string {
	release := rls.ParseString(name)
	if release.Title != "" {
		return release.Title
	}

	spaced := strings.NewReplacer(".", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(spaced), " ")
}

// ToGames converts candidates into library entries ready to merge.
func ToGames(candidates []Candidate) []library.Game {
	now := time.Now().UTC()
	games := make([]library.Game, 0, len(candidates))
	for _, c := range candidates {
		games = append(games, library.Game{
			UID:         library.GenerateUID(c.ExePath),
			Title:       c.Title,
			ExePath:     c.ExePath,
			Platform:    c.Platform,
			AppID:       c.AppID,
			InstallPath: c.InstallPath,
			AddedAt:     now,
		})
	}
	return games
}
