// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog/log"
)

// Runtime and redistributable pseudo-apps that show up in every Steam
// library but are not games.
var steamAppBlacklist = map[string]struct{}{
	"228980":  {}, // Steamworks Common Redistributables
	"1070560": {}, // Steam Linux Runtime
	"1391110": {}, // Steam Linux Runtime - Soldier
}

var (
	vdfPathRe       = regexp.MustCompile(`"path"\s+"([^"]+)"`)
	acfAppIDRe      = regexp.MustCompile(`"appid"\s+"(\d+)"`)
	acfNameRe       = regexp.MustCompile(`"name"\s+"([^"]+)"`)
	acfInstallDirRe = regexp.MustCompile(`"installdir"\s+"([^"]+)"`)
)

// SteamScanner reads installed games out of a Steam installation by
// parsing its library index and per-app manifests. The VDF format is
// simple enough that targeted regexes beat a full parser here.
type SteamScanner struct {
	steamDir string
}

func NewSteamScanner(steamDir string) *SteamScanner {
	return &SteamScanner{steamDir: steamDir}
}

// Scan returns one candidate per installed Steam game across all library
// folders. A missing or unreadable Steam directory yields nothing.
func (s *SteamScanner) Scan() []Candidate {
	if s.steamDir == "" {
		return nil
	}

	var found []Candidate
	for _, libraryDir := range s.libraryDirs() {
		manifests, err := filepath.Glob(filepath.Join(libraryDir, "steamapps", "appmanifest_*.acf"))
		if err != nil {
			continue
		}

		for _, manifest := range manifests {
			candidate, ok := s.parseManifest(libraryDir, manifest)
			if !ok {
				continue
			}
			found = append(found, candidate)
		}
	}

	log.Info().Int("count", len(found)).Str("steamDir", s.steamDir).Msg("Steam scan finished")
	return found
}

// libraryDirs returns every Steam library folder, starting with the
// install directory itself.
func (s *SteamScanner) libraryDirs() []string {
	dirs := []string{s.steamDir}

	data, err := os.ReadFile(filepath.Join(s.steamDir, "steamapps", "libraryfolders.vdf"))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("steamDir", s.steamDir).Msg("Steam library index unreadable")
		}
		return dirs
	}

	seen := map[string]struct{}{filepath.Clean(s.steamDir): {}}
	for _, match := range vdfPathRe.FindAllStringSubmatch(string(data), -1) {
		dir := filepath.Clean(match[1])
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	return dirs
}

func (s *SteamScanner) parseManifest(libraryDir, manifest string) (Candidate, bool) {
	data, err := os.ReadFile(manifest)
	if err != nil {
		log.Debug().Err(err).Str("manifest", manifest).Msg("App manifest unreadable")
		return Candidate{}, false
	}

	content := string(data)
	appID := firstGroup(acfAppIDRe, content)
	name := firstGroup(acfNameRe, content)
	if appID == "" || name == "" {
		return Candidate{}, false
	}
	if _, blacklisted := steamAppBlacklist[appID]; blacklisted {
		return Candidate{}, false
	}

	installPath := ""
	if installDir := firstGroup(acfInstallDirRe, content); installDir != "" {
		installPath = filepath.Join(libraryDir, "steamapps", "common", installDir)
	}

	return Candidate{
		Title:       name,
		AppID:       appID,
		ExePath:     "steam://rungameid/" + appID,
		InstallPath: installPath,
		Platform:    "steam",
	}, true
}

func firstGroup(re *regexp.Regexp, content string) string {
	match := re.FindStringSubmatch(content)
	if match == nil {
		return ""
	}
	return match[1]
}
