// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, libraryDir, appID, name, installDir string) {
	t.Helper()
	dir := filepath.Join(libraryDir, "steamapps")
	require.NoError(t, os.MkdirAll(dir, 0755))

	content := fmt.Sprintf(`"AppState"
{
	"appid"		"%s"
	"name"		"%s"
	"StateFlags"		"4"
	"installdir"		"%s"
}
`, appID, name, installDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appmanifest_"+appID+".acf"), []byte(content), 0644))
}

func TestSteamScan(t *testing.T) {
	steamDir := t.TempDir()
	extraLibrary := t.TempDir()

	index := fmt.Sprintf(`"libraryfolders"
{
	"0"
	{
		"path"		"%s"
	}
	"1"
	{
		"path"		"%s"
	}
}
`, steamDir, extraLibrary)
	require.NoError(t, os.MkdirAll(filepath.Join(steamDir, "steamapps"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(steamDir, "steamapps", "libraryfolders.vdf"), []byte(index), 0644))

	writeManifest(t, steamDir, "400", "Portal", "Portal")
	writeManifest(t, steamDir, "228980", "Steamworks Common Redistributables", "Steamworks Shared")
	writeManifest(t, extraLibrary, "1145360", "Hades", "Hades")

	found := NewSteamScanner(steamDir).Scan()
	require.Len(t, found, 2, "blacklisted runtime apps must be skipped")

	byAppID := map[string]Candidate{}
	for _, c := range found {
		byAppID[c.AppID] = c
	}

	portal := byAppID["400"]
	assert.Equal(t, "Portal", portal.Title)
	assert.Equal(t, "steam://rungameid/400", portal.ExePath)
	assert.Equal(t, "steam", portal.Platform)
	assert.Equal(t, filepath.Join(steamDir, "steamapps", "common", "Portal"), portal.InstallPath)

	hades := byAppID["1145360"]
	assert.Equal(t, "Hades", hades.Title)
	assert.Equal(t, filepath.Join(extraLibrary, "steamapps", "common", "Hades"), hades.InstallPath)
}

func TestSteamScanWithoutLibraryIndex(t *testing.T) {
	steamDir := t.TempDir()
	writeManifest(t, steamDir, "70", "Half-Life", "Half-Life")

	found := NewSteamScanner(steamDir).Scan()
	require.Len(t, found, 1)
	assert.Equal(t, "Half-Life", found[0].Title)
}

func TestSteamScanEmptyDir(t *testing.T) {
	assert.Empty(t, NewSteamScanner("").Scan())
	assert.Empty(t, NewSteamScanner(filepath.Join(t.TempDir(), "missing")).Scan())
}
