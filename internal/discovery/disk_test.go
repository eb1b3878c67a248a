// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExe(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0755))
}

func TestDiskScan(t *testing.T) {
	root := t.TempDir()

	// A normal install: game binary plus helper noise.
	writeExe(t, filepath.Join(root, "Hollow Knight", "hollow_knight.exe"), minExeSize+1)
	writeExe(t, filepath.Join(root, "Hollow Knight", "UnityCrashHandler64.exe"), minExeSize+1)
	writeExe(t, filepath.Join(root, "Hollow Knight", "unins000.exe"), minExeSize+1)

	// A scene-style directory name.
	writeExe(t, filepath.Join(root, "Celeste.v1.4.0.0-GOG", "Celeste.exe"), minExeSize+1)

	// Only stub binaries: not a game.
	writeExe(t, filepath.Join(root, "Redist Stuff", "tiny.exe"), 1024)

	// Loose files at the root level are ignored.
	writeExe(t, filepath.Join(root, "stray.exe"), minExeSize+1)

	found := NewDiskScanner([]string{root}).Scan()
	require.Len(t, found, 2)

	byTitle := map[string]Candidate{}
	for _, c := range found {
		byTitle[c.Title] = c
	}

	hollow, ok := byTitle["Hollow Knight"]
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "Hollow Knight", "hollow_knight.exe"), hollow.ExePath)
	assert.Equal(t, "other", hollow.Platform)
	assert.Empty(t, hollow.AppID)

	celeste, ok := byTitle["Celeste"]
	require.True(t, ok, "release-style directory name must parse to a clean title")
	assert.Equal(t, filepath.Join(root, "Celeste.v1.4.0.0-GOG", "Celeste.exe"), celeste.ExePath)
}

func TestBestExePrefersDirectoryNameMatch(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Factorio")

	// The bigger binary loses to the one named like the install.
	writeExe(t, filepath.Join(dir, "factorio.exe"), minExeSize+1)
	writeExe(t, filepath.Join(dir, "mapgen.exe"), minExeSize*4)

	assert.Equal(t, filepath.Join(dir, "factorio.exe"), bestExe(dir, "Factorio"))
}

func TestBestExeFallsBackToLargest(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Some Game Pack")

	writeExe(t, filepath.Join(dir, "engine.exe"), minExeSize+1)
	writeExe(t, filepath.Join(dir, "bin", "client.exe"), minExeSize*8)

	assert.Equal(t, filepath.Join(dir, "bin", "client.exe"), bestExe(dir, "Some Game Pack"))
}

func TestDiskScanUnreadableRoot(t *testing.T) {
	found := NewDiskScanner([]string{filepath.Join(t.TempDir(), "missing")}).Scan()
	assert.Empty(t, found)
}

func TestToGames(t *testing.T) {
	games := ToGames([]Candidate{
		{Title: "Portal", AppID: "400", ExePath: "steam://rungameid/400", Platform: "steam"},
	})
	require.Len(t, games, 1)

	assert.Equal(t, "Portal", games[0].Title)
	assert.Equal(t, "400", games[0].AppID)
	assert.Len(t, games[0].UID, 12)
	assert.False(t, games[0].AddedAt.IsZero())
}
