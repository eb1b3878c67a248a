// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store reads and writes the inventory file. Every Load hits the disk;
// the file is shared with external editors and nothing here may assume it
// still looks like the last Save.
type Store struct {
	path string
	mu   sync.Mutex
}

type inventoryFile struct {
	Games []Game `json:"games"`
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the inventory file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the inventory from disk. A missing file is an empty library,
// not an error.
func (s *Store) Load() ([]Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library file %s: %w", s.path, err)
	}

	var file inventoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse library file %s: %w", s.path, err)
	}

	return file.Games, nil
}

// Save writes the inventory atomically via a sibling temp file.
func (s *Store) Save(games []Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create library directory: %w", err)
	}

	data, err := json.MarshalIndent(inventoryFile{Games: games}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write library temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace library file: %w", err)
	}

	return nil
}

// FindByUID loads the inventory and returns the matching game, or nil.
func (s *Store) FindByUID(uid string) (*Game, error) {
	games, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range games {
		if games[i].UID == uid {
			return &games[i], nil
		}
	}
	return nil, nil
}

// Merge folds freshly discovered games into the inventory, keyed by UID.
// Existing entries keep their user-owned fields; new ones are appended.
// Returns the merged inventory and the number of additions.
func (s *Store) Merge(found []Game) ([]Game, int, error) {
	games, err := s.Load()
	if err != nil {
		return nil, 0, err
	}

	byUID := make(map[string]int, len(games))
	for i, game := range games {
		byUID[game.UID] = i
	}

	added := 0
	for _, game := range found {
		if idx, ok := byUID[game.UID]; ok {
			// Refresh discovery-owned fields only.
			games[idx].ExePath = game.ExePath
			games[idx].InstallPath = game.InstallPath
			games[idx].Platform = game.Platform
			if game.AppID != "" {
				games[idx].AppID = game.AppID
			}
			continue
		}
		games = append(games, game)
		added++
	}

	if err := s.Save(games); err != nil {
		return nil, 0, err
	}
	return games, added, nil
}
