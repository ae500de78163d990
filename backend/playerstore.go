// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"
)

// Player is a registered bowler. Players are referenced by ID from game rosters.
type Player struct {
	ID            string `json:"id"`
	SchemaVersion int    `json:"schemaVersion"`
	Name          string `json:"name"`
	CreatedAt     int64  `json:"createdAt"`
}

func (p *Player) normalize() {
	if p.SchemaVersion == 0 {
		p.SchemaVersion = CurrentSchemaVersion
	}
}

// PlayerStore manages player persistence to disk.
type PlayerStore struct {
	DataDir string
	storage *storage.Storage
	mu      sync.Map // Stores *sync.Mutex for each playerId to protect writes
}

// NewPlayerStore creates a new PlayerStore.
func NewPlayerStore(dataDir string, s *storage.Storage) *PlayerStore {
	return &PlayerStore{
		DataDir: dataDir,
		storage: s,
	}
}

func playerFilename(playerId string) string {
	return filepath.Join("players", fmt.Sprintf("%s.json", url.PathEscape(playerId)))
}

// CreatePlayer assigns a fresh ID to a new player and saves it.
func (ps *PlayerStore) CreatePlayer(name string) (*Player, error) {
	name, err := normalizePlayerName(name)
	if err != nil {
		return nil, err
	}
	p := &Player{
		ID:            uuid.NewString(),
		SchemaVersion: CurrentSchemaVersion,
		Name:          name,
		CreatedAt:     time.Now().UnixNano(),
	}
	if err := ps.SavePlayer(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePlayer saves the player data atomically.
func (ps *PlayerStore) SavePlayer(p *Player) error {
	m, _ := ps.mu.LoadOrStore(p.ID, &sync.Mutex{})
	mutex := m.(*sync.Mutex)

	mutex.Lock()
	defer mutex.Unlock()

	if err := ps.storage.SaveDataFile(playerFilename(p.ID), p); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// LoadPlayer loads the player data by ID. It returns os.ErrNotExist for
// unknown players.
func (ps *PlayerStore) LoadPlayer(playerId string) (*Player, error) {
	var p Player
	if err := ps.storage.ReadDataFile(playerFilename(playerId), &p); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	if p.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported player schema version %d", p.SchemaVersion)
	}
	p.normalize()
	return &p, nil
}

// ListAllPlayerIDs returns the IDs of all players on disk.
func (ps *PlayerStore) ListAllPlayerIDs() ([]string, error) {
	files, err := os.ReadDir(filepath.Join(ps.DataDir, "players"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read players directory: %w", err)
	}
	ids := make([]string, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListAllPlayers returns an iterator over all players found in the flat players directory.
func (ps *PlayerStore) ListAllPlayers() iter.Seq2[*Player, error] {
	return func(yield func(*Player, error) bool) {
		ids, err := ps.ListAllPlayerIDs()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, id := range ids {
			p, err := ps.LoadPlayer(id)
			if err != nil {
				log.Printf("Warning: could not load player '%s': %v", id, err)
				continue
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}
