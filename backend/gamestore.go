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
	"encoding/json"
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
	"github.com/ttbt-io/lanekeeper/backend/bowling"
)

// RosterEntry names a player taking part in a game.
type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Game is a game record as stored on disk and returned by the API. The
// scoring state is the embedded snapshot; everything else is bookkeeping.
type Game struct {
	ID            string        `json:"id"`
	SchemaVersion int           `json:"schemaVersion"`
	Roster        []RosterEntry `json:"roster"`
	bowling.Snapshot
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	// DeletedAt is the timestamp (Unix Nano) when the game was deleted.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// NewGameRecord starts a record for a fresh game. The roster order is the turn order.
func NewGameRecord(roster []RosterEntry) (*Game, error) {
	ids := make([]string, len(roster))
	for i, e := range roster {
		ids[i] = e.ID
	}
	engine, err := bowling.NewGame(ids)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixNano()
	return &Game{
		ID:            uuid.NewString(),
		SchemaVersion: CurrentSchemaVersion,
		Roster:        append([]RosterEntry(nil), roster...),
		Snapshot:      engine.Snapshot(),
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (g *Game) normalize() {
	if g.SchemaVersion == 0 {
		g.SchemaVersion = CurrentSchemaVersion
	}
	if g.Roster == nil {
		g.Roster = make([]RosterEntry, 0)
	}
	if g.Status == "" {
		g.Status = StatusActive
	}
}

// Engine rebuilds the scoring engine from the record.
func (g *Game) Engine() (*bowling.Game, error) {
	return bowling.Restore(g.Snapshot)
}

// withEngine returns a copy of the record carrying the engine's state.
func (g *Game) withEngine(engine *bowling.Game) *Game {
	clone := *g
	clone.Snapshot = engine.Snapshot()
	clone.UpdatedAt = time.Now().UnixNano()
	if engine.Complete() {
		clone.Status = StatusComplete
	}
	return &clone
}

// HasPlayer reports whether playerId is on the roster.
func (g *Game) HasPlayer(playerId string) bool {
	for _, e := range g.Roster {
		if e.ID == playerId {
			return true
		}
	}
	return false
}

// Names maps player IDs to display names.
func (g *Game) Names() map[string]string {
	names := make(map[string]string, len(g.Roster))
	for _, e := range g.Roster {
		names[e.ID] = e.Name
	}
	return names
}

// Metadata returns the fields needed for indexing.
func (g *Game) Metadata() *GameMetadata {
	m := &GameMetadata{
		ID:        g.ID,
		Status:    g.Status,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
		DeletedAt: g.DeletedAt,
	}
	for _, e := range g.Roster {
		m.PlayerIDs = append(m.PlayerIDs, e.ID)
		m.PlayerNames = append(m.PlayerNames, e.Name)
	}
	if g.CurrentFrame != nil {
		m.CurrentFrame = *g.CurrentFrame
	}
	return m
}

// GameMetadata contains only the fields needed for indexing.
type GameMetadata struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	PlayerIDs    []string `json:"playerIds"`
	PlayerNames  []string `json:"playerNames"`
	CurrentFrame int      `json:"currentFrame"` // 0 until the game starts
	CreatedAt    int64    `json:"createdAt"`
	UpdatedAt    int64    `json:"updatedAt"`
	DeletedAt    int64    `json:"deletedAt"`
}

// GameStore manages game persistence to disk.
type GameStore struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // Stores *sync.RWMutex for each gameId to protect writes and reads
	cache   sync.Map // Stores the latest JSON for each gameId

	dirtyMu sync.Mutex
	dirty   map[string]bool
}

// NewGameStore creates a new GameStore.
func NewGameStore(dataDir string, s *storage.Storage) *GameStore {
	return &GameStore{
		DataDir: dataDir,
		storage: s,
		dirty:   make(map[string]bool),
	}
}

func gameFilenames(gameId string) (data, meta string) {
	encoded := url.PathEscape(gameId)
	return filepath.Join("games", fmt.Sprintf("%s.json", encoded)),
		filepath.Join("games", fmt.Sprintf("%s.meta.json", encoded))
}

func (gs *GameStore) lock(gameId string) *sync.RWMutex {
	m, _ := gs.mu.LoadOrStore(gameId, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

// SaveGame saves the game data atomically, followed by its metadata sidecar.
func (gs *GameStore) SaveGame(game *Game) error {
	mutex := gs.lock(game.ID)
	mutex.Lock()
	defer mutex.Unlock()
	return gs.saveLocked(game)
}

func (gs *GameStore) saveLocked(game *Game) error {
	filename, metaFilename := gameFilenames(game.ID)
	if err := gs.storage.SaveDataFile(filename, game); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	if err := gs.storage.SaveDataFile(metaFilename, game.Metadata()); err != nil {
		// The main file is authoritative; listing falls back to it.
		log.Printf("Warning: Failed to save metadata sidecar for game %s: %v", game.ID, err)
	}

	if jsonBytes, err := json.Marshal(game); err == nil {
		gs.cache.Store(game.ID, jsonBytes)
	}

	gs.dirtyMu.Lock()
	delete(gs.dirty, game.ID)
	gs.dirtyMu.Unlock()
	return nil
}

// SaveGameInMemory updates the in-memory cache and marks the game as dirty.
// If forceSync is true, it writes to disk immediately (behaving like SaveGame).
func (gs *GameStore) SaveGameInMemory(game *Game, forceSync bool) error {
	if forceSync {
		return gs.SaveGame(game)
	}
	jsonBytes, err := json.Marshal(game)
	if err != nil {
		return err
	}

	mutex := gs.lock(game.ID)
	mutex.Lock()
	defer mutex.Unlock()

	gs.cache.Store(game.ID, jsonBytes)
	gs.dirtyMu.Lock()
	gs.dirty[game.ID] = true
	gs.dirtyMu.Unlock()
	return nil
}

// Flush persists a specific game to disk if it is dirty.
func (gs *GameStore) Flush(gameId string) error {
	mutex := gs.lock(gameId)
	mutex.Lock()
	defer mutex.Unlock()

	gs.dirtyMu.Lock()
	dirty := gs.dirty[gameId]
	gs.dirtyMu.Unlock()
	if !dirty {
		return nil
	}

	val, ok := gs.cache.Load(gameId)
	if !ok {
		gs.dirtyMu.Lock()
		delete(gs.dirty, gameId)
		gs.dirtyMu.Unlock()
		return fmt.Errorf("game %s marked dirty but not found in cache", gameId)
	}

	var g Game
	if err := json.Unmarshal(val.([]byte), &g); err != nil {
		return fmt.Errorf("failed to unmarshal game from cache for flush: %w", err)
	}
	return gs.saveLocked(&g)
}

// FlushAll persists all dirty games to disk.
func (gs *GameStore) FlushAll() error {
	gs.dirtyMu.Lock()
	dirtyIds := make([]string, 0, len(gs.dirty))
	for id := range gs.dirty {
		dirtyIds = append(dirtyIds, id)
	}
	gs.dirtyMu.Unlock()

	for _, id := range dirtyIds {
		if err := gs.Flush(id); err != nil {
			return fmt.Errorf("failed to flush game %s: %w", id, err)
		}
	}
	return nil
}

// DirtyCount is the number of games waiting to be flushed.
func (gs *GameStore) DirtyCount() int {
	gs.dirtyMu.Lock()
	defer gs.dirtyMu.Unlock()
	return len(gs.dirty)
}

// LoadGame loads the game data by game ID. It returns os.ErrNotExist for
// unknown games. Tombstones are returned as is.
func (gs *GameStore) LoadGame(gameId string) (*Game, error) {
	if g, ok := gs.cached(gameId); ok {
		if gs.Debug {
			log.Printf("[CACHE] Hit for game %s", gameId)
		}
		return g, nil
	}
	if gs.Debug {
		log.Printf("[CACHE] Miss for game %s", gameId)
	}

	mutex := gs.lock(gameId)
	mutex.RLock()
	defer mutex.RUnlock()

	// A save may have landed while we waited for the lock.
	if g, ok := gs.cached(gameId); ok {
		return g, nil
	}

	filename, _ := gameFilenames(gameId)
	var g Game
	if err := gs.storage.ReadDataFile(filename, &g); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	if g.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported game schema version %d", g.SchemaVersion)
	}
	g.normalize()

	if jsonBytes, err := json.Marshal(&g); err == nil {
		gs.cache.LoadOrStore(gameId, jsonBytes)
	}
	return &g, nil
}

func (gs *GameStore) cached(gameId string) (*Game, bool) {
	val, ok := gs.cache.Load(gameId)
	if !ok {
		return nil, false
	}
	var g Game
	if err := json.Unmarshal(val.([]byte), &g); err != nil {
		gs.cache.Delete(gameId)
		return nil, false
	}
	g.normalize()
	return &g, true
}

// DeleteGame deletes a specific game by overwriting it with a tombstone.
func (gs *GameStore) DeleteGame(gameId string) (*Game, error) {
	g, err := gs.LoadGame(gameId)
	if err != nil {
		return nil, err
	}

	tombstone := &Game{
		ID:            gameId,
		SchemaVersion: CurrentSchemaVersion,
		Roster:        g.Roster,
		Status:        StatusDeleted,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
		DeletedAt:     time.Now().UnixNano(),
	}
	if err := gs.SaveGame(tombstone); err != nil {
		return nil, fmt.Errorf("tombstone: %w", err)
	}
	return tombstone, nil
}

// PurgeGame permanently deletes the game file.
func (gs *GameStore) PurgeGame(gameId string) error {
	mutex := gs.lock(gameId)
	mutex.Lock()
	defer mutex.Unlock()

	gs.cache.Delete(gameId)
	gs.dirtyMu.Lock()
	delete(gs.dirty, gameId)
	gs.dirtyMu.Unlock()

	filename, metaFilename := gameFilenames(gameId)
	if err := os.Remove(filepath.Join(gs.DataDir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not purge game file: %w", err)
	}
	if err := os.Remove(filepath.Join(gs.DataDir, metaFilename)); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not purge meta file for game %s: %v", gameId, err)
	}
	return nil
}

// ListAllGameIDs returns the IDs of all games on disk or waiting to be flushed.
func (gs *GameStore) ListAllGameIDs() ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	files, err := os.ReadDir(filepath.Join(gs.DataDir, "games"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not read games directory: %w", err)
	}
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".meta.json") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	gs.dirtyMu.Lock()
	for id := range gs.dirty {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	gs.dirtyMu.Unlock()
	return ids, nil
}

// ListAllGameMetadata returns metadata for all games. Dirty games are read
// from the cache; the rest come from their sidecars, falling back to the main
// file when a sidecar is missing or unreadable.
func (gs *GameStore) ListAllGameMetadata() iter.Seq2[GameMetadata, error] {
	return func(yield func(GameMetadata, error) bool) {
		ids, err := gs.ListAllGameIDs()
		if err != nil {
			yield(GameMetadata{}, err)
			return
		}

		gs.dirtyMu.Lock()
		dirty := make(map[string]bool, len(gs.dirty))
		for id := range gs.dirty {
			dirty[id] = true
		}
		gs.dirtyMu.Unlock()

		for _, id := range ids {
			if !dirty[id] {
				_, metaFilename := gameFilenames(id)
				var meta GameMetadata
				if err := gs.storage.ReadDataFile(metaFilename, &meta); err == nil {
					if !yield(meta, nil) {
						return
					}
					continue
				} else if !os.IsNotExist(err) {
					log.Printf("Registry Warning: failed to load metadata for %s: %v. Falling back to main file.", id, err)
				}
			}

			g, err := gs.LoadGame(id)
			if err != nil {
				log.Printf("Registry Warning: failed to load game %s: %v", id, err)
				continue
			}
			if !yield(*g.Metadata(), nil) {
				return
			}
		}
	}
}
