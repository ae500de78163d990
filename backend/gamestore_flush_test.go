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
	"os"
	"path/filepath"
	"testing"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"
	"github.com/ttbt-io/lanekeeper/backend/bowling"
)

// newTestGame returns a fresh game record for players with the given names.
func newTestGame(t *testing.T, names ...string) *Game {
	t.Helper()
	roster := make([]RosterEntry, len(names))
	for i, n := range names {
		roster[i] = RosterEntry{ID: uuid.NewString(), Name: n}
	}
	g, err := NewGameRecord(roster)
	if err != nil {
		t.Fatalf("NewGameRecord: %v", err)
	}
	return g
}

// postTestFrame returns a copy of g with one more frame for player.
func postTestFrame(t *testing.T, g *Game, player string, shots [2]bowling.Shot) *Game {
	t.Helper()
	engine, err := g.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if err := engine.PostFrame(player, shots); err != nil {
		t.Fatalf("PostFrame(%s, %v): %v", player, shots, err)
	}
	return g.withEngine(engine)
}

func TestGameStore_Flush(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gamestore_flush_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	st := storage.New(tmpDir, nil)
	gs := NewGameStore(tmpDir, st)

	g := newTestGame(t, "Mario")
	gameId := g.ID

	// 1. Test SaveGameInMemory (forceSync=false)
	if err := gs.SaveGameInMemory(g, false); err != nil {
		t.Fatalf("SaveGameInMemory failed: %v", err)
	}

	// Verify Cache has it
	if _, ok := gs.cache.Load(gameId); !ok {
		t.Error("Cache should contain game")
	}

	// Verify Dirty
	if gs.DirtyCount() != 1 {
		t.Errorf("DirtyCount = %d, want 1", gs.DirtyCount())
	}

	// Verify Disk DOES NOT have it
	path := filepath.Join(tmpDir, "games", gameId+".json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("File should not exist on disk yet")
	}

	// 2. Test Flush
	if err := gs.Flush(gameId); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("File should exist on disk after flush")
	}
	if gs.DirtyCount() != 0 {
		t.Error("Game should not be dirty after flush")
	}

	// Flushing a clean game is a no-op.
	if err := gs.Flush(gameId); err != nil {
		t.Errorf("Flush of clean game: %v", err)
	}

	// 3. Test FlushAll
	g2 := newTestGame(t, "Luigi")
	g3 := newTestGame(t, "Peach")
	gs.SaveGameInMemory(g2, false)
	gs.SaveGameInMemory(g3, false)

	if err := gs.FlushAll(); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}
	for _, id := range []string{g2.ID, g3.ID} {
		if _, err := os.Stat(filepath.Join(tmpDir, "games", id+".json")); os.IsNotExist(err) {
			t.Errorf("Game %s should exist on disk", id)
		}
	}
	if gs.DirtyCount() != 0 {
		t.Errorf("DirtyCount = %d after FlushAll", gs.DirtyCount())
	}
}

func TestGameStore_SaveGame_ClearsDirty(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "gamestore_flush_test_2")
	defer os.RemoveAll(tmpDir)
	st := storage.New(tmpDir, nil)
	gs := NewGameStore(tmpDir, st)

	g := newTestGame(t, "Mario")

	gs.SaveGameInMemory(g, false)
	gs.dirtyMu.Lock()
	if !gs.dirty[g.ID] {
		t.Fatal("Should be dirty")
	}
	gs.dirtyMu.Unlock()

	if err := gs.SaveGame(g); err != nil {
		t.Fatal(err)
	}

	gs.dirtyMu.Lock()
	if gs.dirty[g.ID] {
		t.Error("SaveGame should clear dirty flag")
	}
	gs.dirtyMu.Unlock()
}

func TestGameStore_ForceSyncWritesThrough(t *testing.T) {
	tmpDir := t.TempDir()
	gs := NewGameStore(tmpDir, storage.New(tmpDir, nil))

	g := newTestGame(t, "Mario")
	if err := gs.SaveGameInMemory(g, true); err != nil {
		t.Fatal(err)
	}
	if gs.DirtyCount() != 0 {
		t.Error("forceSync should not leave the game dirty")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "games", g.ID+".json")); err != nil {
		t.Errorf("game file: %v", err)
	}
}

func TestGameStore_InMemoryStateSurvivesFlush(t *testing.T) {
	tmpDir := t.TempDir()
	st := storage.New(tmpDir, nil)
	gs := NewGameStore(tmpDir, st)

	g := newTestGame(t, "Mario")
	if err := gs.SaveGame(g); err != nil {
		t.Fatal(err)
	}
	mario := g.Players[0]
	next := postTestFrame(t, g, mario, [2]bowling.Shot{bowling.Strike, bowling.Nil})
	if err := gs.SaveGameInMemory(next, false); err != nil {
		t.Fatal(err)
	}

	loaded, err := gs.LoadGame(g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Started || len(loaded.Frames[0].Frames) != 1 {
		t.Fatalf("LoadGame returned stale state: %+v", loaded.Snapshot)
	}

	if err := gs.FlushAll(); err != nil {
		t.Fatal(err)
	}

	// A fresh store only sees the disk.
	reopened, err := NewGameStore(tmpDir, st).LoadGame(g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Started || len(reopened.Frames[0].Frames) != 1 {
		t.Errorf("flushed state = %+v", reopened.Snapshot)
	}
	engine, err := reopened.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if frames := engine.Frames(mario); len(frames) != 1 || frames[0].Shots[0] != bowling.Strike {
		t.Errorf("restored frames = %+v", frames)
	}
}
