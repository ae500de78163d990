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
	"cmp"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ttbt-io/lanekeeper/backend/search"
)

// ErrUnknownPlayer is returned when a game is created with player IDs that
// do not resolve to registered players.
var ErrUnknownPlayer = errors.New("unknown player")

// Registry indexes games and players for listing and lookup without
// scanning all files on every request.
type Registry struct {
	gameStore   *GameStore
	playerStore *PlayerStore

	mu        sync.RWMutex
	games     map[string]bool // all known games; false for tombstones
	playerIDs map[string]bool
	gameCount int // number of true entries in games

	// Metadata caches. gameMetadata also caches tombstones (Status="deleted").
	gameMetadata *lru.Cache[string, GameMetadata]
	players      *lru.Cache[string, Player]

	// GC
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a new Registry.
// If forceRebuild is true, it reads the metadata of every game to warm the
// cache and purge expired tombstones. Otherwise it only lists file names.
func NewRegistry(gs *GameStore, ps *PlayerStore, forceRebuild bool) *Registry {
	gmCache, _ := lru.New[string, GameMetadata](5000)
	pCache, _ := lru.New[string, Player](5000)

	r := &Registry{
		gameStore:    gs,
		playerStore:  ps,
		games:        make(map[string]bool),
		playerIDs:    make(map[string]bool),
		gameMetadata: gmCache,
		players:      pCache,
		stopChan:     make(chan struct{}),
	}

	if forceRebuild {
		r.Rebuild()
	} else {
		r.RefreshCounts()
		log.Printf("Registry: Fast startup. Found %d games, %d players.", r.CountTotalGames(), r.CountTotalPlayers())
	}
	return r
}

// StartGC starts the background tombstone garbage collector.
func (r *Registry) StartGC() {
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.PurgeOldTombstones()
			case <-r.stopChan:
				return
			}
		}
	}()
}

// StopGC stops the background tombstone garbage collector.
func (r *Registry) StopGC() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func expired(m GameMetadata, cutoff int64) bool {
	return m.Status == StatusDeleted && m.DeletedAt > 0 && m.DeletedAt < cutoff
}

// PurgeOldTombstones permanently deletes expired tombstones from disk.
func (r *Registry) PurgeOldTombstones() int {
	log.Println("Registry: Garbage collection of expired tombstones started...")
	cutoff := time.Now().Add(-tombstoneTTL).UnixNano()

	var purged int
	for g, err := range r.gameStore.ListAllGameMetadata() {
		if err != nil || !expired(g, cutoff) {
			continue
		}
		if err := r.gameStore.PurgeGame(g.ID); err != nil {
			log.Printf("Registry: could not purge game %s: %v", g.ID, err)
			continue
		}
		r.forgetGame(g.ID)
		purged++
	}
	if purged > 0 {
		log.Printf("Registry: GC complete. Purged %d games.", purged)
	}
	return purged
}

func (r *Registry) forgetGame(id string) {
	r.gameMetadata.Remove(id)
	r.mu.Lock()
	if r.games[id] {
		r.gameCount--
	}
	delete(r.games, id)
	r.mu.Unlock()
}

// setGame records whether a game is live and keeps gameCount in step.
func (r *Registry) setGame(id string, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, known := r.games[id]
	switch {
	case live && !prev:
		r.gameCount++
	case !live && known && prev:
		r.gameCount--
	}
	r.games[id] = live
}

// RefreshCounts reloads the ID sets by listing files. Every game file counts
// as live until its metadata says otherwise.
func (r *Registry) RefreshCounts() {
	gameIDs, err := r.gameStore.ListAllGameIDs()
	if err != nil {
		log.Printf("Registry: Error listing games: %v", err)
	}
	playerIDs, err := r.playerStore.ListAllPlayerIDs()
	if err != nil {
		log.Printf("Registry: Error listing players: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = make(map[string]bool, len(gameIDs))
	for _, id := range gameIDs {
		r.games[id] = true
	}
	r.gameCount = len(gameIDs)
	r.playerIDs = make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		r.playerIDs[id] = true
	}
}

// Rebuild reconstructs the entire index by scanning the underlying stores.
func (r *Registry) Rebuild() {
	log.Println("Registry: Rebuild started...")
	cutoff := time.Now().Add(-tombstoneTTL).UnixNano()

	games := make(map[string]bool)
	live := 0
	for g, err := range r.gameStore.ListAllGameMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing games: %v", err)
			break
		}
		if expired(g, cutoff) {
			if err := r.gameStore.PurgeGame(g.ID); err != nil {
				log.Printf("Registry: could not purge game %s: %v", g.ID, err)
			}
			continue
		}
		r.gameMetadata.Add(g.ID, g)
		games[g.ID] = g.Status != StatusDeleted
		if games[g.ID] {
			live++
		}
	}

	playerIDs := make(map[string]bool)
	for p, err := range r.playerStore.ListAllPlayers() {
		if err != nil {
			log.Printf("Registry: Error listing players: %v", err)
			break
		}
		r.players.Add(p.ID, *p)
		playerIDs[p.ID] = true
	}

	r.mu.Lock()
	r.games = games
	r.gameCount = live
	r.playerIDs = playerIDs
	r.mu.Unlock()

	log.Printf("Registry: Rebuild complete. Indexed %d games, %d players.", live, len(playerIDs))
}

// UpdateGame indexes a new or changed game. Tombstones are indexed too.
func (r *Registry) UpdateGame(g Game) {
	m := *g.Metadata()
	r.gameMetadata.Add(g.ID, m)
	r.setGame(g.ID, m.Status != StatusDeleted)
}

// UpdatePlayer indexes a new or changed player.
func (r *Registry) UpdatePlayer(p Player) {
	r.players.Add(p.ID, p)
	r.mu.Lock()
	r.playerIDs[p.ID] = true
	r.mu.Unlock()
}

func (r *Registry) getGameMeta(id string) (GameMetadata, bool) {
	if m, ok := r.gameMetadata.Get(id); ok {
		return m, true
	}
	g, err := r.gameStore.LoadGame(id)
	if err != nil {
		return GameMetadata{}, false
	}
	m := *g.Metadata()
	r.gameMetadata.Add(id, m)
	return m, true
}

// GetPlayer returns a player from the cache, loading it on a miss.
func (r *Registry) GetPlayer(id string) (Player, error) {
	if p, ok := r.players.Get(id); ok {
		return p, nil
	}
	p, err := r.playerStore.LoadPlayer(id)
	if err != nil {
		return Player{}, err
	}
	r.players.Add(id, *p)
	return *p, nil
}

// LookupPlayer is GetPlayer for IDs taken from a request. Malformed and
// unregistered IDs are both reported as ErrUnknownPlayer.
func (r *Registry) LookupPlayer(id string) (Player, error) {
	if !isValidUUID(id) {
		return Player{}, fmt.Errorf("%w: %q", ErrUnknownPlayer, id)
	}
	p, err := r.GetPlayer(id)
	if os.IsNotExist(err) {
		return Player{}, fmt.Errorf("%w: unable to locate player %s", ErrUnknownPlayer, id)
	}
	return p, err
}

// ResolvePlayers turns player IDs into roster entries. Every ID that does
// not name a registered player is reported in the returned error.
func (r *Registry) ResolvePlayers(ids []string) ([]RosterEntry, error) {
	roster := make([]RosterEntry, 0, len(ids))
	var missing []string
	for _, id := range ids {
		p, err := r.GetPlayer(id)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			missing = append(missing, id)
			continue
		}
		roster = append(roster, RosterEntry{ID: p.ID, Name: p.Name})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, strings.Join(missing, ", "))
	}
	return roster, nil
}

func (r *Registry) GameExists(id string) bool {
	m, ok := r.getGameMeta(id)
	return ok && m.Status != StatusDeleted
}

func (r *Registry) CountTotalGames() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gameCount
}

func (r *Registry) CountTotalPlayers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.playerIDs)
}

// ListGames returns the IDs of live games matching query, sorted by
// "created" (default, newest first), "updated" or "frame".
func (r *Registry) ListGames(sortBy, order, query string) []string {
	if sortBy == "" {
		sortBy = "created"
	}
	if order == "" {
		order = "desc"
		if sortBy == "frame" {
			order = "asc"
		}
	}
	q := search.Parse(query)

	r.mu.RLock()
	all := make([]string, 0, len(r.games))
	for id, live := range r.games {
		if live {
			all = append(all, id)
		}
	}
	r.mu.RUnlock()

	metas := make(map[string]GameMetadata, len(all))
	ids := make([]string, 0, len(all))
	for _, id := range all {
		m, ok := r.getGameMeta(id)
		if !ok || m.Status == StatusDeleted || !matchesGame(m, q) {
			continue
		}
		metas[id] = m
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b string) int {
		m1, m2 := metas[a], metas[b]
		var c int
		switch sortBy {
		case "updated":
			c = cmp.Compare(m1.UpdatedAt, m2.UpdatedAt)
		case "frame":
			c = cmp.Compare(m1.CurrentFrame, m2.CurrentFrame)
		default:
			c = cmp.Compare(m1.CreatedAt, m2.CreatedAt)
		}
		if c == 0 {
			c = strings.Compare(a, b)
		}
		if order == "desc" {
			return -c
		}
		return c
	})
	return ids
}

// ListPlayers returns the players whose names match query, sorted by name.
func (r *Registry) ListPlayers(order, query string) []Player {
	q := search.Parse(query)

	r.mu.RLock()
	all := make([]string, 0, len(r.playerIDs))
	for id := range r.playerIDs {
		all = append(all, id)
	}
	r.mu.RUnlock()

	players := make([]Player, 0, len(all))
	for _, id := range all {
		p, err := r.GetPlayer(id)
		if err != nil || !matchesPlayer(p, q) {
			continue
		}
		players = append(players, p)
	}

	slices.SortFunc(players, func(a, b Player) int {
		c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order == "desc" {
			return -c
		}
		return c
	})
	return players
}

// --- Search Helpers ---

func containsLower(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matchesGame(m GameMetadata, q search.Query) bool {
	anyName := func(token string) bool {
		for _, n := range m.PlayerNames {
			if containsLower(n, token) {
				return true
			}
		}
		return false
	}
	for _, token := range q.FreeText {
		if !anyName(token) {
			return false
		}
	}
	for _, f := range q.Filters {
		switch f.Key {
		case "status":
			if !strings.EqualFold(m.Status, f.Value) {
				return false
			}
		case "player":
			if !anyName(f.Value) && !slices.Contains(m.PlayerIDs, f.Value) {
				return false
			}
		case "frame":
			if !f.MatchInt(m.CurrentFrame) {
				return false
			}
		case "players":
			if !f.MatchInt(len(m.PlayerIDs)) {
				return false
			}
		}
	}
	return true
}

func matchesPlayer(p Player, q search.Query) bool {
	for _, token := range q.FreeText {
		if !containsLower(p.Name, token) {
			return false
		}
	}
	for _, f := range q.Filters {
		if f.Key == "name" && !f.MatchText(p.Name) {
			return false
		}
	}
	return true
}
