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
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/lanekeeper/backend/bowling"
)

func newTestHubManager(t *testing.T) (*HubManager, *GameStore, *Registry) {
	t.Helper()
	tempDir := t.TempDir()
	s := storage.New(tempDir, nil)
	gs := NewGameStore(tempDir, s)
	r := NewRegistry(gs, NewPlayerStore(tempDir, s), false)
	t.Cleanup(r.StopGC)
	return NewHubManager(gs, r, NewMetrics()), gs, r
}

func submit(t *testing.T, hm *HubManager, gameId string, req HubRequest) HubResponse {
	t.Helper()
	reply := make(chan HubResponse, 1)
	req.Reply = reply
	if _, err := hm.Submit(gameId, req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case resp := <-reply:
		return resp
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for hub")
	}
	return HubResponse{}
}

func TestHubConcurrency(t *testing.T) {
	hm, gs, r := newTestHubManager(t)

	g := newTestGame(t, "Mario", "Luigi", "Peach", "Toad")
	if err := gs.SaveGame(g); err != nil {
		t.Fatal(err)
	}
	r.UpdateGame(*g)

	// Every player hammers the hub with their own frames. Out-of-turn posts
	// are rejected, so the game only completes if the hub serializes them.
	var wg sync.WaitGroup
	errs := make(chan error, len(g.Players))
	for _, player := range g.Players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			posted := 0
			for posted < bowling.MaxFrames {
				reply := make(chan HubResponse, 1)
				if _, err := hm.Submit(g.ID, HubRequest{
					Type:     ReqTypePostFrame,
					PlayerID: player,
					Shots:    [2]bowling.Shot{1, 1},
					Reply:    reply,
				}); err != nil {
					errs <- err
					return
				}
				resp := <-reply
				switch {
				case resp.Error == nil:
					posted++
				case errors.Is(resp.Error, bowling.ErrWrongTurn):
					time.Sleep(time.Millisecond)
				default:
					errs <- resp.Error
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	final := submit(t, hm, g.ID, HubRequest{Type: ReqTypeHTTPLoad})
	if final.Error != nil {
		t.Fatal(final.Error)
	}
	if !final.Game.Complete || final.Game.Status != StatusComplete {
		t.Errorf("game should be complete: %+v", final.Game.Snapshot)
	}
	for _, p := range g.Players {
		if final.Game.Totals[p] != 20 {
			t.Errorf("total for %s = %d, want 20", p, final.Game.Totals[p])
		}
	}
	if meta, ok := r.getGameMeta(g.ID); !ok || meta.Status != StatusComplete {
		t.Errorf("registry metadata = %+v, %v", meta, ok)
	}
}

func TestHub_RejectedFrameLeavesStateUntouched(t *testing.T) {
	hm, gs, r := newTestHubManager(t)

	g := newTestGame(t, "Mario", "Luigi")
	if err := gs.SaveGame(g); err != nil {
		t.Fatal(err)
	}
	r.UpdateGame(*g)
	mario, luigi := g.Players[0], g.Players[1]

	first := submit(t, hm, g.ID, HubRequest{Type: ReqTypePostFrame, PlayerID: mario, Shots: [2]bowling.Shot{bowling.Strike, bowling.Nil}})
	if first.Error != nil {
		t.Fatal(first.Error)
	}

	for _, tc := range []struct {
		req  HubRequest
		want error
	}{
		{HubRequest{Type: ReqTypePostFrame, PlayerID: mario, Shots: [2]bowling.Shot{1, 1}}, bowling.ErrWrongTurn},
		{HubRequest{Type: ReqTypePostFrame, PlayerID: "toad", Shots: [2]bowling.Shot{1, 1}}, ErrNotParticipant},
		{HubRequest{Type: ReqTypePostFrame, PlayerID: luigi, Shots: [2]bowling.Shot{bowling.NotYet, 1}}, bowling.ErrInvalidShot},
	} {
		if resp := submit(t, hm, g.ID, tc.req); !errors.Is(resp.Error, tc.want) {
			t.Errorf("post %+v = %v, want %v", tc.req, resp.Error, tc.want)
		}
	}

	after := submit(t, hm, g.ID, HubRequest{Type: ReqTypeHTTPLoad})
	if !bytes.Equal(after.Data, first.Data) {
		t.Errorf("rejected frames changed the game:\n%s\n%s", first.Data, after.Data)
	}
}

func TestHub_UnknownGame(t *testing.T) {
	hm, _, _ := newTestHubManager(t)

	resp := submit(t, hm, "10000000-0000-4000-8000-000000000001", HubRequest{Type: ReqTypeHTTPLoad})
	if !errors.Is(resp.Error, os.ErrNotExist) {
		t.Errorf("load unknown game = %v, want not exist", resp.Error)
	}
}

func TestHub_DeleteGame(t *testing.T) {
	hm, gs, r := newTestHubManager(t)

	g := newTestGame(t, "Mario")
	if err := gs.SaveGame(g); err != nil {
		t.Fatal(err)
	}
	r.UpdateGame(*g)

	if resp := submit(t, hm, g.ID, HubRequest{Type: ReqTypeDelete}); resp.Error != nil || resp.Game.Status != StatusDeleted {
		t.Fatalf("delete = %+v", resp)
	}
	if r.GameExists(g.ID) {
		t.Error("registry should forget the deleted game")
	}
	for _, typ := range []string{ReqTypeHTTPLoad, ReqTypeDelete, ReqTypePostFrame} {
		if resp := submit(t, hm, g.ID, HubRequest{Type: typ, PlayerID: g.Players[0]}); !errors.Is(resp.Error, os.ErrNotExist) {
			t.Errorf("%s after delete = %v, want not exist", typ, resp.Error)
		}
	}
}

func TestHub_IdleRemoval(t *testing.T) {
	hm, gs, r := newTestHubManager(t)
	hm.idleTimeout = 20 * time.Millisecond

	g := newTestGame(t, "Mario")
	gs.SaveGame(g)
	r.UpdateGame(*g)

	hub, err := hm.Submit(g.ID, HubRequest{Type: ReqTypeHTTPLoad, Reply: make(chan HubResponse, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if hm.ActiveHubs() != 1 {
		t.Fatalf("ActiveHubs = %d, want 1", hm.ActiveHubs())
	}

	select {
	case <-hub.done:
	case <-time.After(5 * time.Second):
		t.Fatal("idle hub did not stop")
	}
	if hm.ActiveHubs() != 0 {
		t.Errorf("ActiveHubs = %d after idle timeout, want 0", hm.ActiveHubs())
	}

	// The next request starts a new hub.
	if resp := submit(t, hm, g.ID, HubRequest{Type: ReqTypeHTTPLoad}); resp.Error != nil {
		t.Errorf("load after restart: %v", resp.Error)
	}
}

func TestHub_SubmitBusy(t *testing.T) {
	hm, _, _ := newTestHubManager(t)
	gameId := "10000000-0000-4000-8000-000000000002"

	// The hub is registered but never run, so nothing drains its queue.
	hm.mu.Lock()
	stuck := newHub(gameId, hm)
	hm.hubs[gameId] = stuck
	hm.mu.Unlock()

	for i := 0; i < cap(stuck.requests); i++ {
		if _, err := hm.Submit(gameId, HubRequest{Type: ReqTypeHTTPLoad}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if _, err := hm.Submit(gameId, HubRequest{Type: ReqTypeHTTPLoad}); !errors.Is(err, ErrHubBusy) {
		t.Errorf("Submit on full queue = %v, want ErrHubBusy", err)
	}
	if hm.removeIfIdle(stuck) {
		t.Error("a hub with queued requests is not idle")
	}
}
