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

package bowling

import (
	"errors"
	"fmt"
)

// PlayerFrames is one player's ledger in a Snapshot.
type PlayerFrames struct {
	Player string  `json:"pid"`
	Frames []Frame `json:"frames"`
}

// Snapshot is the serializable state of a Game. CurrentFrame and
// CurrentPlayer are nil until the game starts. Turn is the scheduler cursor,
// the index of the player who follows CurrentPlayer.
type Snapshot struct {
	Players       []string       `json:"players"`
	CurrentFrame  *int           `json:"current_frame"`
	Started       bool           `json:"started"`
	Complete      bool           `json:"complete"`
	CurrentPlayer *string        `json:"current_player"`
	Frames        []PlayerFrames `json:"frames"`
	Totals        map[string]int `json:"totals"`
	Turn          int            `json:"turn"`
}

// Snapshot returns a deep copy of the game state. Ledgers are listed in turn
// order.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Players:  g.Players(),
		Started:  g.started,
		Complete: g.complete,
		Frames:   make([]PlayerFrames, 0, len(g.players)),
		Totals:   g.Totals(),
		Turn:     g.turns.Cursor(),
	}
	if g.started {
		frame, player := g.currentFrame, g.currentPlayer
		s.CurrentFrame = &frame
		s.CurrentPlayer = &player
	}
	for _, p := range g.players {
		s.Frames = append(s.Frames, PlayerFrames{Player: p, Frames: g.Frames(p)})
	}
	return s
}

// Restore rebuilds a game from a snapshot. Totals are recomputed from the
// ledgers; the snapshot's own totals are ignored.
func Restore(s Snapshot) (*Game, error) {
	g, err := NewGame(s.Players)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	n := len(g.players)
	if s.Turn < 0 || s.Turn >= n {
		return nil, corrupt("turn %d out of range", s.Turn)
	}
	if s.Complete && !s.Started {
		return nil, corrupt("complete but not started")
	}
	if s.Started {
		if s.CurrentFrame == nil || s.CurrentPlayer == nil {
			return nil, corrupt("started without current frame or player")
		}
		if f := *s.CurrentFrame; f < 1 || f > MaxFrames {
			return nil, corrupt("current frame %d out of range", f)
		}
		if want := g.players[(s.Turn+n-1)%n]; *s.CurrentPlayer != want {
			return nil, corrupt("current player %q does not match turn %d", *s.CurrentPlayer, s.Turn)
		}
		g.started = true
		g.complete = s.Complete
		g.currentFrame = *s.CurrentFrame
		g.currentPlayer = *s.CurrentPlayer
	} else if s.CurrentFrame != nil || s.CurrentPlayer != nil || s.Turn != 0 {
		return nil, corrupt("not started but has a current frame, player or turn")
	}
	g.turns.cursor = s.Turn

	seen := make(map[string]bool, n)
	for _, pf := range s.Frames {
		if !g.HasPlayer(pf.Player) {
			return nil, corrupt("ledger for unknown player %q", pf.Player)
		}
		if seen[pf.Player] {
			return nil, corrupt("duplicate ledger for %q", pf.Player)
		}
		seen[pf.Player] = true
		if len(pf.Frames) > MaxFrames {
			return nil, corrupt("%q has %d frames", pf.Player, len(pf.Frames))
		}
		if !s.Started && len(pf.Frames) > 0 {
			return nil, corrupt("frames posted before start")
		}
		ledger := make([]*Frame, 0, len(pf.Frames))
		for i := range pf.Frames {
			f := pf.Frames[i]
			if f.Player != pf.Player {
				return nil, corrupt("frame %d of %q belongs to %q", i+1, pf.Player, f.Player)
			}
			for _, shot := range f.Shots {
				if !shot.valid() || shot == NotYet {
					return nil, corrupt("frame %d of %q has shot %v", i+1, pf.Player, shot)
				}
			}
			ledger = append(ledger, &f)
		}
		g.ledgers[pf.Player] = ledger
		g.totals[pf.Player] = total(ledger)
	}
	if len(seen) != n {
		return nil, corrupt("missing ledgers: have %d, want %d", len(seen), n)
	}
	if s.Started {
		if err := g.checkLedgerLengths(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// checkLedgerLengths verifies that the ledgers agree with the round state:
// players ahead of the current one have posted this round's frame, the rest
// have posted every earlier round.
func (g *Game) checkLedgerLengths() error {
	n := len(g.players)
	up := (g.turns.cursor + n - 1) % n
	posted := g.currentFrame - 1
	if g.complete {
		if g.currentFrame != MaxFrames {
			return corrupt("complete at frame %d", g.currentFrame)
		}
		posted = MaxFrames
	}
	for i, p := range g.players {
		want := posted
		if i < up {
			want++
		}
		if got := len(g.ledgers[p]); got != want {
			return corrupt("%q has %d frames, want %d", p, got, want)
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

// IsCorrupt reports whether err came from restoring a bad snapshot.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptSnapshot)
}
