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

import "fmt"

// MaxFrames is the number of rounds in a game.
const MaxFrames = 10

// State is the lifecycle stage of a Game. It only ever moves forward.
type State int

const (
	NotStarted State = iota
	InProgress
	Complete
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Game is the scoring state of one game. It is not safe for concurrent use;
// callers serialize access per game.
type Game struct {
	players       []string
	turns         *TurnScheduler
	currentFrame  int
	started       bool
	complete      bool
	currentPlayer string

	// ledgers and totals always have exactly one key per player.
	ledgers map[string][]*Frame
	totals  map[string]int
}

// NewGame returns a game that has not started. The order of players is the
// turn order.
func NewGame(players []string) (*Game, error) {
	if len(players) == 0 {
		return nil, ErrNoPlayers
	}
	g := &Game{
		players: append([]string(nil), players...),
		turns:   NewTurnScheduler(players),
		ledgers: make(map[string][]*Frame, len(players)),
		totals:  make(map[string]int, len(players)),
	}
	for _, p := range g.players {
		if _, ok := g.ledgers[p]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePlayer, p)
		}
		g.ledgers[p] = []*Frame{}
		g.totals[p] = 0
	}
	return g, nil
}

// Start moves the game to frame 1 with the first player up.
func (g *Game) Start() error {
	if g.started {
		return ErrAlreadyStarted
	}
	g.currentFrame = 1
	g.currentPlayer = g.turns.Next()
	g.started = true
	return nil
}

// PostFrame records a two-shot frame for player. A game that has not started
// is started first. On error the game is left exactly as it was.
func (g *Game) PostFrame(player string, shots [2]Shot) error {
	if g.complete {
		return ErrGameComplete
	}
	for i, s := range shots {
		if !s.valid() || s == NotYet {
			return fmt.Errorf("%w: shot %d is %v", ErrInvalidShot, i+1, s)
		}
	}

	up := g.currentPlayer
	if !g.started {
		up = g.turns.Peek()
	}
	if player != up {
		return fmt.Errorf("%w: %q posted a frame but %q is up", ErrWrongTurn, player, up)
	}
	if !g.started {
		if err := g.Start(); err != nil {
			return err
		}
	}

	frame := NewFrame(player)
	frame.Shots = shots
	ledger := append(g.ledgers[player], frame)
	g.ledgers[player] = ledger
	resolve(ledger)
	g.totals[player] = total(ledger)

	if g.roundComplete() {
		if g.currentFrame == MaxFrames {
			g.complete = true
		} else {
			g.currentFrame++
		}
	}
	g.currentPlayer = g.turns.Next()
	return nil
}

// roundComplete reports whether every player has posted the same number of frames.
func (g *Game) roundComplete() bool {
	n := len(g.ledgers[g.players[0]])
	for _, p := range g.players[1:] {
		if len(g.ledgers[p]) != n {
			return false
		}
	}
	return true
}

func (g *Game) State() State {
	switch {
	case g.complete:
		return Complete
	case g.started:
		return InProgress
	}
	return NotStarted
}

func (g *Game) Started() bool  { return g.started }
func (g *Game) Complete() bool { return g.complete }

// Players returns the players in turn order.
func (g *Game) Players() []string {
	return append([]string(nil), g.players...)
}

// HasPlayer reports whether player takes part in the game.
func (g *Game) HasPlayer(player string) bool {
	_, ok := g.ledgers[player]
	return ok
}

// CurrentFrame returns the round being played. ok is false before the game starts.
func (g *Game) CurrentFrame() (frame int, ok bool) {
	return g.currentFrame, g.started
}

// CurrentPlayer returns the player who is up. ok is false before the game starts.
func (g *Game) CurrentPlayer() (player string, ok bool) {
	return g.currentPlayer, g.started
}

// Frames returns a copy of player's ledger.
func (g *Game) Frames(player string) []Frame {
	ledger := g.ledgers[player]
	out := make([]Frame, len(ledger))
	for i, f := range ledger {
		out[i] = *f
	}
	return out
}

// Total returns player's running total.
func (g *Game) Total(player string) int {
	return g.totals[player]
}

// Totals returns a copy of the running totals keyed by player.
func (g *Game) Totals() map[string]int {
	out := make(map[string]int, len(g.totals))
	for p, t := range g.totals {
		out[p] = t
	}
	return out
}
