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

// Frame is one player's turn within a round.
type Frame struct {
	Player string  `json:"player"`
	Shots  [2]Shot `json:"shots"`
	Score  int     `json:"score"`
	// Complete is set once the score no longer depends on later frames.
	// A complete frame is never modified again.
	Complete bool `json:"complete"`
}

// NewFrame returns an empty frame for player.
func NewFrame(player string) *Frame {
	return &Frame{
		Player: player,
		Shots:  [2]Shot{NotYet, NotYet},
	}
}

// IsOpen reports whether the frame left pins standing after both balls.
func (f *Frame) IsOpen() bool {
	return f.Shots[0] != Strike && f.Shots[1] != Spare
}

// IsStrike reports whether the first ball cleared all ten pins.
func (f *Frame) IsStrike() bool {
	return f.Shots[0] == Strike
}

// IsSpare reports whether the second ball cleared the pins left standing.
func (f *Frame) IsSpare() bool {
	return f.Shots[1] == Spare
}

// PinCount sums the pins knocked down by the frame's own balls.
func (f *Frame) PinCount() int {
	if f.IsSpare() || f.IsStrike() {
		return 10
	}
	return f.Shots[0].PinCount() + f.Shots[1].PinCount()
}

// FirstBall is the pin count of the first ball, as seen by a preceding spare.
func (f *Frame) FirstBall() int {
	return f.Shots[0].PinCount()
}
