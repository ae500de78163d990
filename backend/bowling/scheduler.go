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

// TurnScheduler cycles through a fixed player order.
type TurnScheduler struct {
	players []string
	cursor  int
}

// NewTurnScheduler returns a scheduler whose first Next is players[0].
// The slice is copied.
func NewTurnScheduler(players []string) *TurnScheduler {
	return &TurnScheduler{players: append([]string(nil), players...)}
}

// Next returns the next player and advances, wrapping after the last one.
func (s *TurnScheduler) Next() string {
	p := s.Peek()
	s.cursor = (s.cursor + 1) % len(s.players)
	return p
}

// Peek returns the player Next would return, without advancing.
func (s *TurnScheduler) Peek() string {
	return s.players[s.cursor]
}

// Cursor is the index of the player Peek returns.
func (s *TurnScheduler) Cursor() int {
	return s.cursor
}
