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

// Package bowling implements turn-based scoring for multi-player bowling games.
//
// A Game records one two-shot frame per call to PostFrame. Strikes and spares
// are scored once the frames that follow them are known, so a player's running
// total can lag behind the pins they have knocked down until the bonus balls
// have been posted.
package bowling

import "errors"

var (
	// ErrInvalidShot is returned for shot markings outside the 0-9, "X", "/", null vocabulary.
	ErrInvalidShot = errors.New("invalid shot")
	// ErrAlreadyStarted is returned by Start on a game that has already started.
	ErrAlreadyStarted = errors.New("game already started")
	// ErrGameComplete is returned when a frame is posted after the tenth round.
	ErrGameComplete = errors.New("game is complete")
	// ErrWrongTurn is returned when a frame is posted for a player who is not up.
	ErrWrongTurn = errors.New("wrong turn")

	ErrNoPlayers       = errors.New("game requires at least one player")
	ErrDuplicatePlayer = errors.New("duplicate player")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)
