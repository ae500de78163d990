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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ttbt-io/lanekeeper/backend/bowling"
)

var (
	// ErrMalformedFrame is returned for frame payloads that are not a legal
	// pair of shots, e.g. a spare on the first ball.
	ErrMalformedFrame = errors.New("malformed frame")
	ErrInvalidName    = errors.New("invalid player name")

	errTooManyPlayers = errors.New("too many players")
)

// isValidUUID checks that id is a UUID in the dashed 36 character form.
// Other spellings accepted by uuid.Validate would name different files.
func isValidUUID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}

// normalizePlayerName trims the name and checks its length and characters.
func normalizePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxPlayerNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: name contains control characters", ErrInvalidName)
		}
	}
	return name, nil
}

// framePayload is the body of a frame post: {"shots": [7, "/"]}.
type framePayload struct {
	Shots []any `json:"shots"`
}

// decodeFrame parses and validates a frame post body.
func decodeFrame(body []byte) ([2]bowling.Shot, error) {
	var shots [2]bowling.Shot

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var p framePayload
	if err := dec.Decode(&p); err != nil {
		return shots, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(p.Shots) != 2 {
		return shots, fmt.Errorf("%w: expected 2 shots, got %d", ErrMalformedFrame, len(p.Shots))
	}
	for i, m := range p.Shots {
		s, err := bowling.Convert(m)
		if err != nil {
			return shots, err
		}
		shots[i] = s
	}
	if err := validateFrameShape(shots); err != nil {
		return shots, err
	}
	return shots, nil
}

// validateFrameShape rejects shot pairs that cannot happen on a lane. Nil is
// accepted in either slot as a no-pin placeholder.
func validateFrameShape(shots [2]bowling.Shot) error {
	first, second := shots[0], shots[1]
	switch {
	case first == bowling.Spare:
		return fmt.Errorf("%w: first shot cannot be a spare", ErrMalformedFrame)
	case first == bowling.Strike && second != bowling.Nil:
		return fmt.Errorf("%w: a strike must be followed by null", ErrMalformedFrame)
	case second == bowling.Strike:
		return fmt.Errorf("%w: second shot cannot be a strike", ErrMalformedFrame)
	case first.IsPins() && second.IsPins() && first.PinCount()+second.PinCount() > bowling.MaxPins:
		return fmt.Errorf("%w: %d pins in one frame, mark a spare instead", ErrMalformedFrame, first.PinCount()+second.PinCount())
	}
	return nil
}

// createGameRequest is the body of POST /api/game.
type createGameRequest struct {
	Players []string `json:"players"`
}

func (req createGameRequest) validate() error {
	if len(req.Players) == 0 {
		return bowling.ErrNoPlayers
	}
	if len(req.Players) > MaxPlayersPerGame {
		return fmt.Errorf("%w: at most %d players per game", errTooManyPlayers, MaxPlayersPerGame)
	}
	seen := make(map[string]bool, len(req.Players))
	for _, id := range req.Players {
		if seen[id] {
			return fmt.Errorf("%w: %q", bowling.ErrDuplicatePlayer, id)
		}
		seen[id] = true
	}
	return nil
}
