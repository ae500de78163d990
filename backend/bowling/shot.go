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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Shot is the outcome of a single ball. Values 0 through 9 are pin counts;
// the negative values are markers. A ten-pin first ball is always Strike,
// never a pin count of 10.
type Shot int8

const (
	NotYet Shot = -4 // slot not filled yet
	Nil    Shot = -3 // placeholder, e.g. the second slot after a strike
	Spare  Shot = -2
	Strike Shot = -1
)

// MaxPins is the largest pin count a Shot can carry.
const MaxPins = 9

// Pins returns the Shot for n pins knocked down.
func Pins(n int) (Shot, error) {
	if n < 0 || n > MaxPins {
		return NotYet, fmt.Errorf("%w: %d pins", ErrInvalidShot, n)
	}
	return Shot(n), nil
}

// Convert maps a scorecard marking to a Shot. Accepted markings are the
// integers 0-9 (any Go integer type, or an integral JSON number), "X" for a
// strike, "/" for a spare and nil for a no-pin placeholder. A Shot converts to
// itself.
func Convert(marking any) (Shot, error) {
	switch m := marking.(type) {
	case nil:
		return Nil, nil
	case Shot:
		if !m.valid() {
			return NotYet, fmt.Errorf("%w: %d", ErrInvalidShot, int(m))
		}
		return m, nil
	case string:
		switch m {
		case "X":
			return Strike, nil
		case "/":
			return Spare, nil
		}
		return NotYet, fmt.Errorf("%w: %q", ErrInvalidShot, m)
	case int:
		return Pins(m)
	case int8:
		return Pins(int(m))
	case int16:
		return Pins(int(m))
	case int32:
		return Pins(int(m))
	case int64:
		if m < 0 || m > MaxPins {
			return NotYet, fmt.Errorf("%w: %d pins", ErrInvalidShot, m)
		}
		return Shot(m), nil
	case uint8:
		return Pins(int(m))
	case uint:
		if m > MaxPins {
			return NotYet, fmt.Errorf("%w: %d pins", ErrInvalidShot, m)
		}
		return Shot(m), nil
	case float64:
		if m != math.Trunc(m) || m < 0 || m > MaxPins {
			return NotYet, fmt.Errorf("%w: %v", ErrInvalidShot, m)
		}
		return Shot(m), nil
	case json.Number:
		n, err := m.Int64()
		if err != nil {
			return NotYet, fmt.Errorf("%w: %s", ErrInvalidShot, m)
		}
		return Convert(n)
	}
	return NotYet, fmt.Errorf("%w: unsupported marking %v (%T)", ErrInvalidShot, marking, marking)
}

func (s Shot) valid() bool {
	return s >= NotYet && s <= MaxPins
}

// IsPins reports whether the shot is a plain pin count.
func (s Shot) IsPins() bool {
	return s >= 0 && s <= MaxPins
}

// PinCount is the number of pins the ball knocked down on its own.
// A strike counts ten. Spares depend on the previous ball and count zero here,
// as do the markers.
func (s Shot) PinCount() int {
	switch {
	case s.IsPins():
		return int(s)
	case s == Strike:
		return 10
	}
	return 0
}

// Marking returns the scorecard marking for the shot, the inverse of Convert.
// NotYet has no marking and is returned as the empty string.
func (s Shot) Marking() any {
	switch s {
	case Strike:
		return "X"
	case Spare:
		return "/"
	case Nil:
		return nil
	case NotYet:
		return ""
	}
	return int(s)
}

func (s Shot) String() string {
	switch s {
	case Strike:
		return "X"
	case Spare:
		return "/"
	case Nil:
		return "nil"
	case NotYet:
		return "notyet"
	}
	if s.IsPins() {
		return strconv.Itoa(int(s))
	}
	return fmt.Sprintf("Shot(%d)", int8(s))
}

func (s Shot) MarshalJSON() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShot, int(s))
	}
	return json.Marshal(s.Marking())
}

func (s *Shot) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if str, ok := raw.(string); ok && str == "" {
		*s = NotYet
		return nil
	}
	v, err := Convert(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
