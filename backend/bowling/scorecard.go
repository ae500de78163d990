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
	"fmt"
	"strings"
	"unicode/utf8"
)

// RenderScorecard draws the game as a plain text scorecard. names maps
// player ids to display names; ids without a name are shown as is.
//
// Each player gets two rows: the marks of every frame followed by the running
// total, and the cumulative score under each frame. The cumulative row stops
// at the first frame that is still waiting for bonus balls.
func RenderScorecard(g *Game, names map[string]string) string {
	var b strings.Builder

	switch g.State() {
	case NotStarted:
		b.WriteString("Not started\n")
	case InProgress:
		fmt.Fprintf(&b, "Frame %d of %d, %s is up\n", g.currentFrame, MaxFrames, displayName(names, g.currentPlayer))
	case Complete:
		b.WriteString("Complete\n")
	}

	width := utf8.RuneCountInString("Player")
	for _, p := range g.players {
		width = max(width, utf8.RuneCountInString(displayName(names, p)))
	}

	header := fmt.Sprintf("%-*s |", width, "Player")
	for i := 1; i <= MaxFrames; i++ {
		header += fmt.Sprintf(" %3d |", i)
	}
	writeLine(&b, header+" Total")

	for _, p := range g.players {
		marks := fmt.Sprintf("%-*s |", width, displayName(names, p))
		scores := fmt.Sprintf("%-*s |", width, "")
		frames := g.Frames(p)
		running, pending := 0, false
		for i := 0; i < MaxFrames; i++ {
			if i >= len(frames) {
				marks += "     |"
				scores += "     |"
				continue
			}
			f := frames[i]
			marks += fmt.Sprintf(" %s %s |", mark(f.Shots[0]), mark(f.Shots[1]))
			if pending || !f.Complete {
				pending = true
				scores += "     |"
				continue
			}
			running += f.Score
			scores += fmt.Sprintf(" %3d |", running)
		}
		writeLine(&b, marks+fmt.Sprintf(" %5d", g.Total(p)))
		writeLine(&b, scores)
	}
	return b.String()
}

func displayName(names map[string]string, id string) string {
	if n := names[id]; n != "" {
		return n
	}
	return id
}

func writeLine(b *strings.Builder, s string) {
	b.WriteString(strings.TrimRight(s, " "))
	b.WriteByte('\n')
}

// mark is the one-character scorecard symbol for a shot.
func mark(s Shot) string {
	switch {
	case s == Strike:
		return "X"
	case s == Spare:
		return "/"
	case s == 0:
		return "-"
	case s.IsPins():
		return s.String()
	}
	return " "
}
