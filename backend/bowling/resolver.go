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

const (
	strikeAfterStrikeBonus = 30 // X, X, X
	markAfterMarkBonus     = 20 // X or / followed by a frame that cleared all ten
	markBase               = 10
)

// resolve fills in the scores that the newest frame of a single player's
// ledger makes known. It only looks at the last three frames: the newest one,
// the frame before it (a strike or spare waiting for bonus balls), and the
// frame before that (a strike waiting for its second bonus ball).
func resolve(ledger []*Frame) {
	n := len(ledger)
	if n == 0 {
		return
	}
	newest := ledger[n-1]

	if newest.IsOpen() {
		newest.Score = newest.PinCount()
		newest.Complete = true
	}

	// A frame two back is only still pending when it was a strike followed by
	// another strike. A third strike settles it at 30. Anything else leaves it
	// as it is.
	if n >= 3 {
		if twoBack := ledger[n-3]; !twoBack.Complete && newest.IsStrike() {
			twoBack.Score = strikeAfterStrikeBonus
			twoBack.Complete = true
		}
	}

	if n >= 2 {
		prev := ledger[n-2]
		if prev.Complete {
			return
		}
		switch {
		case prev.IsStrike():
			switch {
			case newest.IsStrike():
				// still waiting on a second bonus ball
			case newest.IsSpare():
				prev.Score = markAfterMarkBonus
				prev.Complete = true
			default:
				prev.Score = markBase + newest.Score
				prev.Complete = true
			}
		case prev.IsSpare():
			if newest.IsStrike() {
				prev.Score = markAfterMarkBonus
			} else {
				prev.Score = markBase + newest.FirstBall()
			}
			prev.Complete = true
		}
	}
}

// total is the running total of a ledger. Frames that are still pending
// contribute whatever score they have been given so far.
func total(ledger []*Frame) int {
	sum := 0
	for _, f := range ledger {
		sum += f.Score
	}
	return sum
}
