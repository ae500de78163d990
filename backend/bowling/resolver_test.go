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

import "testing"

// play feeds frames through resolve one at a time, the way a game does.
func play(frames ...[2]Shot) []*Frame {
	var ledger []*Frame
	for _, shots := range frames {
		f := NewFrame("p")
		f.Shots = shots
		ledger = append(ledger, f)
		resolve(ledger)
	}
	return ledger
}

type want struct {
	score    int
	complete bool
}

func TestResolve(t *testing.T) {
	strike := [2]Shot{Strike, Nil}
	tests := []struct {
		name   string
		frames [][2]Shot
		want   []want
		total  int
	}{
		{
			name:   "open frame",
			frames: [][2]Shot{{4, 5}},
			want:   []want{{9, true}},
			total:  9,
		},
		{
			name:   "gutter",
			frames: [][2]Shot{{0, 0}},
			want:   []want{{0, true}},
			total:  0,
		},
		{
			name:   "lone strike waits",
			frames: [][2]Shot{strike},
			want:   []want{{0, false}},
		},
		{
			name:   "spare then open",
			frames: [][2]Shot{{3, Spare}, {4, 3}},
			want:   []want{{14, true}, {7, true}},
			total:  21,
		},
		{
			name:   "strike then open",
			frames: [][2]Shot{strike, {4, 3}},
			want:   []want{{17, true}, {7, true}},
			total:  24,
		},
		{
			name:   "strike then spare",
			frames: [][2]Shot{strike, {6, Spare}},
			want:   []want{{20, true}, {0, false}},
			total:  20,
		},
		{
			name:   "spare then strike",
			frames: [][2]Shot{{5, Spare}, strike},
			want:   []want{{20, true}, {0, false}},
			total:  20,
		},
		{
			name:   "spare then spare",
			frames: [][2]Shot{{5, Spare}, {2, Spare}},
			want:   []want{{12, true}, {0, false}},
			total:  12,
		},
		{
			name:   "double waits",
			frames: [][2]Shot{strike, strike},
			want:   []want{{0, false}, {0, false}},
		},
		{
			name:   "turkey",
			frames: [][2]Shot{strike, strike, strike},
			want:   []want{{30, true}, {0, false}, {0, false}},
			total:  30,
		},
		{
			name:   "double then open leaves the first strike pending",
			frames: [][2]Shot{strike, strike, {3, 4}},
			want:   []want{{0, false}, {17, true}, {7, true}},
			total:  24,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger := play(tc.frames...)
			for i, w := range tc.want {
				f := ledger[i]
				if f.Score != w.score || f.Complete != w.complete {
					t.Errorf("frame %d = (score %d, complete %v), want (%d, %v)", i+1, f.Score, f.Complete, w.score, w.complete)
				}
			}
			if got := total(ledger); got != tc.total {
				t.Errorf("total = %d, want %d", got, tc.total)
			}
		})
	}
}

func TestResolveCompleteFramesAreFrozen(t *testing.T) {
	ledger := play([2]Shot{3, Spare}, [2]Shot{4, 3})
	before := *ledger[0]
	ledger = append(ledger, &Frame{Player: "p", Shots: [2]Shot{Strike, Nil}})
	resolve(ledger)
	if *ledger[0] != before {
		t.Errorf("complete frame changed: %+v -> %+v", before, *ledger[0])
	}
}
