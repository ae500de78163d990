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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRingBuffer_UpdateAndGet(t *testing.T) {
	cfg := ResolutionConfig{
		Name:       "1m",
		Resolution: 60 * time.Second,
		Buckets:    5,
	}
	rb := NewRingBuffer[float64](cfg)
	set := func(ts int64, v float64) {
		rb.Update(ts, func(float64) float64 { return v })
	}

	baseTime := int64(1000000) // arbitrary start
	set(baseTime, 10.0)
	points := rb.GetPoints()
	if len(points) != 1 {
		t.Errorf("Expected 1 point, got %d", len(points))
	}
	if points[0].Value != 10.0 {
		t.Errorf("Expected value 10.0, got %f", points[0].Value)
	}

	// Next minute
	set(baseTime+60, 20.0)
	points = rb.GetPoints()
	if len(points) != 2 {
		t.Errorf("Expected 2 points, got %d", len(points))
	}

	// Same minute updates in place
	set(baseTime+60, 25.0)
	points = rb.GetPoints()
	if len(points) != 2 {
		t.Errorf("Expected 2 points after update, got %d", len(points))
	}
	if points[1].Value != 25.0 {
		t.Errorf("Expected updated value 25.0, got %f", points[1].Value)
	}

	set(baseTime+120, 30.0)
	set(baseTime+180, 40.0)
	set(baseTime+240, 50.0)

	// Wrap around (overwrite first point)
	set(baseTime+300, 60.0)
	points = rb.GetPoints()
	if len(points) != 5 {
		t.Errorf("Expected 5 points after wrap, got %d", len(points))
	}
	if points[0].Timestamp != ((baseTime + 60) / 60 * 60) {
		t.Errorf("Expected oldest timestamp %d, got %d", (baseTime+60)/60*60, points[0].Timestamp)
	}
	if points[4].Value != 60.0 {
		t.Errorf("Expected newest value 60.0, got %f", points[4].Value)
	}
}

func TestCounterSeries_Incr(t *testing.T) {
	cs := NewCounterSeries("frames")
	baseTime := int64(7200) // start of an hour

	cs.Incr(baseTime, 1)
	cs.Incr(baseTime+10, 2)
	cs.Incr(baseTime+70, 1)

	points1m := cs.Buffers["1m"].GetPoints()
	if len(points1m) != 2 || points1m[0].Value != 3 || points1m[1].Value != 1 {
		t.Errorf("1m points = %+v, want values [3 1]", points1m)
	}
	points1h := cs.Buffers["1h"].GetPoints()
	if len(points1h) != 1 || points1h[0].Value != 4 {
		t.Errorf("1h points = %+v, want one point with value 4", points1h)
	}
}

func TestHistogram_AddAndMerge(t *testing.T) {
	h := &Histogram{}
	h.Add(40 * time.Millisecond)  // Bucket 0 (0-49ms)
	h.Add(50 * time.Millisecond)  // Bucket 1 (50-99ms)
	h.Add(150 * time.Millisecond) // Bucket 3 (150-199ms)
	h.Add(6 * time.Second)        // Bucket 100 (>= 5000ms)

	if h.Count != 4 {
		t.Errorf("Expected count 4, got %d", h.Count)
	}
	if h.Buckets[0] != 1 {
		t.Errorf("Bucket 0 mismatch: %d", h.Buckets[0])
	}
	if h.Buckets[1] != 1 {
		t.Errorf("Bucket 1 mismatch: %d", h.Buckets[1])
	}
	if h.Buckets[3] != 1 {
		t.Errorf("Bucket 3 mismatch: %d", h.Buckets[3])
	}
	if h.Buckets[LatencyBuckets-1] != 1 {
		t.Errorf("Last Bucket mismatch: %d", h.Buckets[LatencyBuckets-1])
	}

	h2 := &Histogram{}
	h2.Add(100 * time.Millisecond) // Bucket 2
	h.Merge(h2)

	if h.Count != 5 || h.Buckets[2] != 1 {
		t.Errorf("Merge failed")
	}
	if got, want := h.Mean(), (40.0+50+150+6000+100)/5; got != want {
		t.Errorf("Mean = %v, want %v", got, want)
	}
}

func TestHistogramSeries_Observe(t *testing.T) {
	hs := NewHistogramSeries("test_latency")
	baseTime := int64(6000)

	hs.Observe(baseTime, 100*time.Millisecond)
	hs.Observe(baseTime+10, 200*time.Millisecond)

	points1m := hs.Buffers["1m"].GetPoints()
	if len(points1m) != 1 || points1m[0].Value.Count != 2 {
		t.Fatalf("Expected 1 point with count 2, got %+v", points1m)
	}
}

func TestMetrics_Report(t *testing.T) {
	m := NewMetrics()
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	m.startedAt = now.Add(-90 * time.Second)

	m.RecordFrame()
	m.RecordFrame()
	m.RecordFrame()
	now = now.Add(time.Minute)
	m.RecordFrame()
	m.ObserveRequest(120 * time.Millisecond)

	r := m.Report()
	if r.UptimeSeconds != 150 {
		t.Errorf("UptimeSeconds = %d, want 150", r.UptimeSeconds)
	}
	if len(r.FramesPerMinute) != 2 || r.FramesPerMinute[0].Value != 3 || r.FramesPerMinute[1].Value != 1 {
		t.Errorf("FramesPerMinute = %+v", r.FramesPerMinute)
	}
	if len(r.FramesPerHour) != 1 || r.FramesPerHour[0].Value != 4 {
		t.Errorf("FramesPerHour = %+v", r.FramesPerHour)
	}
	if r.Latency.Count != 1 || r.MeanLatencyMS != 120 {
		t.Errorf("Latency count %d mean %v, want 1 and 120", r.Latency.Count, r.MeanLatencyMS)
	}
	if len(r.RequestsPerMin) != 1 || r.RequestsPerMin[0].Value != 1 {
		t.Errorf("RequestsPerMin = %+v", r.RequestsPerMin)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics()
	h := metricsMiddleware(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if got := m.Report().Latency.Count; got != 3 {
		t.Errorf("Latency.Count = %d, want 3", got)
	}
}
