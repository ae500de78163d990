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
	"sync"
	"time"
)

const LatencyBuckets = 101
const LatencyBucketSize = 50 * time.Millisecond

// Histogram counts request latencies in LatencyBucketSize buckets. The last
// bucket collects everything slower.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // Sum of durations in milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Milliseconds())
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := range h.Buckets {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Mean returns the average latency in milliseconds.
func (h *Histogram) Mean() float64 {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / float64(h.Count)
}

// ResolutionConfig defines the policy for a single ring buffer.
type ResolutionConfig struct {
	Name       string        `json:"name"`
	Resolution time.Duration `json:"resolution"`
	Buckets    int           `json:"buckets"`
}

var DefaultResolutions = []ResolutionConfig{
	{"1m", time.Minute, 120},
	{"15m", 15 * time.Minute, 96},
	{"1h", time.Hour, 168},
}

// Point represents a single data point in a time series.
type Point[T any] struct {
	Timestamp int64 `json:"t"`
	Value     T     `json:"v"`
}

// RingBuffer is a fixed-size circular buffer for storing time series data.
type RingBuffer[T any] struct {
	Config ResolutionConfig `json:"config"`
	Data   []Point[T]       `json:"data"`
	Head   int              `json:"head"` // Points to the *next* write position
}

func NewRingBuffer[T any](cfg ResolutionConfig) *RingBuffer[T] {
	return &RingBuffer[T]{
		Config: cfg,
		Data:   make([]Point[T], cfg.Buckets),
	}
}

// Update applies fn to the point for timestamp's bucket, starting a new point
// from the zero value when the bucket has not been seen yet.
func (rb *RingBuffer[T]) Update(timestamp int64, fn func(T) T) {
	resSec := int64(rb.Config.Resolution.Seconds())
	alignedTs := (timestamp / resSec) * resSec

	prevIdx := (rb.Head - 1 + len(rb.Data)) % len(rb.Data)
	if rb.Data[prevIdx].Timestamp == alignedTs {
		rb.Data[prevIdx].Value = fn(rb.Data[prevIdx].Value)
		return
	}
	var zero T
	rb.Data[rb.Head] = Point[T]{Timestamp: alignedTs, Value: fn(zero)}
	rb.Head = (rb.Head + 1) % len(rb.Data)
}

// GetPoints returns the data points sorted by time.
func (rb *RingBuffer[T]) GetPoints() []Point[T] {
	points := make([]Point[T], 0, len(rb.Data))
	for i := 0; i < len(rb.Data); i++ {
		idx := (rb.Head + i) % len(rb.Data)
		if rb.Data[idx].Timestamp > 0 {
			points = append(points, rb.Data[idx])
		}
	}
	return points
}

// CounterSeries counts events at every resolution in DefaultResolutions.
type CounterSeries struct {
	Name    string                        `json:"name"`
	Buffers map[string]*RingBuffer[int64] `json:"buffers"`
}

func NewCounterSeries(name string) *CounterSeries {
	buffers := make(map[string]*RingBuffer[int64])
	for _, cfg := range DefaultResolutions {
		buffers[cfg.Name] = NewRingBuffer[int64](cfg)
	}
	return &CounterSeries{Name: name, Buffers: buffers}
}

func (cs *CounterSeries) Incr(timestamp int64, delta int64) {
	for _, buf := range cs.Buffers {
		buf.Update(timestamp, func(v int64) int64 { return v + delta })
	}
}

// HistogramSeries holds all resolutions for a histogram metric.
type HistogramSeries struct {
	Name    string                            `json:"name"`
	Buffers map[string]*RingBuffer[Histogram] `json:"buffers"`
}

func NewHistogramSeries(name string) *HistogramSeries {
	buffers := make(map[string]*RingBuffer[Histogram])
	for _, cfg := range DefaultResolutions {
		buffers[cfg.Name] = NewRingBuffer[Histogram](cfg)
	}
	return &HistogramSeries{Name: name, Buffers: buffers}
}

func (hs *HistogramSeries) Observe(timestamp int64, d time.Duration) {
	for _, buf := range hs.Buffers {
		buf.Update(timestamp, func(h Histogram) Histogram {
			h.Add(d)
			return h
		})
	}
}

// Metrics collects the process-local numbers served by /api/status.
type Metrics struct {
	mu        sync.Mutex
	startedAt time.Time
	latency   Histogram
	latencies *HistogramSeries
	frames    *CounterSeries
	requests  *CounterSeries
	now       func() time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		startedAt: time.Now(),
		latencies: NewHistogramSeries("latency"),
		frames:    NewCounterSeries("frames"),
		requests:  NewCounterSeries("requests"),
		now:       time.Now,
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().Unix()
	m.latency.Add(d)
	m.latencies.Observe(ts, d)
	m.requests.Incr(ts, 1)
}

// RecordFrame records one accepted frame.
func (m *Metrics) RecordFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames.Incr(m.now().Unix(), 1)
}

// MetricsReport is a point-in-time copy of the metrics.
type MetricsReport struct {
	UptimeSeconds   int64          `json:"uptimeSeconds"`
	Latency         Histogram      `json:"latency"`
	MeanLatencyMS   float64        `json:"meanLatencyMs"`
	FramesPerMinute []Point[int64] `json:"framesPerMinute"`
	FramesPerHour   []Point[int64] `json:"framesPerHour"`
	RequestsPerMin  []Point[int64] `json:"requestsPerMinute"`
}

func (m *Metrics) Report() MetricsReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsReport{
		UptimeSeconds:   int64(m.now().Sub(m.startedAt).Seconds()),
		Latency:         m.latency,
		MeanLatencyMS:   m.latency.Mean(),
		FramesPerMinute: m.frames.Buffers["1m"].GetPoints(),
		FramesPerHour:   m.frames.Buffers["1h"].GetPoints(),
		RequestsPerMin:  m.requests.Buffers["1m"].GetPoints(),
	}
}

// metricsMiddleware times every request.
func metricsMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		m.ObserveRequest(time.Since(start))
	})
}
