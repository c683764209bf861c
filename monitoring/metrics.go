// Package monitoring collects spreadcache's service-level counters and a
// sliding-window latency histogram. It has no alerting, dashboard, or
// SSE layer: those had no home once the cache stopped being a
// multi-tenant HTTP store (see DESIGN.md).
package monitoring

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector tracks operation counters with atomics and keeps a
// bounded ring of recent operation latencies for percentile reporting.
type MetricsCollector struct {
	inserts atomic.Int64
	drops   atomic.Int64
	slides  atomic.Int64
	queries atomic.Int64
	errors  atomic.Int64

	latency *RingBuffer
}

// NewMetricsCollector creates a collector retaining the last
// latencyWindow latency samples.
func NewMetricsCollector(latencyWindow int) *MetricsCollector {
	return &MetricsCollector{latency: NewRingBuffer(latencyWindow)}
}

// RecordInsert accounts for one ingest call: accepted count, rejected
// count, and the call's latency.
func (mc *MetricsCollector) RecordInsert(accepted, rejected int, d time.Duration) {
	mc.inserts.Add(int64(accepted))
	mc.drops.Add(int64(rejected))
	mc.latency.Add(d.Seconds() * 1000)
}

// RecordSlide accounts for a horizon slide evicting bucketsEvicted
// buckets.
func (mc *MetricsCollector) RecordSlide(bucketsEvicted int) {
	if bucketsEvicted > 0 {
		mc.slides.Add(1)
	}
}

// RecordQuery accounts for one query call and its latency.
func (mc *MetricsCollector) RecordQuery(d time.Duration) {
	mc.queries.Add(1)
	mc.latency.Add(d.Seconds() * 1000)
}

// RecordError increments the error counter.
func (mc *MetricsCollector) RecordError() {
	mc.errors.Add(1)
}

// Counters is a point-in-time snapshot of the atomic counters.
type Counters struct {
	Inserts int64
	Drops   int64
	Slides  int64
	Queries int64
	Errors  int64
}

// Snapshot returns the current counters.
func (mc *MetricsCollector) Snapshot() Counters {
	return Counters{
		Inserts: mc.inserts.Load(),
		Drops:   mc.drops.Load(),
		Slides:  mc.slides.Load(),
		Queries: mc.queries.Load(),
		Errors:  mc.errors.Load(),
	}
}

// LatencyStats summarizes the latency ring buffer, in milliseconds.
type LatencyStats struct {
	Min, Max, Avg, P50, P90, P99 float64
	Count                        int
}

// LatencyStats computes percentile statistics over the retained window.
func (mc *MetricsCollector) LatencyStats() LatencyStats {
	return calculateLatencyStats(mc.latency.GetAll())
}

// RingBuffer is a fixed-size circular buffer of float64 samples,
// overwriting the oldest sample once full.
type RingBuffer struct {
	mu     sync.Mutex
	buffer []float64
	next   int
	filled bool
}

// NewRingBuffer creates a ring buffer holding up to size samples.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{buffer: make([]float64, size)}
}

// Add records one sample, overwriting the oldest once the buffer fills.
func (rb *RingBuffer) Add(value float64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buffer[rb.next] = value
	rb.next = (rb.next + 1) % len(rb.buffer)
	if rb.next == 0 {
		rb.filled = true
	}
}

// GetAll returns a copy of the retained samples, oldest first.
func (rb *RingBuffer) GetAll() []float64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.filled {
		out := make([]float64, rb.next)
		copy(out, rb.buffer[:rb.next])
		return out
	}
	out := make([]float64, len(rb.buffer))
	copy(out, rb.buffer[rb.next:])
	copy(out[len(rb.buffer)-rb.next:], rb.buffer[:rb.next])
	return out
}

func calculateLatencyStats(samples []float64) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}

	values := make([]float64, len(samples))
	copy(values, samples)
	sort.Float64s(values)

	sum, min, max := 0.0, math.MaxFloat64, -math.MaxFloat64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(len(values)),
		P50:   percentile(values, 0.50),
		P90:   percentile(values, 0.90),
		P99:   percentile(values, 0.99),
		Count: len(values),
	}
}

// percentile linearly interpolates the p-th percentile of sorted values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return values[0]
	}

	index := p * float64(len(values)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return values[lower]
	}

	weight := index - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}
