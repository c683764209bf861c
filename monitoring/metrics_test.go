package monitoring

import (
	"testing"
	"time"
)

func TestMetricsCollectorCounters(t *testing.T) {
	mc := NewMetricsCollector(16)

	mc.RecordInsert(8, 2, time.Millisecond)
	mc.RecordInsert(5, 0, time.Millisecond)
	mc.RecordQuery(time.Millisecond)
	mc.RecordSlide(3)
	mc.RecordSlide(0) // no buckets evicted, shouldn't count as a slide
	mc.RecordError()

	got := mc.Snapshot()
	want := Counters{Inserts: 13, Drops: 2, Slides: 1, Queries: 1, Errors: 1}
	if got != want {
		t.Fatalf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestRingBufferWrapsAtCapacity(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		rb.Add(v)
	}

	got := rb.GetAll()
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("GetAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetAll() = %v, want %v", got, want)
		}
	}
}

func TestRingBufferBelowCapacity(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Add(1)
	rb.Add(2)

	got := rb.GetAll()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("GetAll() = %v, want [1 2]", got)
	}
}

func TestLatencyStatsPercentiles(t *testing.T) {
	mc := NewMetricsCollector(100)
	for i := 1; i <= 100; i++ {
		mc.latency.Add(float64(i))
	}

	stats := mc.LatencyStats()
	if stats.Count != 100 {
		t.Fatalf("Count = %d, want 100", stats.Count)
	}
	if stats.Min != 1 || stats.Max != 100 {
		t.Fatalf("Min/Max = %v/%v, want 1/100", stats.Min, stats.Max)
	}
	if stats.P50 < 49 || stats.P50 > 51 {
		t.Fatalf("P50 = %v, want ~50", stats.P50)
	}
}

func TestLatencyStatsEmpty(t *testing.T) {
	mc := NewMetricsCollector(10)
	stats := mc.LatencyStats()
	if stats.Count != 0 {
		t.Fatalf("Count = %d, want 0 for an empty collector", stats.Count)
	}
}
