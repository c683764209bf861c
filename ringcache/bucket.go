package ringcache

import (
	"math"
	"sync"

	"github.com/oterlabs/spreadcache/pkg/sketch"
)

// bucketSketchTargetSize bounds the per-bucket rank sketch's centroid
// count (spec component 4.1: "100 centroids for per-bucket").
const bucketSketchTargetSize = 100

// Bucket holds the raw samples and incremental aggregates for a single
// fixed half-open interval [StartNs, EndNs). StartNs and EndNs are fixed
// at construction and never change; everything else is protected by mu
// so a Bucket can be shared between one writer (admission, eviction) and
// many concurrent readers (range queries).
//
// Design note: the rank sketch is read-mostly but is built lazily on the
// first query that needs it (see Sketch). Building it is, in effect, a
// write — Sketch takes mu's write lock via a double-checked pattern so
// concurrent readers never observe a half-built sketch, and any reader
// after the one that built it sees the same sketch until the next
// mutation invalidates it.
type Bucket struct {
	StartNs uint64
	EndNs   uint64

	mu        sync.RWMutex
	entries   []Sample
	count     int
	minSpread float64
	maxSpread float64
	sk        *sketch.Sketch // nil means "absent", rebuilt on next Sketch() call
}

// NewBucket creates an empty bucket covering [startNs, endNs).
func NewBucket(startNs, endNs uint64) *Bucket {
	return &Bucket{
		StartNs:   startNs,
		EndNs:     endNs,
		minSpread: math.Inf(1),
		maxSpread: math.Inf(-1),
	}
}

// Insert admits sample iff it falls in [StartNs, EndNs). Returns whether
// it was accepted. On acceptance this invalidates the bucket's sketch.
func (b *Bucket) Insert(s Sample) bool {
	if s.TsNs < b.StartNs || s.TsNs >= b.EndNs {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, s)
	b.count++
	if s.Spread < b.minSpread {
		b.minSpread = s.Spread
	}
	if s.Spread > b.maxSpread {
		b.maxSpread = s.Spread
	}
	b.sk = nil
	return true
}

// RemoveUpTo retains only samples with ts > threshold, recomputing
// count, min/max, and invalidating the sketch. No-op returning 0 if
// threshold falls outside [StartNs, EndNs]. Returns the removed count.
func (b *Bucket) RemoveUpTo(threshold uint64) int {
	if threshold < b.StartNs || threshold > b.EndNs {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	survivors := b.entries[:0:0]
	for _, e := range b.entries {
		if e.TsNs > threshold {
			survivors = append(survivors, e)
		}
	}
	removed := len(b.entries) - len(survivors)
	b.entries = survivors
	b.count = len(survivors)

	minS, maxS := math.Inf(1), math.Inf(-1)
	for _, e := range survivors {
		if e.Spread < minS {
			minS = e.Spread
		}
		if e.Spread > maxS {
			maxS = e.Spread
		}
	}
	b.minSpread, b.maxSpread = minS, maxS
	b.sk = nil
	return removed
}

// ScanFrom returns a copy of the samples with ts >= t. Empty if t falls
// outside [StartNs, EndNs].
func (b *Bucket) ScanFrom(t uint64) []Sample {
	if t < b.StartNs || t > b.EndNs {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, 0, len(b.entries))
	for _, e := range b.entries {
		if e.TsNs >= t {
			out = append(out, e)
		}
	}
	return out
}

// CountFrom counts samples with ts >= t without allocating a copy.
func (b *Bucket) CountFrom(t uint64) int {
	if t < b.StartNs || t > b.EndNs {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.entries {
		if e.TsNs >= t {
			n++
		}
	}
	return n
}

// ScanTo returns a copy of the samples with ts <= t. Empty if t falls
// outside [StartNs, EndNs].
func (b *Bucket) ScanTo(t uint64) []Sample {
	if t < b.StartNs || t > b.EndNs {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, 0, len(b.entries))
	for _, e := range b.entries {
		if e.TsNs <= t {
			out = append(out, e)
		}
	}
	return out
}

// CountTo counts samples with ts <= t without allocating a copy.
func (b *Bucket) CountTo(t uint64) int {
	if t < b.StartNs || t > b.EndNs {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.entries {
		if e.TsNs <= t {
			n++
		}
	}
	return n
}

// ScanInRange returns a copy of the samples with lo <= ts <= hi. Used
// when a query's start and end both land in the same bucket, so neither
// ScanFrom nor ScanTo alone expresses the predicate.
func (b *Bucket) ScanInRange(lo, hi uint64) []Sample {
	if hi < b.StartNs || lo > b.EndNs {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Sample, 0, len(b.entries))
	for _, e := range b.entries {
		if e.TsNs >= lo && e.TsNs <= hi {
			out = append(out, e)
		}
	}
	return out
}

// CountInRange counts samples with lo <= ts <= hi without allocating.
func (b *Bucket) CountInRange(lo, hi uint64) int {
	if hi < b.StartNs || lo > b.EndNs {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.entries {
		if e.TsNs >= lo && e.TsNs <= hi {
			n++
		}
	}
	return n
}

// spreadsInRange returns the raw spreads with lo <= ts <= hi, for
// building a sketch over a partial bucket scan (an endpoint segment of a
// range query never reuses the whole-bucket Sketch).
func (b *Bucket) spreadsInRange(lo, hi uint64) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]float64, 0, len(b.entries))
	for _, e := range b.entries {
		if e.TsNs >= lo && e.TsNs <= hi {
			out = append(out, e.Spread)
		}
	}
	return out
}

// minMaxInRange returns the min and max spread with lo <= ts <= hi, or
// (+Inf, -Inf) if nothing in the bucket matches.
func (b *Bucket) minMaxInRange(lo, hi uint64) (float64, float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	minS, maxS := math.Inf(1), math.Inf(-1)
	for _, e := range b.entries {
		if e.TsNs >= lo && e.TsNs <= hi {
			if e.Spread < minS {
				minS = e.Spread
			}
			if e.Spread > maxS {
				maxS = e.Spread
			}
		}
	}
	return minS, maxS
}

// Count returns the number of samples currently held.
func (b *Bucket) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// MinSpread returns the running minimum, or +Inf if the bucket is empty.
func (b *Bucket) MinSpread() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.minSpread
}

// MaxSpread returns the running maximum, or -Inf if the bucket is empty.
func (b *Bucket) MaxSpread() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxSpread
}

// Sketch returns the bucket's rank sketch, building it from entries on
// first use after construction or the last mutation. Uses
// double-checked locking so concurrent readers share one build.
func (b *Bucket) Sketch() *sketch.Sketch {
	b.mu.RLock()
	if b.sk != nil {
		sk := b.sk
		b.mu.RUnlock()
		return sk
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sk != nil {
		return b.sk
	}
	spreads := make([]float64, len(b.entries))
	for i, e := range b.entries {
		spreads[i] = e.Spread
	}
	b.sk = sketch.Build(spreads, bucketSketchTargetSize)
	return b.sk
}
