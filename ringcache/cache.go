package ringcache

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/oterlabs/spreadcache/pkg/sketch"
)

// Default horizon parameters (spec component 4.2): a 1-hour sliding
// window of 100ms buckets.
const (
	DefaultNumBuckets    = 36_000
	DefaultBucketWidthNs = 100_000_000

	// endpointSketchTargetSize bounds the rank sketch built from a
	// partial head/tail scan (spec component 4.1: "1000 centroids for
	// endpoint batches").
	endpointSketchTargetSize = 1000
)

// Cache is a ring of exactly numBuckets fixed-width buckets covering a
// sliding horizon of numBuckets*bucketWidthNs nanoseconds. It has no
// background goroutines, no I/O, and no process-wide state: callers drive
// it synchronously from Insert and the query methods (a query may fan out
// over short-lived goroutines for the duration of the call).
//
// structMu guards the ring's shape — the buckets slice header and the
// base timestamp (buckets[0].StartNs) that all index arithmetic is
// relative to — not the buckets' contents, which each protect with
// their own mu. Admission (Insert) holds structMu for its entire
// duration, serializing slides; queries take a brief RLock to resolve
// bucket indices and snapshot the relevant *Bucket pointers, then
// release it and read those buckets independently (optionally in
// parallel — see parallel.go). A reader that has released structMu
// never sees bucket.StartNs change underneath it: the ring evicts
// buckets by popping them from the slice and appending new ones,
// it never mutates a live Bucket's StartNs.
type Cache struct {
	structMu sync.RWMutex
	buckets  []*Bucket

	numBuckets    int
	bucketWidthNs uint64
	initialized   bool

	totalCount atomic.Int64
}

// New creates a Cache with numBuckets buckets of bucketWidthNs each. The
// ring is left uninitialized until the first Insert, which aligns the
// horizon to that sample's timestamp (spec component 4.2, "First
// sample").
func New(numBuckets int, bucketWidthNs uint64) *Cache {
	return &Cache{numBuckets: numBuckets, bucketWidthNs: bucketWidthNs}
}

// NewDefault creates a Cache using the spec's default 1-hour/100ms
// horizon.
func NewDefault() *Cache {
	return New(DefaultNumBuckets, DefaultBucketWidthNs)
}

// Count returns the total number of samples currently retained across
// the whole horizon, O(1).
func (c *Cache) Count() int {
	return int(c.totalCount.Load())
}

// initializeLocked aligns bucket 0's start to the bucket boundary at or
// before ts and fills the ring forward from there. Called with
// structMu held.
func (c *Cache) initializeLocked(ts uint64) {
	base := (ts / c.bucketWidthNs) * c.bucketWidthNs
	buckets := make([]*Bucket, c.numBuckets)
	for i := 0; i < c.numBuckets; i++ {
		start := base + uint64(i)*c.bucketWidthNs
		buckets[i] = NewBucket(start, start+c.bucketWidthNs)
	}
	c.buckets = buckets
	c.initialized = true
}

// findIndexLocked maps ts to a bucket index relative to the current
// base (buckets[0].StartNs). Callers must ensure ts >= base; the result
// may be >= numBuckets for a ts beyond the current horizon.
func (c *Cache) findIndexLocked(ts uint64) int {
	base := c.buckets[0].StartNs
	return int((ts - base) / c.bucketWidthNs)
}

func (c *Cache) horizonNs() uint64 {
	return uint64(c.numBuckets) * c.bucketWidthNs
}

// SlideInfo reports whether an Insert or RemoveUpTo call advanced the
// horizon, and by how much, so a caller (service/horizon) can publish a
// coordination event without the ring doing any I/O of its own.
type SlideInfo struct {
	Slid           bool
	NewStartNs     uint64
	BucketsEvicted int
	SamplesEvicted int
}

// Insert admits a sample, initializing or sliding the ring as needed.
// A sample older than the current horizon tail, or one that lands
// before the new tail after a slide forced by its own admission, is
// dropped silently (spec §4.2/§8: clock-reordered samples are not
// repaired). The returned SlideInfo is the zero value unless this
// insertion forced the ring to advance.
func (c *Cache) Insert(s Sample) SlideInfo {
	c.structMu.Lock()
	defer c.structMu.Unlock()

	if !c.initialized {
		c.initializeLocked(s.TsNs)
	}

	if s.TsNs < c.buckets[0].StartNs {
		return SlideInfo{}
	}

	var info SlideInfo
	idx := c.findIndexLocked(s.TsNs)
	if idx >= c.numBuckets {
		targetEnd := c.buckets[0].StartNs + uint64(idx+1)*c.bucketWidthNs
		newTail := targetEnd - c.horizonNs()
		samplesRemoved, bucketsRemoved := c.removeUpToLocked(newTail)
		info = SlideInfo{Slid: true, NewStartNs: c.buckets[0].StartNs, BucketsEvicted: bucketsRemoved, SamplesEvicted: samplesRemoved}

		if s.TsNs < c.buckets[0].StartNs {
			return info
		}
		idx = c.findIndexLocked(s.TsNs)
		if idx >= c.numBuckets {
			// The gap outran the whole horizon: a single remove_up_to
			// call only ever advances the ring by as many buckets as it
			// evicts, which can't bridge a jump wider than the horizon
			// itself. Nothing in the old ring is within W of this
			// sample any more, so rebase fresh around it exactly as if
			// it were the first sample.
			stranded := int(c.totalCount.Load())
			c.totalCount.Store(0)
			c.initializeLocked(s.TsNs)
			idx = 0
			info = SlideInfo{Slid: true, NewStartNs: c.buckets[0].StartNs, BucketsEvicted: c.numBuckets, SamplesEvicted: info.SamplesEvicted + stranded}
		}
	}

	if c.buckets[idx].Insert(s) {
		c.totalCount.Add(1)
	}
	return info
}

// removeUpToLocked evicts whole head buckets ending at or before
// threshold, purges the remainder of the new head bucket up to
// threshold, and refills the tail with fresh empty buckets until the
// ring is back to numBuckets long. No-op if threshold is before the
// current horizon (guarded via addition to avoid unsigned underflow).
// Called with structMu held. Returns the number of samples evicted and
// the number of whole buckets popped from the head.
func (c *Cache) removeUpToLocked(threshold uint64) (samplesRemoved, bucketsRemoved int) {
	if !c.initialized || len(c.buckets) == 0 {
		return 0, 0
	}
	if threshold+c.bucketWidthNs < c.buckets[0].StartNs {
		return 0, 0
	}

	frontier := c.buckets[0].EndNs // tracks the right edge even if the ring empties out entirely
	for len(c.buckets) > 0 && c.buckets[0].EndNs <= threshold {
		samplesRemoved += c.buckets[0].Count()
		bucketsRemoved++
		frontier = c.buckets[0].EndNs
		c.buckets = c.buckets[1:]
	}
	if len(c.buckets) > 0 {
		samplesRemoved += c.buckets[0].RemoveUpTo(threshold)
	}
	for len(c.buckets) < c.numBuckets {
		start := frontier
		if len(c.buckets) > 0 {
			start = c.buckets[len(c.buckets)-1].EndNs
		}
		c.buckets = append(c.buckets, NewBucket(start, start+c.bucketWidthNs))
		frontier = start + c.bucketWidthNs
	}
	c.totalCount.Add(-int64(samplesRemoved))
	return samplesRemoved, bucketsRemoved
}

// RemoveUpTo evicts samples with ts <= threshold from the horizon,
// sliding the ring forward. Exposed for maintenance sweeps that advance
// the horizon independent of admission (service/cron.go).
func (c *Cache) RemoveUpTo(threshold uint64) SlideInfo {
	c.structMu.Lock()
	defer c.structMu.Unlock()
	samplesRemoved, bucketsRemoved := c.removeUpToLocked(threshold)
	info := SlideInfo{SamplesEvicted: samplesRemoved, BucketsEvicted: bucketsRemoved}
	if bucketsRemoved > 0 || samplesRemoved > 0 {
		info.Slid = true
	}
	if c.initialized && len(c.buckets) > 0 {
		info.NewStartNs = c.buckets[0].StartNs
	}
	return info
}

// resolveRange validates [startNs, endNs] against the current horizon
// and returns the bucket pointers it spans along with their first/last
// indices. ok is false for any of: uninitialized cache, endNs < startNs,
// or a range falling outside [buckets[0].StartNs, buckets[last].EndNs)
// — all of which are caller contract violations per spec §6 ("querying
// outside the horizon... undefined, implementations may return a
// zero/sentinel result").
func (c *Cache) resolveRange(startNs, endNs uint64) (buckets []*Bucket, sIdx, eIdx int, ok bool) {
	c.structMu.RLock()
	defer c.structMu.RUnlock()

	if !c.initialized || endNs < startNs {
		return nil, 0, 0, false
	}

	base := c.buckets[0].StartNs
	if startNs < base {
		return nil, 0, 0, false
	}

	sIdx = c.findIndexLocked(startNs)
	eIdx = c.findIndexLocked(endNs)
	if sIdx >= c.numBuckets || eIdx >= c.numBuckets {
		return nil, 0, 0, false
	}

	span := make([]*Bucket, eIdx-sIdx+1)
	copy(span, c.buckets[sIdx:eIdx+1])
	return span, sIdx, eIdx, true
}

// CountRange returns the number of samples with startNs <= ts <= endNs.
func (c *Cache) CountRange(startNs, endNs uint64) int {
	buckets, sIdx, eIdx, ok := c.resolveRange(startNs, endNs)
	if !ok {
		return 0
	}
	if sIdx == eIdx {
		return buckets[0].CountInRange(startNs, endNs)
	}

	head, tail := buckets[0], buckets[len(buckets)-1]
	interior := buckets[1 : len(buckets)-1]

	total := head.CountFrom(startNs)
	for _, n := range mapInteriorBuckets(interior, (*Bucket).Count) {
		total += n
	}
	total += tail.CountTo(endNs)
	return total
}

// MinSpread returns the minimum spread with startNs <= ts <= endNs, or
// +Inf if the range holds no samples.
func (c *Cache) MinSpread(startNs, endNs uint64) float64 {
	min, _ := c.minMaxRange(startNs, endNs)
	return min
}

// MaxSpread returns the maximum spread with startNs <= ts <= endNs, or
// -Inf if the range holds no samples.
func (c *Cache) MaxSpread(startNs, endNs uint64) float64 {
	_, max := c.minMaxRange(startNs, endNs)
	return max
}

func (c *Cache) minMaxRange(startNs, endNs uint64) (float64, float64) {
	buckets, sIdx, eIdx, ok := c.resolveRange(startNs, endNs)
	if !ok {
		return math.Inf(1), math.Inf(-1)
	}
	if sIdx == eIdx {
		return buckets[0].minMaxInRange(startNs, endNs)
	}

	head, tail := buckets[0], buckets[len(buckets)-1]
	interior := buckets[1 : len(buckets)-1]

	headMin, headMax := head.minMaxInRange(startNs, head.EndNs)
	tailMin, tailMax := tail.minMaxInRange(tail.StartNs, endNs)

	type pair struct{ min, max float64 }
	pairs := mapInteriorBuckets(interior, func(b *Bucket) pair {
		return pair{b.MinSpread(), b.MaxSpread()}
	})

	min, max := headMin, headMax
	for _, p := range pairs {
		if p.min < min {
			min = p.min
		}
		if p.max > max {
			max = p.max
		}
	}
	if tailMin < min {
		min = tailMin
	}
	if tailMax > max {
		max = tailMax
	}
	return min, max
}

// SpreadPercentiles estimates the spread distribution's quantiles at
// each of qs over startNs <= ts <= endNs, via the three-segment
// decomposition: exact scans over the head/tail partial buckets merged
// with each interior bucket's cached rank sketch (spec component 4.3).
func (c *Cache) SpreadPercentiles(startNs, endNs uint64, qs []float64) []float64 {
	out := make([]float64, len(qs))

	buckets, sIdx, eIdx, ok := c.resolveRange(startNs, endNs)
	if !ok {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	var merged *sketch.Sketch
	if sIdx == eIdx {
		merged = sketch.Build(buckets[0].spreadsInRange(startNs, endNs), endpointSketchTargetSize)
	} else {
		head, tail := buckets[0], buckets[len(buckets)-1]
		interior := buckets[1 : len(buckets)-1]

		sketches := make([]*sketch.Sketch, 0, len(interior)+2)
		sketches = append(sketches, sketch.Build(head.spreadsInRange(startNs, head.EndNs), endpointSketchTargetSize))
		sketches = append(sketches, mapInteriorBuckets(interior, (*Bucket).Sketch)...)
		sketches = append(sketches, sketch.Build(tail.spreadsInRange(tail.StartNs, endNs), endpointSketchTargetSize))
		merged = sketch.Merge(sketches)
	}

	for i, q := range qs {
		out[i] = merged.EstimateQuantile(q)
	}
	return out
}
