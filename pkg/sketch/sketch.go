// Package sketch provides the rank-sketch adapter used to estimate spread
// percentiles over a bucket or a composed range of buckets.
//
// It wraps github.com/influxdata/tdigest, the same t-digest family the
// feed this cache was ported from used (the Rust tdigest crate, see
// original_source/src/types/bucket.rs's get_tdigest). Below a bounded
// sample count it skips the digest entirely and answers quantiles by
// exact linear interpolation between order statistics, which is what
// keeps small-N percentile tests deterministic: a t-digest degrades to
// exactly this once every sample fits in its own centroid, so the split
// is an optimization, not a behavior change.
package sketch

import (
	"math"
	"sort"

	"github.com/influxdata/tdigest"
)

// exactLimit bounds how many raw samples this adapter will track
// losslessly before switching to an approximate t-digest. Both per-bucket
// builds (target size ~100) and endpoint batch builds (target size
// ~1000) stay under this in the common case, so most queries never
// touch the approximate path at all.
const exactLimit = 1000

type centroid struct {
	value  float64
	weight float64
}

// Sketch estimates the empirical CDF of a set of spreads, mergeably.
type Sketch struct {
	exact  []centroid // sorted by value; nil once approx is true
	digest *tdigest.TDigest
	approx bool
	total  float64
}

// Build constructs a sketch from a batch of spread values, bounding it to
// roughly targetSize centroids if it falls back to the approximate
// regime. An empty input yields an empty sketch (see Empty), per the
// adapter's documented failure mode.
func Build(values []float64, targetSize int) *Sketch {
	if len(values) == 0 {
		return &Sketch{}
	}
	if len(values) <= exactLimit {
		exact := make([]centroid, len(values))
		for i, v := range values {
			exact[i] = centroid{value: v, weight: 1}
		}
		sort.Slice(exact, func(i, j int) bool { return exact[i].value < exact[j].value })
		return &Sketch{exact: exact, total: float64(len(values))}
	}

	if targetSize <= 0 {
		targetSize = 100
	}
	d := tdigest.NewWithCompression(float64(targetSize))
	for _, v := range values {
		d.Add(v, 1)
	}
	return &Sketch{approx: true, digest: d, total: float64(len(values))}
}

// Empty reports whether the sketch was built (or merged) from zero
// samples; its quantile queries return NaN.
func (s *Sketch) Empty() bool {
	return s == nil || s.total == 0
}

// EstimateQuantile returns the interpolated value at rank q, q in [0,1].
// NaN for an empty sketch — callers are responsible for avoiding that.
func (s *Sketch) EstimateQuantile(q float64) float64 {
	if s.Empty() {
		return math.NaN()
	}
	if s.approx {
		return s.digest.Quantile(q)
	}
	return exactQuantile(s.exact, s.total, q)
}

// exactQuantile interpolates between the two nearest order statistics
// using the same weight-centered CDF convention a t-digest converges to
// once every sample occupies its own centroid: each centroid of weight w
// is treated as covering the cumulative-weight interval of width w
// centered at its midpoint, and the quantile is the linear interpolation
// between the two centroid values whose midpoints bracket q*total.
func exactQuantile(sorted []centroid, total, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0].value
	}

	centers := make([]float64, len(sorted))
	cumBefore := 0.0
	for i, c := range sorted {
		centers[i] = cumBefore + c.weight/2
		cumBefore += c.weight
	}

	target := q * total
	last := len(sorted) - 1
	if target <= centers[0] {
		return sorted[0].value
	}
	if target >= centers[last] {
		return sorted[last].value
	}

	hi := sort.Search(len(centers), func(i int) bool { return centers[i] >= target })
	lo := hi - 1
	frac := (target - centers[lo]) / (centers[hi] - centers[lo])
	return sorted[lo].value + frac*(sorted[hi].value-sorted[lo].value)
}

// Merge fuses a set of sketches, associatively and commutatively. Nil or
// empty sketches contribute nothing, matching the "empty-range partial
// scan contributes no sketch" rule rather than an explicit empty one.
func Merge(sketches []*Sketch) *Sketch {
	nonEmpty := make([]*Sketch, 0, len(sketches))
	for _, s := range sketches {
		if !s.Empty() {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return &Sketch{}
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}

	degrade := false
	exactCount := 0
	for _, s := range nonEmpty {
		if s.approx {
			degrade = true
		} else {
			exactCount += len(s.exact)
		}
	}

	total := 0.0
	for _, s := range nonEmpty {
		total += s.total
	}

	if !degrade && exactCount <= exactLimit {
		merged := make([]centroid, 0, exactCount)
		for _, s := range nonEmpty {
			merged = append(merged, s.exact...)
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].value < merged[j].value })
		return &Sketch{exact: merged, total: total}
	}

	d := tdigest.NewWithCompression(1000)
	for _, s := range nonEmpty {
		if s.approx {
			d.Merge(s.digest)
		} else {
			for _, c := range s.exact {
				d.Add(c.value, c.weight)
			}
		}
	}
	return &Sketch{approx: true, digest: d, total: total}
}
