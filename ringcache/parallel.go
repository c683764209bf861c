package ringcache

import "golang.org/x/sync/errgroup"

// parallelFanoutThreshold is the minimum number of interior buckets a
// range query must span before the work is farmed out across
// goroutines (spec §5: "may fan out... taking a read lock per bucket
// independently"). Below it, goroutine spawn overhead outweighs the
// savings from a sequential scan.
const parallelFanoutThreshold = 64

// mapInteriorBuckets applies fn to every bucket in buckets and returns
// one result per bucket, in order. Each bucket's own RWMutex is what
// makes the fan-out safe — there is no cross-bucket state for fn to
// race on, so results[i] can be written from its own goroutine with no
// further synchronization.
func mapInteriorBuckets[T any](buckets []*Bucket, fn func(*Bucket) T) []T {
	results := make([]T, len(buckets))
	if len(buckets) < parallelFanoutThreshold {
		for i, b := range buckets {
			results[i] = fn(b)
		}
		return results
	}

	var g errgroup.Group
	for i, b := range buckets {
		i, b := i, b
		g.Go(func() error {
			results[i] = fn(b)
			return nil
		})
	}
	_ = g.Wait() // fn never errors; Wait only waits out completion
	return results
}
