package ringcache

import (
	"math"
	"testing"
)

func TestBucketInsertAcceptsWithinRange(t *testing.T) {
	b := NewBucket(100, 200)

	if !b.Insert(Sample{TsNs: 100, Spread: 1.0}) {
		t.Fatalf("expected ts == StartNs to be accepted")
	}
	if !b.Insert(Sample{TsNs: 199, Spread: 2.0}) {
		t.Fatalf("expected ts == EndNs-1 to be accepted")
	}
	if b.Count() != 2 {
		t.Fatalf("count = %d, want 2", b.Count())
	}
}

func TestBucketInsertRejectsOutOfRange(t *testing.T) {
	b := NewBucket(100, 200)

	if b.Insert(Sample{TsNs: 99, Spread: 1.0}) {
		t.Fatalf("expected ts < StartNs to be rejected")
	}
	if b.Insert(Sample{TsNs: 200, Spread: 1.0}) {
		t.Fatalf("expected ts == EndNs to be rejected (half-open interval)")
	}
	if b.Count() != 0 {
		t.Fatalf("count = %d, want 0", b.Count())
	}
	if !math.IsInf(b.MinSpread(), 1) || !math.IsInf(b.MaxSpread(), -1) {
		t.Fatalf("rejected inserts must not touch the sentinels")
	}
}

func TestBucketMinMaxTracking(t *testing.T) {
	b := NewBucket(0, 100)
	for _, sp := range []float64{5, 1, 9, 3} {
		b.Insert(Sample{TsNs: 1, Spread: sp})
	}
	if b.MinSpread() != 1 || b.MaxSpread() != 9 {
		t.Fatalf("min/max = %v/%v, want 1/9", b.MinSpread(), b.MaxSpread())
	}
}

func TestBucketRemoveUpToOutsideRangeIsNoop(t *testing.T) {
	b := NewBucket(100, 200)
	b.Insert(Sample{TsNs: 150, Spread: 1.0})

	if n := b.RemoveUpTo(99); n != 0 {
		t.Fatalf("RemoveUpTo below StartNs: got %d removed, want 0", n)
	}
	if n := b.RemoveUpTo(201); n != 0 {
		t.Fatalf("RemoveUpTo above EndNs: got %d removed, want 0", n)
	}
	if b.Count() != 1 {
		t.Fatalf("count = %d, want 1 (untouched)", b.Count())
	}
}

func TestBucketRemoveUpToIsStrict(t *testing.T) {
	b := NewBucket(0, 100)
	b.Insert(Sample{TsNs: 50, Spread: 1.0})
	b.Insert(Sample{TsNs: 51, Spread: 2.0})

	removed := b.RemoveUpTo(50)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1 (threshold is exclusive of survivors: ts > 50 only)", removed)
	}
	if b.Count() != 1 {
		t.Fatalf("count = %d, want 1", b.Count())
	}
	if b.MinSpread() != 2 || b.MaxSpread() != 2 {
		t.Fatalf("min/max after purge = %v/%v, want 2/2", b.MinSpread(), b.MaxSpread())
	}
}

func TestBucketRemoveUpToResetsSentinelsWhenEmptied(t *testing.T) {
	b := NewBucket(0, 100)
	b.Insert(Sample{TsNs: 10, Spread: 5.0})

	b.RemoveUpTo(50)
	if b.Count() != 0 {
		t.Fatalf("count = %d, want 0", b.Count())
	}
	if !math.IsInf(b.MinSpread(), 1) || !math.IsInf(b.MaxSpread(), -1) {
		t.Fatalf("min/max after full purge = %v/%v, want +Inf/-Inf", b.MinSpread(), b.MaxSpread())
	}
}

func TestBucketScanFromAndTo(t *testing.T) {
	b := NewBucket(0, 100)
	for _, ts := range []uint64{10, 20, 30, 40} {
		b.Insert(Sample{TsNs: ts, Spread: float64(ts)})
	}

	if n := b.CountFrom(25); n != 2 {
		t.Fatalf("CountFrom(25) = %d, want 2", n)
	}
	if n := b.CountTo(25); n != 2 {
		t.Fatalf("CountTo(25) = %d, want 2", n)
	}
	if got := b.ScanFrom(200); got != nil {
		t.Fatalf("ScanFrom outside [StartNs,EndNs] = %v, want nil", got)
	}
	if got := b.ScanTo(200); got != nil {
		t.Fatalf("ScanTo(t) with t > EndNs = %v, want nil", got)
	}
}

func TestBucketSketchLazyBuildAndInvalidation(t *testing.T) {
	b := NewBucket(0, 100)
	for i := 0; i < 20; i++ {
		b.Insert(Sample{TsNs: uint64(i), Spread: float64(i)})
	}

	sk := b.Sketch()
	if got := sk.EstimateQuantile(0.1); got != 1.5 {
		t.Fatalf("q=0.1 over 0..19 = %v, want 1.5", got)
	}

	same := b.Sketch()
	if sk != same {
		t.Fatalf("Sketch() rebuilt without an intervening mutation")
	}

	b.Insert(Sample{TsNs: 21, Spread: 1000})
	if rebuilt := b.Sketch(); rebuilt == sk {
		t.Fatalf("Sketch() returned a stale sketch after a mutation invalidated it")
	}
}
