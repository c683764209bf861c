package service

import "time"

// Config holds construction-time parameters for the ingest/query service.
// There is no env-var/flag parsing layer: the core has no CLI (Non-goals),
// so a Config is always built explicitly, following cache-manager/service.go's
// Config struct.
type Config struct {
	// NumBuckets and BucketWidthNs size the horizon: NumBuckets *
	// BucketWidthNs nanoseconds of retained history.
	NumBuckets    int
	BucketWidthNs uint64

	// MaxEntriesPerSecond throttles loader ingestion bursts (0 disables
	// throttling).
	MaxEntriesPerSecond int

	// LoaderWorkers and LoaderQueueDepth size the concurrent batch
	// ingestion pool.
	LoaderWorkers    int
	LoaderQueueDepth int

	// LatencyWindow is the number of recent operation latencies retained
	// for percentile reporting.
	LatencyWindow int

	// MaintenanceInterval is the nominal period of the background sweep
	// that evicts buckets aged out of the horizon on wall-clock time. The
	// sweep's cron job (cron.go) runs on a fixed every-minute schedule and
	// does not read this field.
	MaintenanceInterval time.Duration
}

// DefaultConfig returns spreadcache's standard 1-hour horizon at 100ms
// resolution: 36,000 buckets of 100,000,000ns each.
func DefaultConfig() Config {
	return Config{
		NumBuckets:          36_000,
		BucketWidthNs:       100_000_000,
		MaxEntriesPerSecond: 0,
		LoaderWorkers:       4,
		LoaderQueueDepth:    16,
		LatencyWindow:       1000,
		MaintenanceInterval: time.Minute,
	}
}
