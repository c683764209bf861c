package service

import (
	"context"
	"time"

	"encore.dev/cron"

	"github.com/oterlabs/spreadcache/horizon"
	"github.com/oterlabs/spreadcache/pkg/middleware"
)

// MaintenanceSweep periodically evicts buckets that have aged out of
// the horizon on wall-clock time, independent of insert-triggered
// slides — a feed that stops sending still needs to shed
// stale data. Grounded on warming/cron.go's cron.NewJob wiring.
var _ = cron.NewJob("spreadcache-maintenance-sweep", cron.JobConfig{
	Title:    "Spreadcache Horizon Maintenance Sweep",
	Schedule: "* * * * *",
	Endpoint: MaintenanceSweep,
})

//encore:api private
func MaintenanceSweep(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	return svc.runMaintenanceSweep(ctx)
}

func (s *Service) runMaintenanceSweep(ctx context.Context) error {
	requestID := middleware.NewRequestID()
	ctx = middleware.WithRequestID(ctx, requestID)
	start := time.Now()

	horizonNs := uint64(s.config.NumBuckets) * s.config.BucketWidthNs
	nowNs := uint64(time.Now().UnixNano())
	if nowNs < horizonNs {
		return nil
	}
	threshold := nowNs - horizonNs

	info := s.cache.RemoveUpTo(threshold)
	middleware.LogOperation(ctx, "maintenance-sweep", time.Since(start), nil, map[string]interface{}{
		"buckets_evicted": info.BucketsEvicted,
		"samples_evicted": info.SamplesEvicted,
	})

	if !info.Slid {
		return nil
	}
	s.metrics.RecordSlide(info.BucketsEvicted)
	if err := horizon.Notify(ctx, serviceName, info, requestID); err != nil {
		middleware.LogOperation(ctx, "horizon-notify", 0, err, nil)
		return err
	}
	return nil
}
