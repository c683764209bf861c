// Package service exposes spreadcache's ring cache as an Encore service:
// Insert feeds a market-data document through pkg/loader, Query answers
// count/range/min/max/percentile questions over a time window. It owns
// the only *ringcache.Cache in the process and is the sole caller of
// horizon.Notify, keeping ringcache itself free of any Encore or
// pubsub import.
//
// Mirrors cache-manager/service.go's shape: a Config struct, a package
// singleton built by initService, and thin exported API functions
// delegating to methods on svc.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oterlabs/spreadcache/horizon"
	"github.com/oterlabs/spreadcache/monitoring"
	"github.com/oterlabs/spreadcache/pkg/loader"
	"github.com/oterlabs/spreadcache/pkg/middleware"
	"github.com/oterlabs/spreadcache/ringcache"
)

const serviceName = "spreadcache"

//encore:service
type Service struct {
	cache     *ringcache.Cache
	loader    *loader.Loader
	pool      *loader.Pool
	coalescer *singleflight.Group
	metrics   *monitoring.MetricsCollector
	config    Config
}

var (
	svc  *Service
	once sync.Once
)

func initService() (*Service, error) {
	var err error
	once.Do(func() {
		cfg := DefaultConfig()
		cache := ringcache.New(cfg.NumBuckets, cfg.BucketWidthNs)
		ld := loader.New(cache, cfg.MaxEntriesPerSecond)

		svc = &Service{
			cache:     cache,
			loader:    ld,
			pool:      loader.NewPool(ld, cfg.LoaderWorkers, cfg.LoaderQueueDepth),
			coalescer: &singleflight.Group{},
			metrics:   monitoring.NewMetricsCollector(cfg.LatencyWindow),
			config:    cfg,
		}
	})
	return svc, err
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize spreadcache service: %v", err))
	}
}

// InsertRequest carries one market-data feed document, encoded exactly
// as pkg/loader.LoadReader expects (§6).
type InsertRequest struct {
	Document json.RawMessage `json:"document"`
}

// InsertResponse reports one ingest call's outcome.
type InsertResponse struct {
	BatchID  string `json:"batch_id"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// Insert validates and ingests a market-data document.
//
//encore:api public method=POST path=/spreadcache/insert
func Insert(ctx context.Context, req *InsertRequest) (*InsertResponse, error) {
	if svc == nil {
		return nil, errors.New("service: spreadcache not initialized")
	}
	return svc.Insert(ctx, req)
}

func (s *Service) Insert(ctx context.Context, req *InsertRequest) (*InsertResponse, error) {
	requestID := middleware.NewRequestID()
	ctx = middleware.WithRequestID(ctx, requestID)
	start := time.Now()

	res, err := s.loader.LoadReader(ctx, bytes.NewReader(req.Document))
	duration := time.Since(start)

	if err != nil {
		s.metrics.RecordError()
		middleware.LogOperation(ctx, "insert", duration, err, nil)
		return nil, fmt.Errorf("service: insert: %w", err)
	}

	s.metrics.RecordInsert(res.Accepted, res.Rejected, duration)
	middleware.LogOperation(ctx, "insert", duration, nil, map[string]interface{}{
		"batch_id": res.BatchID,
		"accepted": res.Accepted,
		"rejected": res.Rejected,
	})

	if res.FinalSlide.Slid {
		s.metrics.RecordSlide(res.FinalSlide.BucketsEvicted)
		if notifyErr := horizon.Notify(ctx, serviceName, res.FinalSlide, requestID); notifyErr != nil {
			middleware.LogOperation(ctx, "horizon-notify", 0, notifyErr, nil)
		}
	}

	return &InsertResponse{BatchID: res.BatchID, Accepted: res.Accepted, Rejected: res.Rejected}, nil
}

// InsertBatchRequest carries several independent market-data feed
// documents to ingest concurrently.
type InsertBatchRequest struct {
	Documents []json.RawMessage `json:"documents"`
}

// InsertBatchResponse reports the outcome of each document that was
// ingested, in submission order. A document that failed to decode is
// logged and counted as an error but has no entry here.
type InsertBatchResponse struct {
	Results []InsertResponse `json:"results"`
}

// InsertBatch concurrently ingests several feed documents through a
// bounded worker pool (pkg/loader.Pool), notifying horizon once for
// the last slide observed across the whole batch.
//
//encore:api public method=POST path=/spreadcache/insert-batch
func InsertBatch(ctx context.Context, req *InsertBatchRequest) (*InsertBatchResponse, error) {
	if svc == nil {
		return nil, errors.New("service: spreadcache not initialized")
	}
	return svc.InsertBatch(ctx, req)
}

func (s *Service) InsertBatch(ctx context.Context, req *InsertBatchRequest) (*InsertBatchResponse, error) {
	requestID := middleware.NewRequestID()
	ctx = middleware.WithRequestID(ctx, requestID)
	start := time.Now()

	chans := make([]<-chan loader.BatchResult, len(req.Documents))
	for i, doc := range req.Documents {
		chans[i] = s.pool.Submit(fmt.Sprintf("%s-%d", requestID, i), bytes.NewReader(doc))
	}

	results := make([]InsertResponse, 0, len(req.Documents))
	var finalSlide ringcache.SlideInfo
	for _, ch := range chans {
		br := <-ch
		if br.Err != nil {
			s.metrics.RecordError()
			middleware.LogOperation(ctx, "insert-batch", time.Since(start), br.Err, map[string]interface{}{"batch_id": br.BatchID})
			continue
		}
		s.metrics.RecordInsert(br.Result.Accepted, br.Result.Rejected, 0)
		if br.Result.FinalSlide.Slid {
			finalSlide = br.Result.FinalSlide
		}
		results = append(results, InsertResponse{BatchID: br.Result.BatchID, Accepted: br.Result.Accepted, Rejected: br.Result.Rejected})
	}

	duration := time.Since(start)
	middleware.LogOperation(ctx, "insert-batch", duration, nil, map[string]interface{}{"documents": len(req.Documents)})

	if finalSlide.Slid {
		s.metrics.RecordSlide(finalSlide.BucketsEvicted)
		if notifyErr := horizon.Notify(ctx, serviceName, finalSlide, requestID); notifyErr != nil {
			middleware.LogOperation(ctx, "horizon-notify", 0, notifyErr, nil)
		}
	}

	return &InsertBatchResponse{Results: results}, nil
}

// QueryRequest asks for statistics over the inclusive window
// [StartNs, EndNs]. Percentiles, if non-empty, are quantile fractions
// in [0, 1] (e.g. 0.5 for p50).
type QueryRequest struct {
	StartNs     uint64    `json:"start_ns"`
	EndNs       uint64    `json:"end_ns"`
	Percentiles []float64 `json:"percentiles,omitempty"`
}

// QueryResponse answers a QueryRequest. MinSpread is +Inf, MaxSpread is
// -Inf, and Percentiles entries are NaN when the window has no retained samples
// (spec §7's "no samples in range" edge case).
type QueryResponse struct {
	Count       int       `json:"count"`
	MinSpread   float64   `json:"min_spread"`
	MaxSpread   float64   `json:"max_spread"`
	Percentiles []float64 `json:"percentiles,omitempty"`
}

func (r *QueryRequest) key() string {
	return fmt.Sprintf("%d:%d:%v", r.StartNs, r.EndNs, r.Percentiles)
}

// Query answers count/min/max/percentile questions over a window.
// Identical concurrent queries (same window and percentile set) are
// coalesced into a single ringcache traversal via golang.org/x/sync/singleflight —
// the same request-coalescing concern cache-manager/singleflight.go's
// hand-rolled RequestCoalescer addresses, here served by the real
// library already in the teacher's go.mod.
//
//encore:api public method=POST path=/spreadcache/query
func Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	if svc == nil {
		return nil, errors.New("service: spreadcache not initialized")
	}
	return svc.Query(ctx, req)
}

func (s *Service) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	if req.EndNs < req.StartNs {
		err := fmt.Errorf("service: query: end_ns %d before start_ns %d", req.EndNs, req.StartNs)
		s.metrics.RecordError()
		return nil, err
	}

	start := time.Now()
	v, err, _ := s.coalescer.Do(req.key(), func() (interface{}, error) {
		resp := &QueryResponse{
			Count:     s.cache.CountRange(req.StartNs, req.EndNs),
			MinSpread: s.cache.MinSpread(req.StartNs, req.EndNs),
			MaxSpread: s.cache.MaxSpread(req.StartNs, req.EndNs),
		}
		if len(req.Percentiles) > 0 {
			resp.Percentiles = s.cache.SpreadPercentiles(req.StartNs, req.EndNs, req.Percentiles)
		}
		return resp, nil
	})
	duration := time.Since(start)

	if err != nil {
		s.metrics.RecordError()
		middleware.LogOperation(ctx, "query", duration, err, nil)
		return nil, err
	}

	s.metrics.RecordQuery(duration)
	middleware.LogOperation(ctx, "query", duration, nil, map[string]interface{}{
		"start_ns": req.StartNs,
		"end_ns":   req.EndNs,
	})
	return v.(*QueryResponse), nil
}

// MetricsResponse reports service-level operation counters and latency.
type MetricsResponse struct {
	Counters monitoring.Counters     `json:"counters"`
	Latency  monitoring.LatencyStats `json:"latency"`
}

// GetMetrics returns ingest/query counters and latency percentiles.
//
//encore:api public method=GET path=/spreadcache/metrics
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service: spreadcache not initialized")
	}
	return &MetricsResponse{
		Counters: svc.metrics.Snapshot(),
		Latency:  svc.metrics.LatencyStats(),
	}, nil
}
