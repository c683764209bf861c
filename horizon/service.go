// Package horizon coordinates horizon-slide notifications: whenever a
// cache's ring advances (spec §5, an atomic, observable structural
// change), the owning service calls Notify, which records the event in
// a bounded audit trail and broadcasts it on pkg/pubsub.TopicSlide so
// other components can observe the same slide.
//
// Adapted from invalidation/service.go's shape — a pattern matcher,
// Pub/Sub broadcast, and metrics, backed by an audit logger — with the
// Postgres-backed audit log replaced by an in-memory bounded one (see
// AuditLogger) and key/pattern invalidation replaced by the cache's
// single structural event: the slide.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	encorepubsub "encore.dev/pubsub"

	"github.com/oterlabs/spreadcache/pkg/pubsub"
	"github.com/oterlabs/spreadcache/ringcache"
)

//encore:service
type Service struct {
	audit   *AuditLogger
	metrics *Metrics
}

// Metrics tracks horizon coordination counters.
type Metrics struct {
	SlidesRecorded atomic.Int64
	PublishErrors  atomic.Int64
}

// SlideTopic broadcasts every recorded slide event at least once.
var SlideTopic = encorepubsub.NewTopic[*pubsub.SlideEvent](
	pubsub.TopicSlide,
	encorepubsub.TopicConfig{DeliveryGuarantee: encorepubsub.AtLeastOnce},
)

var svc *Service

func initService() (*Service, error) {
	return &Service{
		audit:   NewAuditLogger(1000),
		metrics: &Metrics{},
	}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize horizon service: %v", err))
	}
}

// Notify records a ring slide and broadcasts it. serviceName identifies
// the calling cache instance; requestID correlates the slide back to
// the admission or maintenance sweep that triggered it. A zero-value
// SlideInfo (Slid == false) is a no-op.
func Notify(ctx context.Context, serviceName string, info ringcache.SlideInfo, requestID string) error {
	if svc == nil {
		return errors.New("horizon: service not initialized")
	}
	return svc.notify(ctx, serviceName, info, requestID)
}

func (s *Service) notify(ctx context.Context, serviceName string, info ringcache.SlideInfo, requestID string) error {
	if !info.Slid {
		return nil
	}

	event := pubsub.SlideEvent{
		Version:        pubsub.EventVersion1,
		Service:        serviceName,
		NewStartNs:     info.NewStartNs,
		BucketsEvicted: info.BucketsEvicted,
		SamplesEvicted: info.SamplesEvicted,
		TriggeredAt:    time.Now(),
		RequestID:      requestID,
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("horizon: invalid slide event: %w", err)
	}

	s.audit.Insert(event)
	s.metrics.SlidesRecorded.Add(1)

	if _, err := SlideTopic.Publish(ctx, &event); err != nil {
		s.metrics.PublishErrors.Add(1)
		return fmt.Errorf("horizon: publish slide event: %w", err)
	}
	return nil
}

// GetRecentSlidesRequest requests up to Limit recent slide events.
type GetRecentSlidesRequest struct {
	Limit int `json:"limit"`
}

// GetRecentSlidesResponse is the recent slide history, most recent last.
type GetRecentSlidesResponse struct {
	Events []pubsub.SlideEvent `json:"events"`
}

// GetRecentSlides returns recent slide history for observability.
//
//encore:api public method=GET path=/horizon/slides
func GetRecentSlides(ctx context.Context, req *GetRecentSlidesRequest) (*GetRecentSlidesResponse, error) {
	if svc == nil {
		return nil, errors.New("horizon: service not initialized")
	}
	return svc.GetRecentSlides(ctx, req)
}

func (s *Service) GetRecentSlides(ctx context.Context, req *GetRecentSlidesRequest) (*GetRecentSlidesResponse, error) {
	logs := s.audit.GetRecent(req.Limit)
	events := make([]pubsub.SlideEvent, len(logs))
	for i, l := range logs {
		events[i] = l.Event
	}
	return &GetRecentSlidesResponse{Events: events}, nil
}

// MetricsResponse reports horizon coordination counters.
type MetricsResponse struct {
	SlidesRecorded int64 `json:"slides_recorded"`
	PublishErrors  int64 `json:"publish_errors"`
}

// GetMetrics returns horizon service metrics.
//
//encore:api public method=GET path=/horizon/metrics
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("horizon: service not initialized")
	}
	return &MetricsResponse{
		SlidesRecorded: svc.metrics.SlidesRecorded.Load(),
		PublishErrors:  svc.metrics.PublishErrors.Load(),
	}, nil
}
