package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event versioning strategy:
// - Version 1: Initial schema
// - Future versions: Add fields, never remove (backward compatible)
// - Consumers should check Version and handle appropriately

const (
	// EventVersion1 is the current event schema version
	EventVersion1 = 1
)

// SlideEvent represents one horizon advance: the ring evicted zero or
// more whole head buckets and extended the same number of empty
// buckets at the tail. Published to TopicSlide.
//
// Design notes:
//   - NewStartNs is always a multiple of the cache's bucket width.
//   - BucketsEvicted counts whole buckets popped, not partial-bucket
//     purges within the new head.
//   - RequestID correlates a slide back to the admission that triggered it.
type SlideEvent struct {
	// Version of the event schema (for backward compatibility)
	Version int `json:"version"`

	// Service that owns the cache whose horizon slid
	Service string `json:"service"`

	// NewStartNs is the new buckets[0].StartNs after the slide
	NewStartNs uint64 `json:"new_start_ns"`

	// BucketsEvicted is the number of whole buckets popped from the head
	BucketsEvicted int `json:"buckets_evicted"`

	// SamplesEvicted is the total number of samples removed by the slide
	SamplesEvicted int `json:"samples_evicted"`

	// TriggeredAt is the time the slide occurred
	TriggeredAt time.Time `json:"triggered_at"`

	// Meta contains optional metadata (e.g., "reason=admission", "reason=sweep")
	Meta map[string]string `json:"meta,omitempty"`

	// RequestID for distributed tracing and correlation
	RequestID string `json:"request_id"`
}

// Validate checks if the SlideEvent is well-formed.
func (e *SlideEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if e.BucketsEvicted < 0 || e.SamplesEvicted < 0 {
		return errors.New("buckets_evicted and samples_evicted cannot be negative")
	}

	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *SlideEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SlideEventFromJSON deserializes a SlideEvent from JSON.
func SlideEventFromJSON(data []byte) (*SlideEvent, error) {
	var e SlideEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal SlideEvent: %w", err)
	}
	return &e, nil
}
