// Package pubsub provides topic names and event type definitions for
// spreadcache's horizon-coordination event stream.
//
// Topic Naming Convention:
//   - horizon.slide: a cache's sliding window advanced, evicting buckets
//
// Design Notes:
//   - Topics are defined as constants to avoid typos and enable compile-time checks
//   - Version field in events enables schema evolution without breaking consumers
//   - No direct Encore dependencies to keep pkg/ reusable across services
package pubsub

// Topic name constants for Encore Pub/Sub integration.
// These should be used when defining pubsub.Topic[T] in service code.
const (
	// TopicSlide is published when a cache's horizon advances: an
	// admission evicted whole head buckets, or a maintenance sweep
	// evicted whole buckets or purged samples from the head bucket.
	// Event type: SlideEvent
	// Publishers: horizon.Service
	// Subscribers: none in this module
	TopicSlide = "horizon.slide"
)

// AllTopics returns all defined topic names.
// Useful for validation, testing, and administrative tools.
func AllTopics() []string {
	return []string{
		TopicSlide,
	}
}

// IsValidTopic checks if the given topic name is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range AllTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// TopicMetadata provides descriptive information about topics.
type TopicMetadata struct {
	Name        string
	Description string
	EventType   string
}

// GetTopicMetadata returns metadata for all topics.
// Useful for documentation generation and admin UIs.
func GetTopicMetadata() []TopicMetadata {
	return []TopicMetadata{
		{
			Name:        TopicSlide,
			Description: "Horizon slide notifications: a cache's window advanced and evicted buckets",
			EventType:   "SlideEvent",
		},
	}
}
