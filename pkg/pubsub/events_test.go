package pubsub

import (
	"testing"
	"time"
)

func TestSlideEvent_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   SlideEvent
		wantErr bool
	}{
		{
			name: "valid",
			event: SlideEvent{
				Version:        EventVersion1,
				Service:        "horizon",
				NewStartNs:     1_000_000_000,
				BucketsEvicted: 3,
				SamplesEvicted: 42,
				TriggeredAt:    now,
				RequestID:      "req-123",
			},
			wantErr: false,
		},
		{
			name: "valid zero eviction",
			event: SlideEvent{
				Version:        EventVersion1,
				Service:        "horizon",
				NewStartNs:     0,
				BucketsEvicted: 0,
				SamplesEvicted: 0,
				TriggeredAt:    now,
				RequestID:      "req-456",
			},
			wantErr: false,
		},
		{
			name: "invalid version",
			event: SlideEvent{
				Version:     999,
				Service:     "horizon",
				TriggeredAt: now,
				RequestID:   "req-123",
			},
			wantErr: true,
		},
		{
			name: "missing service",
			event: SlideEvent{
				Version:     EventVersion1,
				TriggeredAt: now,
				RequestID:   "req-123",
			},
			wantErr: true,
		},
		{
			name: "negative buckets_evicted",
			event: SlideEvent{
				Version:        EventVersion1,
				Service:        "horizon",
				BucketsEvicted: -1,
				TriggeredAt:    now,
				RequestID:      "req-123",
			},
			wantErr: true,
		},
		{
			name: "negative samples_evicted",
			event: SlideEvent{
				Version:        EventVersion1,
				Service:        "horizon",
				SamplesEvicted: -1,
				TriggeredAt:    now,
				RequestID:      "req-123",
			},
			wantErr: true,
		},
		{
			name: "zero triggered_at",
			event: SlideEvent{
				Version:   EventVersion1,
				Service:   "horizon",
				RequestID: "req-123",
			},
			wantErr: true,
		},
		{
			name: "missing request_id",
			event: SlideEvent{
				Version:     EventVersion1,
				Service:     "horizon",
				TriggeredAt: now,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlideEvent_JSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	event := SlideEvent{
		Version:        EventVersion1,
		Service:        "horizon",
		NewStartNs:     5_000_000_000,
		BucketsEvicted: 12,
		SamplesEvicted: 340,
		TriggeredAt:    now,
		Meta:           map[string]string{"reason": "admission"},
		RequestID:      "req-789",
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	decoded, err := SlideEventFromJSON(data)
	if err != nil {
		t.Fatalf("SlideEventFromJSON() error = %v", err)
	}

	if decoded.Version != event.Version {
		t.Errorf("Version = %v, want %v", decoded.Version, event.Version)
	}
	if decoded.Service != event.Service {
		t.Errorf("Service = %v, want %v", decoded.Service, event.Service)
	}
	if decoded.NewStartNs != event.NewStartNs {
		t.Errorf("NewStartNs = %v, want %v", decoded.NewStartNs, event.NewStartNs)
	}
	if decoded.BucketsEvicted != event.BucketsEvicted {
		t.Errorf("BucketsEvicted = %v, want %v", decoded.BucketsEvicted, event.BucketsEvicted)
	}
	if decoded.SamplesEvicted != event.SamplesEvicted {
		t.Errorf("SamplesEvicted = %v, want %v", decoded.SamplesEvicted, event.SamplesEvicted)
	}
	if !decoded.TriggeredAt.Equal(event.TriggeredAt) {
		t.Errorf("TriggeredAt = %v, want %v", decoded.TriggeredAt, event.TriggeredAt)
	}
	if decoded.Meta["reason"] != event.Meta["reason"] {
		t.Errorf("Meta[reason] = %v, want %v", decoded.Meta["reason"], event.Meta["reason"])
	}
	if decoded.RequestID != event.RequestID {
		t.Errorf("RequestID = %v, want %v", decoded.RequestID, event.RequestID)
	}
}

func TestAllTopicsContainsSlide(t *testing.T) {
	if !IsValidTopic(TopicSlide) {
		t.Fatalf("IsValidTopic(%q) = false, want true", TopicSlide)
	}
	if IsValidTopic("not.a.real.topic") {
		t.Fatalf("IsValidTopic on an unknown topic = true, want false")
	}
}
