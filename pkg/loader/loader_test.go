package loader

import (
	"context"
	"strings"
	"testing"

	"github.com/oterlabs/spreadcache/ringcache"
)

func TestLoadReaderAcceptsValidEntries(t *testing.T) {
	doc := `{
		"market_data_entries": [
			{"utc_epoch_ns": 1000, "bids": [{"price": 100.0, "amount": 1}], "asks": [{"price": 100.5, "amount": 1}]},
			{"utc_epoch_ns": 1100, "bids": [{"price": 100.0, "amount": 1}], "asks": [{"price": 100.4, "amount": 1}]}
		]
	}`

	cache := ringcache.New(10, 1000)
	l := New(cache, 0)

	res, err := l.LoadReader(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if res.Accepted != 2 || res.Rejected != 0 {
		t.Fatalf("Result = %+v, want Accepted=2 Rejected=0", res)
	}
	if cache.Count() != 2 {
		t.Fatalf("cache.Count() = %d, want 2", cache.Count())
	}
	if res.BatchID == "" {
		t.Fatalf("BatchID was not populated")
	}
}

func TestLoadReaderDropsBadTimestamp(t *testing.T) {
	doc := `{"market_data_entries": [
		{"utc_epoch_ns": 0, "bids": [{"price": 1, "amount": 1}], "asks": [{"price": 1.01, "amount": 1}]},
		{"utc_epoch_ns": -5, "bids": [{"price": 1, "amount": 1}], "asks": [{"price": 1.01, "amount": 1}]},
		{"utc_epoch_ns": 1.5, "bids": [{"price": 1, "amount": 1}], "asks": [{"price": 1.01, "amount": 1}]}
	]}`

	cache := ringcache.New(10, 1000)
	l := New(cache, 0)

	res, err := l.LoadReader(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if res.Accepted != 0 || res.Rejected != 3 {
		t.Fatalf("Result = %+v, want Accepted=0 Rejected=3", res)
	}
}

func TestLoadReaderDropsMissingOrEmptySides(t *testing.T) {
	doc := `{"market_data_entries": [
		{"utc_epoch_ns": 10, "bids": [], "asks": [{"price": 1.01, "amount": 1}]},
		{"utc_epoch_ns": 11, "bids": [{"price": 1, "amount": 1}], "asks": []},
		{"utc_epoch_ns": 12, "asks": [{"price": 1.01, "amount": 1}]},
		{"utc_epoch_ns": 13, "bids": [{"price": null, "amount": 1}], "asks": [{"price": 1.01, "amount": 1}]}
	]}`

	cache := ringcache.New(10, 1000)
	l := New(cache, 0)

	res, err := l.LoadReader(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if res.Accepted != 0 || res.Rejected != 4 {
		t.Fatalf("Result = %+v, want Accepted=0 Rejected=4", res)
	}
}

func TestLoadReaderRejectsOutliers(t *testing.T) {
	// avg bid = avg ask = 100; spread = 50, way past 0.03*100 = 3.
	doc := `{"market_data_entries": [
		{"utc_epoch_ns": 10, "bids": [{"price": 100, "amount": 1}], "asks": [{"price": 150, "amount": 1}]}
	]}`

	cache := ringcache.New(10, 1000)
	l := New(cache, 0)

	res, err := l.LoadReader(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if res.Accepted != 0 || res.Rejected != 1 {
		t.Fatalf("Result = %+v, want Accepted=0 Rejected=1 (outlier)", res)
	}
}

func TestLoadReaderComputesBestBidAskSpread(t *testing.T) {
	// Bids highest-first, asks lowest-first: best bid/ask are index 0.
	doc := `{"market_data_entries": [
		{"utc_epoch_ns": 10,
		 "bids": [{"price": 99.5, "amount": 1}, {"price": 99.0, "amount": 2}],
		 "asks": [{"price": 100.0, "amount": 1}, {"price": 100.5, "amount": 2}]}
	]}`

	cache := ringcache.New(10, 1000)
	l := New(cache, 0)

	res, err := l.LoadReader(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if res.Accepted != 1 {
		t.Fatalf("Result = %+v, want Accepted=1", res)
	}
	if got := cache.MinSpread(10, 10); got != 0.5 {
		t.Fatalf("spread = %v, want 0.5 (100.0 - 99.5)", got)
	}
}

func TestLoadReaderMalformedDocumentErrors(t *testing.T) {
	cache := ringcache.New(10, 1000)
	l := New(cache, 0)

	if _, err := l.LoadReader(context.Background(), strings.NewReader("not json")); err == nil {
		t.Fatalf("expected an error for a malformed document")
	}
}
