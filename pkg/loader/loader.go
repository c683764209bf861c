// Package loader implements the input adapter spec.md §4.5 describes only
// as a contract: parsing a market-data feed document, validating and
// computing spreads, rejecting outliers, and feeding the result into
// ringcache.Cache.Insert. It is a straight port of behavior (not code)
// from the feed reader this cache was distilled from.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oterlabs/spreadcache/ringcache"
)

// outlierFactor bounds an accepted spread to 0.03 * the average price on
// either side (spec §4.5).
const outlierFactor = 0.03

// priceLevel is one bid or ask rung. Price and Amount are pointers so a
// JSON null or missing field is distinguishable from a legitimate zero.
type priceLevel struct {
	Price  *float64 `json:"price"`
	Amount *float64 `json:"amount"`
}

func (p priceLevel) valid() bool {
	return p.Price != nil && p.Amount != nil
}

type rawEntry struct {
	UtcEpochNs json.Number  `json:"utc_epoch_ns"`
	Bids       []priceLevel `json:"bids"`
	Asks       []priceLevel `json:"asks"`
}

type feedDocument struct {
	MarketDataEntries []rawEntry `json:"market_data_entries"`
}

// Result summarizes one LoadReader call.
type Result struct {
	BatchID  string
	Accepted int
	Rejected int
	// FinalSlide is the most recent ringcache.SlideInfo reporting Slid
	// == true across this call's inserts, or the zero value if the
	// horizon never advanced. Callers coordinating horizon notifications
	// (see horizon.Notify) only need the latest one: each slide already
	// carries the cache's current NewStartNs.
	FinalSlide ringcache.SlideInfo
}

// Loader validates and ingests a market-data feed document into a Cache,
// throttling ingestion bursts with a token-bucket limiter.
type Loader struct {
	cache   *ringcache.Cache
	limiter *rate.Limiter
}

// New creates a Loader writing into cache, admitting at most
// maxEntriesPerSecond validated samples per second (burst equal to that
// rate). maxEntriesPerSecond <= 0 disables throttling.
func New(cache *ringcache.Cache, maxEntriesPerSecond int) *Loader {
	l := &Loader{cache: cache}
	if maxEntriesPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(maxEntriesPerSecond), maxEntriesPerSecond)
	}
	return l
}

// LoadReader parses a market_data_entries JSON document from r, validates
// and filters entries per §4.5, and inserts the survivors into the
// cache. It never returns an error for a malformed individual entry —
// those are dropped and counted in Result.Rejected — only for a
// structurally invalid document or a context cancellation.
func (l *Loader) LoadReader(ctx context.Context, r io.Reader) (Result, error) {
	var doc feedDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("loader: decode feed document: %w", err)
	}

	res := Result{BatchID: uuid.NewString()}
	for _, raw := range doc.MarketDataEntries {
		sample, ok := validate(raw)
		if !ok {
			res.Rejected++
			continue
		}

		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return res, fmt.Errorf("loader: rate limiter wait: %w", err)
			}
		}

		if info := l.cache.Insert(sample); info.Slid {
			res.FinalSlide = info
		}
		res.Accepted++
	}
	return res, nil
}

// validate applies §4.5's filter chain to one raw entry: timestamp
// well-formedness, non-empty bid/ask sides after dropping null levels,
// spread computation, and the outlier rule. Returns ok=false for any
// rejection — the caller doesn't distinguish reasons, only counts them.
func validate(raw rawEntry) (ringcache.Sample, bool) {
	ts, err := raw.UtcEpochNs.Int64()
	if err != nil || ts <= 0 {
		return ringcache.Sample{}, false
	}

	bids := dropInvalidLevels(raw.Bids)
	asks := dropInvalidLevels(raw.Asks)
	if len(bids) == 0 || len(asks) == 0 {
		return ringcache.Sample{}, false
	}

	// Bids sorted highest-first, asks lowest-first (§6): best bid and
	// best ask are both index 0.
	bestBid, bestAsk := *bids[0].Price, *asks[0].Price
	spread := bestAsk - bestBid
	if math.IsNaN(spread) || math.IsInf(spread, 0) {
		return ringcache.Sample{}, false
	}

	aveBid := avgPrice(bids)
	aveAsk := avgPrice(asks)
	if math.Abs(spread) >= outlierFactor*aveAsk || math.Abs(spread) > outlierFactor*aveBid {
		return ringcache.Sample{}, false
	}

	return ringcache.Sample{TsNs: uint64(ts), Spread: spread}, true
}

func dropInvalidLevels(levels []priceLevel) []priceLevel {
	out := make([]priceLevel, 0, len(levels))
	for _, l := range levels {
		if l.valid() {
			out = append(out, l)
		}
	}
	return out
}

func avgPrice(levels []priceLevel) float64 {
	sum := 0.0
	for _, l := range levels {
		sum += *l.Price
	}
	return sum / float64(len(levels))
}
