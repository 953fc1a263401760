// Package backpressure sizes consumer batches and poll delays from
// observed throughput and lag. It is advisory only: nothing here blocks
// or rejects a call, callers choose whether to honor the recommendations.
package backpressure

import (
	"sort"
	"sync"
	"time"
)

const (
	// Batch size bounds and the starting point for new consumers.
	maxBatchSize     = 1000
	minBatchSize     = 10
	defaultBatchSize = 100

	// lowRate halves the batch; highRate with highLag grows it.
	lowRate  = 10.0
	highRate = 100.0
	highLag  = 50

	// Poll delay recommendations in ms.
	fastPollMs   = 500
	normalPollMs = 1000
	slowPollMs   = 5000

	// minPollSpacingMs is the floor under which back-to-back polls are
	// flagged for throttling.
	minPollSpacingMs = 1000

	// idleEvictAfter drops trackers for consumers that went quiet.
	idleEvictAfter = 5 * time.Minute
)

// tracker is the per-consumer throughput state.
type tracker struct {
	lastPollMs int64
	processed  int64
	rate       float64
	lag        int64
}

// Advisor tracks per-consumer poll metrics and recommends batch sizes,
// throttling, and poll delays.
type Advisor struct {
	mu       sync.Mutex
	trackers map[string]*tracker

	// nowMs is swappable for tests.
	nowMs func() int64
}

// New builds an empty Advisor.
func New() *Advisor {
	return &Advisor{
		trackers: map[string]*tracker{},
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

func key(groupID, consumerID string) string { return groupID + "/" + consumerID }

// RecordPoll folds one delivery into the consumer's rolling metrics. The
// processing rate is derived from the wall-clock delta since the previous
// recorded poll.
func (a *Advisor) RecordPoll(groupID, consumerID string, received int, lagScore int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.nowMs()
	k := key(groupID, consumerID)
	tr, ok := a.trackers[k]
	if !ok {
		tr = &tracker{}
		a.trackers[k] = tr
	}
	if tr.lastPollMs > 0 && now > tr.lastPollMs {
		tr.rate = float64(received) * 1000 / float64(now-tr.lastPollMs)
	}
	tr.processed += int64(received)
	tr.lag = lagScore
	tr.lastPollMs = now
}

// BatchSize recommends how many messages the consumer's next poll should
// request. The first poll passes the request through capped; after that a
// struggling consumer gets half, a fast-and-lagging one gets half again
// more, and everyone else keeps what they asked for.
func (a *Advisor) BatchSize(groupID, consumerID string, requested int) int {
	if requested <= 0 {
		requested = defaultBatchSize
	}
	if requested > maxBatchSize {
		requested = maxBatchSize
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tr, ok := a.trackers[key(groupID, consumerID)]
	if !ok || tr.lastPollMs == 0 {
		return requested
	}
	switch {
	case tr.rate < lowRate:
		if half := requested / 2; half > minBatchSize {
			return half
		}
		return minBatchSize
	case tr.rate > highRate && tr.lag > highLag:
		if grown := requested * 3 / 2; grown < maxBatchSize {
			return grown
		}
		return maxBatchSize
	}
	return requested
}

// ShouldThrottle reports whether the consumer is polling too hot: either
// the last poll was under a second ago, or it has stalled (near-zero rate
// after having processed something).
func (a *Advisor) ShouldThrottle(groupID, consumerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	tr, ok := a.trackers[key(groupID, consumerID)]
	if !ok {
		return false
	}
	if a.nowMs()-tr.lastPollMs < minPollSpacingMs {
		return true
	}
	return tr.rate < 1 && tr.processed > 0
}

// RecommendedDelayMs suggests how long the consumer should wait before
// its next poll.
func (a *Advisor) RecommendedDelayMs(groupID, consumerID string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	tr, ok := a.trackers[key(groupID, consumerID)]
	if !ok {
		return normalPollMs
	}
	switch {
	case tr.rate < lowRate:
		return slowPollMs
	case tr.rate > highRate && tr.lag <= highLag:
		return fastPollMs
	}
	return normalPollMs
}

// Snapshot is the externally visible state of one tracked consumer.
type Snapshot struct {
	GroupID    string  `json:"groupId"`
	ConsumerID string  `json:"consumerId"`
	Rate       float64 `json:"rate"`
	Processed  int64   `json:"processed"`
	Lag        int64   `json:"lag"`
	LastPollMs int64   `json:"lastPollMs"`
}

// Metrics lists every tracked consumer, stable by key.
func (a *Advisor) Metrics() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.trackers))
	for k := range a.trackers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		tr := a.trackers[k]
		snap := Snapshot{Rate: tr.rate, Processed: tr.processed, Lag: tr.lag, LastPollMs: tr.lastPollMs}
		for i := 0; i < len(k); i++ {
			if k[i] == '/' {
				snap.GroupID, snap.ConsumerID = k[:i], k[i+1:]
				break
			}
		}
		out = append(out, snap)
	}
	return out
}

// Cleanup drops trackers that have been idle past the eviction window and
// returns how many were removed. Runs on a maintenance ticker.
func (a *Advisor) Cleanup() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := a.nowMs() - idleEvictAfter.Milliseconds()
	removed := 0
	for k, tr := range a.trackers {
		if tr.lastPollMs < cutoff {
			delete(a.trackers, k)
			removed++
		}
	}
	return removed
}
