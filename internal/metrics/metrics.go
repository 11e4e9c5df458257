// Package metrics collects in-process counters for the Transaction Engine
// and RPC Mesh and exports them as Prometheus text. It mirrors the shape of
// the teacher's database metrics collector (atomic counters plus a rolling
// timing histogram per operation family) narrowed to this system's two
// operation kinds, stock level, and connection counts.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnohosten/cardmesh/internal/model"
)

// MetricsCollector collects real-time counters for open_pack, trade_cards,
// and the RPC Mesh's connection load.
type MetricsCollector struct {
	// open_pack outcomes
	openPackAttempted uint64
	openPackCommitted uint64
	openPackAborted   uint64

	// trade_cards outcomes
	tradeAttempted uint64
	tradeCommitted uint64
	tradeAborted   uint64

	// Peer RPC timing (prepare+decide round trips), fed only through
	// RecordPeerRoundTrip; the Transaction Engine's Recorder interface does
	// not include it, so the engine records no samples here.
	mu           sync.RWMutex
	peerTimings  *TimingHistogram

	// Connection metrics (HTTP server)
	activeConnections uint64
	totalConnections  uint64

	// packs_remaining, last observed value (gauge, not a counter)
	stockRemaining int64

	startTime time.Time
}

// TimingHistogram stores timing data in buckets for histogram generation,
// plus a bounded ring of recent samples for percentile estimates.
type TimingHistogram struct {
	bucket0_1ms      uint64 // 0-1ms
	bucket1_10ms     uint64 // 1-10ms
	bucket10_100ms   uint64 // 10-100ms
	bucket100_1000ms uint64 // 100ms-1s
	bucket1000ms     uint64 // >1s

	mu               sync.Mutex
	recentTimings    []time.Duration
	maxRecentTimings int
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		peerTimings: NewTimingHistogram(1000),
		startTime:   time.Now(),
	}
}

// NewTimingHistogram creates a new timing histogram retaining at most
// maxRecent samples for percentile estimation.
func NewTimingHistogram(maxRecent int) *TimingHistogram {
	return &TimingHistogram{
		recentTimings:    make([]time.Duration, 0, maxRecent),
		maxRecentTimings: maxRecent,
	}
}

// RecordOpenPackResult implements internal/txn.Recorder: tallies the
// outcome of an open_pack 2PC transaction this node coordinated.
func (mc *MetricsCollector) RecordOpenPackResult(decision model.Decision) {
	atomic.AddUint64(&mc.openPackAttempted, 1)
	if decision == model.DecisionGlobalCommit {
		atomic.AddUint64(&mc.openPackCommitted, 1)
	} else {
		atomic.AddUint64(&mc.openPackAborted, 1)
	}
}

// RecordTradeResult implements internal/txn.Recorder: tallies the outcome
// of a trade_cards 2PC transaction this node coordinated.
func (mc *MetricsCollector) RecordTradeResult(decision model.Decision) {
	atomic.AddUint64(&mc.tradeAttempted, 1)
	if decision == model.DecisionGlobalCommit {
		atomic.AddUint64(&mc.tradeCommitted, 1)
	} else {
		atomic.AddUint64(&mc.tradeAborted, 1)
	}
}

// RecordStockLevel implements internal/txn.Recorder: records the last
// observed packs_remaining after a commit, so the exporter can surface a
// gauge without round-tripping the Coordination Store on every scrape.
func (mc *MetricsCollector) RecordStockLevel(remaining int) {
	atomic.StoreInt64(&mc.stockRemaining, int64(remaining))
}

// RecordPeerRoundTrip records the latency of one prepare or decide call to
// a peer, for the peer_rpc_duration_seconds histogram.
func (mc *MetricsCollector) RecordPeerRoundTrip(d time.Duration) {
	mc.peerTimings.Record(d)
}

// RecordConnectionStart records a new inbound HTTP connection.
func (mc *MetricsCollector) RecordConnectionStart() {
	atomic.AddUint64(&mc.totalConnections, 1)
	atomic.AddUint64(&mc.activeConnections, 1)
}

// RecordConnectionEnd records an HTTP connection closing.
func (mc *MetricsCollector) RecordConnectionEnd() {
	atomic.AddUint64(&mc.activeConnections, ^uint64(0)) // decrement via two's complement
}

// Record adds a timing observation to the histogram.
func (th *TimingHistogram) Record(duration time.Duration) {
	ms := duration.Milliseconds()
	switch {
	case ms < 1:
		atomic.AddUint64(&th.bucket0_1ms, 1)
	case ms < 10:
		atomic.AddUint64(&th.bucket1_10ms, 1)
	case ms < 100:
		atomic.AddUint64(&th.bucket10_100ms, 1)
	case ms < 1000:
		atomic.AddUint64(&th.bucket100_1000ms, 1)
	default:
		atomic.AddUint64(&th.bucket1000ms, 1)
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.recentTimings) >= th.maxRecentTimings {
		th.recentTimings = th.recentTimings[1:]
	}
	th.recentTimings = append(th.recentTimings, duration)
}

// GetBuckets returns the histogram bucket counts.
func (th *TimingHistogram) GetBuckets() map[string]uint64 {
	return map[string]uint64{
		"0-1ms":      atomic.LoadUint64(&th.bucket0_1ms),
		"1-10ms":     atomic.LoadUint64(&th.bucket1_10ms),
		"10-100ms":   atomic.LoadUint64(&th.bucket10_100ms),
		"100-1000ms": atomic.LoadUint64(&th.bucket100_1000ms),
		">1000ms":    atomic.LoadUint64(&th.bucket1000ms),
	}
}

// GetPercentiles calculates P50, P95, P99 from recent timings.
func (th *TimingHistogram) GetPercentiles() map[string]time.Duration {
	th.mu.Lock()
	defer th.mu.Unlock()

	if len(th.recentTimings) == 0 {
		return map[string]time.Duration{"p50": 0, "p95": 0, "p99": 0}
	}

	sorted := make([]time.Duration, len(th.recentTimings))
	copy(sorted, th.recentTimings)
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > key {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}

	p50 := len(sorted) * 50 / 100
	p95 := len(sorted) * 95 / 100
	p99 := len(sorted) * 99 / 100
	if p95 >= len(sorted) {
		p95 = len(sorted) - 1
	}
	if p99 >= len(sorted) {
		p99 = len(sorted) - 1
	}

	return map[string]time.Duration{
		"p50": sorted[p50],
		"p95": sorted[p95],
		"p99": sorted[p99],
	}
}

// GetMetrics returns a snapshot of all counters, for the status dashboard.
func (mc *MetricsCollector) GetMetrics() map[string]interface{} {
	openPackAttempted := atomic.LoadUint64(&mc.openPackAttempted)
	openPackCommitted := atomic.LoadUint64(&mc.openPackCommitted)
	openPackAborted := atomic.LoadUint64(&mc.openPackAborted)

	tradeAttempted := atomic.LoadUint64(&mc.tradeAttempted)
	tradeCommitted := atomic.LoadUint64(&mc.tradeCommitted)
	tradeAborted := atomic.LoadUint64(&mc.tradeAborted)

	activeConnections := atomic.LoadUint64(&mc.activeConnections)
	totalConnections := atomic.LoadUint64(&mc.totalConnections)

	uptime := time.Since(mc.startTime)

	return map[string]interface{}{
		"uptime_seconds": uptime.Seconds(),

		"open_pack": map[string]interface{}{
			"attempted":    openPackAttempted,
			"committed":    openPackCommitted,
			"aborted":      openPackAborted,
			"commit_rate":  calculateSuccessRate(openPackAttempted, openPackAborted),
		},

		"trade_cards": map[string]interface{}{
			"attempted":    tradeAttempted,
			"committed":    tradeCommitted,
			"aborted":      tradeAborted,
			"commit_rate":  calculateSuccessRate(tradeAttempted, tradeAborted),
		},

		"peer_rpc": map[string]interface{}{
			"timing_histogram":   mc.peerTimings.GetBuckets(),
			"timing_percentiles": mc.peerTimings.GetPercentiles(),
		},

		"connections": map[string]interface{}{
			"active": activeConnections,
			"total":  totalConnections,
		},

		"stock_remaining": atomic.LoadInt64(&mc.stockRemaining),
	}
}

// Reset zeroes all counters. Used by tests; active connection count is
// preserved since it reflects live state, not accumulated history.
func (mc *MetricsCollector) Reset() {
	atomic.StoreUint64(&mc.openPackAttempted, 0)
	atomic.StoreUint64(&mc.openPackCommitted, 0)
	atomic.StoreUint64(&mc.openPackAborted, 0)

	atomic.StoreUint64(&mc.tradeAttempted, 0)
	atomic.StoreUint64(&mc.tradeCommitted, 0)
	atomic.StoreUint64(&mc.tradeAborted, 0)

	atomic.StoreUint64(&mc.totalConnections, 0)

	mc.mu.Lock()
	mc.peerTimings = NewTimingHistogram(1000)
	mc.mu.Unlock()

	mc.startTime = time.Now()
}

func calculateSuccessRate(total, failed uint64) float64 {
	if total == 0 {
		return 0
	}
	succeeded := total - failed
	return float64(succeeded) / float64(total) * 100
}
