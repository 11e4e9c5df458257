package metrics

import (
	"testing"
	"time"

	"github.com/mnohosten/cardmesh/internal/model"
)

func TestMetricsCollector_RecordOpenPackResult(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordOpenPackResult(model.DecisionGlobalCommit)
	mc.RecordOpenPackResult(model.DecisionGlobalCommit)
	mc.RecordOpenPackResult(model.DecisionGlobalAbort)

	snap := mc.GetMetrics()
	openPack := snap["open_pack"].(map[string]interface{})

	if openPack["attempted"].(uint64) != 3 {
		t.Errorf("expected 3 attempted, got %v", openPack["attempted"])
	}
	if openPack["committed"].(uint64) != 2 {
		t.Errorf("expected 2 committed, got %v", openPack["committed"])
	}
	if openPack["aborted"].(uint64) != 1 {
		t.Errorf("expected 1 aborted, got %v", openPack["aborted"])
	}

	rate := openPack["commit_rate"].(float64)
	if rate < 66.0 || rate > 67.0 {
		t.Errorf("expected commit rate around 66.67%%, got %.2f%%", rate)
	}
}

func TestMetricsCollector_RecordTradeResult(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordTradeResult(model.DecisionGlobalCommit)
	mc.RecordTradeResult(model.DecisionGlobalAbort)

	snap := mc.GetMetrics()
	trade := snap["trade_cards"].(map[string]interface{})

	if trade["attempted"].(uint64) != 2 {
		t.Errorf("expected 2 attempted, got %v", trade["attempted"])
	}
	if trade["committed"].(uint64) != 1 {
		t.Errorf("expected 1 committed, got %v", trade["committed"])
	}
	if trade["aborted"].(uint64) != 1 {
		t.Errorf("expected 1 aborted, got %v", trade["aborted"])
	}
}

func TestMetricsCollector_RecordStockLevel(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordStockLevel(50)
	mc.RecordStockLevel(37)

	snap := mc.GetMetrics()
	if snap["stock_remaining"].(int64) != 37 {
		t.Errorf("expected stock_remaining 37, got %v", snap["stock_remaining"])
	}
}

func TestMetricsCollector_RecordPeerRoundTrip(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordPeerRoundTrip(2 * time.Millisecond)
	mc.RecordPeerRoundTrip(20 * time.Millisecond)
	mc.RecordPeerRoundTrip(200 * time.Millisecond)

	snap := mc.GetMetrics()
	peer := snap["peer_rpc"].(map[string]interface{})
	buckets := peer["timing_histogram"].(map[string]uint64)

	if buckets["1-10ms"] != 1 {
		t.Errorf("expected 1 sample in 1-10ms bucket, got %d", buckets["1-10ms"])
	}
	if buckets["10-100ms"] != 1 {
		t.Errorf("expected 1 sample in 10-100ms bucket, got %d", buckets["10-100ms"])
	}
	if buckets["100-1000ms"] != 1 {
		t.Errorf("expected 1 sample in 100-1000ms bucket, got %d", buckets["100-1000ms"])
	}
}

func TestMetricsCollector_Connections(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordConnectionStart()
	mc.RecordConnectionStart()
	mc.RecordConnectionEnd()

	snap := mc.GetMetrics()
	conns := snap["connections"].(map[string]interface{})

	if conns["total"].(uint64) != 2 {
		t.Errorf("expected 2 total connections, got %v", conns["total"])
	}
	if conns["active"].(uint64) != 1 {
		t.Errorf("expected 1 active connection, got %v", conns["active"])
	}
}

func TestMetricsCollector_Reset(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordOpenPackResult(model.DecisionGlobalCommit)
	mc.RecordTradeResult(model.DecisionGlobalAbort)

	mc.Reset()

	snap := mc.GetMetrics()
	if snap["open_pack"].(map[string]interface{})["attempted"].(uint64) != 0 {
		t.Error("expected open_pack attempted to reset to 0")
	}
	if snap["trade_cards"].(map[string]interface{})["attempted"].(uint64) != 0 {
		t.Error("expected trade_cards attempted to reset to 0")
	}
}

func TestTimingHistogram_Percentiles(t *testing.T) {
	th := NewTimingHistogram(100)
	for i := 1; i <= 100; i++ {
		th.Record(time.Duration(i) * time.Millisecond)
	}

	percentiles := th.GetPercentiles()
	if percentiles["p50"] < 45*time.Millisecond || percentiles["p50"] > 55*time.Millisecond {
		t.Errorf("expected p50 around 50ms, got %v", percentiles["p50"])
	}
	if percentiles["p99"] < 95*time.Millisecond {
		t.Errorf("expected p99 near the top of the range, got %v", percentiles["p99"])
	}
}

func TestTimingHistogram_EvictsOldest(t *testing.T) {
	th := NewTimingHistogram(3)
	th.Record(1 * time.Millisecond)
	th.Record(2 * time.Millisecond)
	th.Record(3 * time.Millisecond)
	th.Record(4 * time.Millisecond)

	buckets := th.GetBuckets()
	var total uint64
	for _, v := range buckets {
		total += v
	}
	if total != 4 {
		t.Errorf("bucket counts should never be evicted, expected 4 total, got %d", total)
	}
}
