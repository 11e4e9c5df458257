package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// PrometheusExporter renders the collector's counters and the process
// resource tracker's samples as Prometheus text exposition format.
type PrometheusExporter struct {
	collector       *MetricsCollector
	resourceTracker *ResourceTracker
	namespace       string
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *MetricsCollector, resourceTracker *ResourceTracker) *PrometheusExporter {
	return &PrometheusExporter{
		collector:       collector,
		resourceTracker: resourceTracker,
		namespace:       "cardmesh",
	}
}

// SetNamespace sets the metric namespace prefix.
func (pe *PrometheusExporter) SetNamespace(namespace string) {
	pe.namespace = namespace
}

// WriteMetrics writes all metrics in Prometheus text format to w.
// Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (pe *PrometheusExporter) WriteMetrics(w io.Writer) error {
	uptime := time.Since(pe.collector.startTime).Seconds()
	if err := pe.writeGauge(w, "uptime_seconds", "Node uptime in seconds", uptime); err != nil {
		return err
	}

	openPackAttempted := atomic.LoadUint64(&pe.collector.openPackAttempted)
	openPackCommitted := atomic.LoadUint64(&pe.collector.openPackCommitted)
	openPackAborted := atomic.LoadUint64(&pe.collector.openPackAborted)

	if err := pe.writeCounter(w, "open_pack_attempted_total", "Total open_pack transactions coordinated", openPackAttempted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "open_pack_committed_total", "Total open_pack transactions that reached GLOBAL_COMMIT", openPackCommitted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "open_pack_aborted_total", "Total open_pack transactions that reached GLOBAL_ABORT", openPackAborted); err != nil {
		return err
	}

	tradeAttempted := atomic.LoadUint64(&pe.collector.tradeAttempted)
	tradeCommitted := atomic.LoadUint64(&pe.collector.tradeCommitted)
	tradeAborted := atomic.LoadUint64(&pe.collector.tradeAborted)

	if err := pe.writeCounter(w, "trade_cards_attempted_total", "Total trade_cards transactions coordinated", tradeAttempted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "trade_cards_committed_total", "Total trade_cards transactions that reached GLOBAL_COMMIT", tradeCommitted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "trade_cards_aborted_total", "Total trade_cards transactions that reached GLOBAL_ABORT", tradeAborted); err != nil {
		return err
	}

	if err := pe.writeHistogram(w, "peer_rpc_duration_seconds", "Peer prepare/decide round trip duration histogram", pe.collector.peerTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "peer_rpc_duration_seconds", pe.collector.peerTimings); err != nil {
		return err
	}

	activeConnections := atomic.LoadUint64(&pe.collector.activeConnections)
	totalConnections := atomic.LoadUint64(&pe.collector.totalConnections)

	if err := pe.writeGauge(w, "active_connections", "Current number of in-flight HTTP requests", float64(activeConnections)); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "connections_total", "Total HTTP requests accepted", totalConnections); err != nil {
		return err
	}

	stockRemaining := atomic.LoadInt64(&pe.collector.stockRemaining)
	if err := pe.writeGauge(w, "packs_remaining", "Last observed packs_remaining in the global stock (gauge, may lag the Coordination Store)", float64(stockRemaining)); err != nil {
		return err
	}

	if pe.resourceTracker != nil {
		stats := pe.resourceTracker.GetStats()

		if err := pe.writeGauge(w, "memory_heap_bytes", "Heap memory in bytes", float64(stats.HeapInUse)); err != nil {
			return err
		}
		if err := pe.writeGauge(w, "memory_stack_bytes", "Stack memory in bytes", float64(stats.StackInUse)); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "memory_allocations_total", "Total memory allocated, in bytes", stats.AllocBytes); err != nil {
			return err
		}
		if err := pe.writeGauge(w, "memory_objects", "Number of live allocated objects", float64(stats.AllocObjects)); err != nil {
			return err
		}

		if err := pe.writeGauge(w, "goroutines", "Number of goroutines", float64(stats.NumGoroutines)); err != nil {
			return err
		}

		if err := pe.writeCounter(w, "store_bytes_read_total", "Total bytes read from the Coordination Store", stats.BytesRead); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "store_bytes_written_total", "Total bytes written to the Coordination Store", stats.BytesWritten); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "store_read_operations_total", "Total Coordination Store read operations", stats.ReadsCompleted); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "store_write_operations_total", "Total Coordination Store write operations", stats.WritesCompleted); err != nil {
			return err
		}

		if err := pe.writeCounter(w, "gc_runs_total", "Total garbage collection runs", uint64(stats.GCRuns)); err != nil {
			return err
		}
		if err := pe.writeGauge(w, "gc_pause_nanoseconds", "Last GC pause time in nanoseconds", float64(stats.LastGCTimeNs)); err != nil {
			return err
		}

		if err := pe.writeGauge(w, "cpu_count", "Number of CPUs", float64(stats.NumCPU)); err != nil {
			return err
		}
	}

	return nil
}

func (pe *PrometheusExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (pe *PrometheusExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}

// writeHistogram writes cumulative Prometheus histogram buckets from the
// timing data. The bucket boundaries are fixed (1ms/10ms/100ms/1s) rather
// than configurable, matching the five fixed buckets TimingHistogram keeps.
func (pe *PrometheusExporter) writeHistogram(w io.Writer, name, help string, th *TimingHistogram) error {
	metricName := pe.namespace + "_" + name

	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", metricName, help, metricName); err != nil {
		return err
	}

	buckets := th.GetBuckets()
	var cumulative uint64

	bounds := []struct {
		key string
		le  string
	}{
		{"0-1ms", "0.001"},
		{"1-10ms", "0.01"},
		{"10-100ms", "0.1"},
		{"100-1000ms", "1.0"},
		{">1000ms", "+Inf"},
	}
	for _, b := range bounds {
		cumulative += buckets[b.key]
		if _, err := fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", metricName, b.le, cumulative); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%s_count %d\n", metricName, cumulative); err != nil {
		return err
	}

	return nil
}

func (pe *PrometheusExporter) writePercentiles(w io.Writer, baseName string, th *TimingHistogram) error {
	percentiles := th.GetPercentiles()

	if err := pe.writeGauge(w, baseName+"_p50", fmt.Sprintf("50th percentile of %s", baseName), percentiles["p50"].Seconds()); err != nil {
		return err
	}
	if err := pe.writeGauge(w, baseName+"_p95", fmt.Sprintf("95th percentile of %s", baseName), percentiles["p95"].Seconds()); err != nil {
		return err
	}
	if err := pe.writeGauge(w, baseName+"_p99", fmt.Sprintf("99th percentile of %s", baseName), percentiles["p99"].Seconds()); err != nil {
		return err
	}

	return nil
}
