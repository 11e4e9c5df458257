package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ResourceTracker samples process-wide memory, goroutine, and GC stats on a
// ticker, and separately tallies bytes moved through the Coordination Store
// so the Prometheus exporter can report both without touching Redis itself.
type ResourceTracker struct {
	enabled bool
	mu      sync.RWMutex

	bytesRead       uint64
	bytesWritten    uint64
	readsCompleted  uint64
	writesCompleted uint64

	sampleInterval time.Duration
	maxSamples     int
	samples        []ResourceSample
	stopChan       chan struct{}
	wg             sync.WaitGroup
}

// ResourceSample is a point-in-time snapshot, kept for trend reporting on
// the status dashboard.
type ResourceSample struct {
	Timestamp     time.Time
	HeapInUse     uint64
	NumGoroutines int
	GCRuns        uint32
}

// ResourceStats is the current snapshot returned by GetStats.
type ResourceStats struct {
	AllocBytes   uint64
	HeapInUse    uint64
	StackInUse   uint64
	AllocObjects uint64

	NumGoroutines int

	BytesRead       uint64
	BytesWritten    uint64
	ReadsCompleted  uint64
	WritesCompleted uint64

	GCRuns       uint32
	LastGCTimeNs uint64

	NumCPU int
}

// ResourceTrackerConfig configures sampling cadence and history depth.
type ResourceTrackerConfig struct {
	Enabled        bool
	SampleInterval time.Duration
	MaxSamples     int
}

// DefaultResourceTrackerConfig returns the teacher's cadence: 1s samples,
// 60 retained (one minute of history on the status dashboard).
func DefaultResourceTrackerConfig() *ResourceTrackerConfig {
	return &ResourceTrackerConfig{
		Enabled:        true,
		SampleInterval: 1 * time.Second,
		MaxSamples:     60,
	}
}

// NewResourceTracker creates a tracker and starts sampling if enabled.
func NewResourceTracker(config *ResourceTrackerConfig) *ResourceTracker {
	if config == nil {
		config = DefaultResourceTrackerConfig()
	}

	rt := &ResourceTracker{
		enabled:        config.Enabled,
		sampleInterval: config.SampleInterval,
		maxSamples:     config.MaxSamples,
		samples:        make([]ResourceSample, 0, config.MaxSamples),
		stopChan:       make(chan struct{}),
	}

	if rt.enabled {
		rt.startSampling()
	}

	return rt
}

func (rt *ResourceTracker) startSampling() {
	rt.wg.Add(1)
	go rt.samplingLoop()
}

func (rt *ResourceTracker) samplingLoop() {
	defer rt.wg.Done()

	ticker := time.NewTicker(rt.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rt.takeSample()
		case <-rt.stopChan:
			return
		}
	}
}

func (rt *ResourceTracker) takeSample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	sample := ResourceSample{
		Timestamp:     time.Now(),
		HeapInUse:     m.HeapInuse,
		NumGoroutines: runtime.NumGoroutine(),
		GCRuns:        m.NumGC,
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.samples) >= rt.maxSamples {
		rt.samples = rt.samples[1:]
	}
	rt.samples = append(rt.samples, sample)
}

// RecordRead tallies a read against the Coordination Store, in bytes.
func (rt *ResourceTracker) RecordRead(bytes uint64) {
	atomic.AddUint64(&rt.bytesRead, bytes)
	atomic.AddUint64(&rt.readsCompleted, 1)
}

// RecordWrite tallies a write against the Coordination Store, in bytes.
func (rt *ResourceTracker) RecordWrite(bytes uint64) {
	atomic.AddUint64(&rt.bytesWritten, bytes)
	atomic.AddUint64(&rt.writesCompleted, 1)
}

// GetStats returns a fresh snapshot of current resource usage.
func (rt *ResourceTracker) GetStats() *ResourceStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &ResourceStats{
		AllocBytes:      m.TotalAlloc,
		HeapInUse:       m.HeapInuse,
		StackInUse:      m.StackInuse,
		AllocObjects:    m.Mallocs - m.Frees,
		NumGoroutines:   runtime.NumGoroutine(),
		BytesRead:       atomic.LoadUint64(&rt.bytesRead),
		BytesWritten:    atomic.LoadUint64(&rt.bytesWritten),
		ReadsCompleted:  atomic.LoadUint64(&rt.readsCompleted),
		WritesCompleted: atomic.LoadUint64(&rt.writesCompleted),
		GCRuns:          m.NumGC,
		LastGCTimeNs:    m.LastGC,
		NumCPU:          runtime.NumCPU(),
	}
}

// GetSamples returns a copy of the retained sample history.
func (rt *ResourceTracker) GetSamples() []ResourceSample {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	samples := make([]ResourceSample, len(rt.samples))
	copy(samples, rt.samples)
	return samples
}

// Close stops background sampling.
func (rt *ResourceTracker) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.enabled {
		return
	}
	rt.enabled = false
	close(rt.stopChan)
	rt.wg.Wait()
}
