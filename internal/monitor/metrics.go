package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks simulator performance: per-path latency histograms
// and event counters.
type SystemMetrics struct {
	RequestLatency *LatencyHistogram
	MarkLatency    *LatencyHistogram
	AdvisorLatency *LatencyHistogram

	ticksProcessed uint64
	tradesOpened   uint64
	tradesClosed   uint64
	scansRun       uint64
	errorsCount    uint64

	started time.Time
}

func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		RequestLatency: NewLatencyHistogram(1000),
		MarkLatency:    NewLatencyHistogram(1000),
		AdvisorLatency: NewLatencyHistogram(200),
		started:        time.Now(),
	}
}

// LatencyHistogram keeps a sliding window of samples with lazily computed
// percentile stats.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
	dirty   bool
	cached  LatencyStats
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a sample in milliseconds, evicting the oldest at capacity.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts and records a duration.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// LatencyStats holds computed latency statistics in milliseconds.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// Stats recomputes only when samples changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cached.Count > 0 {
		return h.cached
	}
	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	idx := func(q float64) int {
		i := int(float64(n) * q)
		if i >= n {
			i = n - 1
		}
		return i
	}
	h.cached = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[idx(0.50)],
		P95:   sorted[idx(0.95)],
		P99:   sorted[idx(0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cached
}

func (m *SystemMetrics) IncrementTicks()  { atomic.AddUint64(&m.ticksProcessed, 1) }
func (m *SystemMetrics) IncrementOpens()  { atomic.AddUint64(&m.tradesOpened, 1) }
func (m *SystemMetrics) IncrementCloses() { atomic.AddUint64(&m.tradesClosed, 1) }
func (m *SystemMetrics) IncrementScans()  { atomic.AddUint64(&m.scansRun, 1) }
func (m *SystemMetrics) IncrementErrors() { atomic.AddUint64(&m.errorsCount, 1) }

// MetricsSnapshot is the point-in-time view served by the metrics endpoint.
type MetricsSnapshot struct {
	RequestLatency LatencyStats `json:"request_latency"`
	MarkLatency    LatencyStats `json:"mark_latency"`
	AdvisorLatency LatencyStats `json:"advisor_latency"`
	TicksProcessed uint64       `json:"ticks_processed"`
	TradesOpened   uint64       `json:"trades_opened"`
	TradesClosed   uint64       `json:"trades_closed"`
	ScansRun       uint64       `json:"scans_run"`
	ErrorsCount    uint64       `json:"errors_count"`
	UptimeSeconds  float64      `json:"uptime_seconds"`
	GoroutineCount int          `json:"goroutine_count"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GetSnapshot returns current metrics.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		RequestLatency: m.RequestLatency.Stats(),
		MarkLatency:    m.MarkLatency.Stats(),
		AdvisorLatency: m.AdvisorLatency.Stats(),
		TicksProcessed: atomic.LoadUint64(&m.ticksProcessed),
		TradesOpened:   atomic.LoadUint64(&m.tradesOpened),
		TradesClosed:   atomic.LoadUint64(&m.tradesClosed),
		ScansRun:       atomic.LoadUint64(&m.scansRun),
		ErrorsCount:    atomic.LoadUint64(&m.errorsCount),
		UptimeSeconds:  time.Since(m.started).Seconds(),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		Timestamp:      time.Now(),
	}
}

// Timer measures one operation into a histogram.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
