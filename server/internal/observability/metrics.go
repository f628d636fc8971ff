package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates counters for chat streams.
type Metrics struct {
	mu sync.Mutex

	streamTotal  atomic.Int64
	streamFailed atomic.Int64
	framesSent   atomic.Int64

	modelMetrics map[string]*ModelMetrics
}

// ModelMetrics represents counters for a specific model.
type ModelMetrics struct {
	streamCount   atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		modelMetrics: make(map[string]*ModelMetrics),
	}
}

var globalMetrics = NewMetrics()

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordStream records a started stream.
func (m *Metrics) RecordStream(model string) {
	m.streamTotal.Add(1)
	m.getModelMetrics(model).streamCount.Add(1)
}

// RecordFailure records a failed stream.
func (m *Metrics) RecordFailure(model string) {
	m.streamFailed.Add(1)
	m.getModelMetrics(model).errorCount.Add(1)
}

// RecordDuration records a stream duration.
func (m *Metrics) RecordDuration(model string, duration time.Duration) {
	m.getModelMetrics(model).totalDuration.Add(duration.Milliseconds())
}

// RecordFrame records a wire frame sent to the client.
func (m *Metrics) RecordFrame() {
	m.framesSent.Add(1)
}

// GetStreamTotal returns the total number of streams.
func (m *Metrics) GetStreamTotal() int64 {
	return m.streamTotal.Load()
}

// GetStreamFailed returns the total number of failed streams.
func (m *Metrics) GetStreamFailed() int64 {
	return m.streamFailed.Load()
}

// GetFramesSent returns the total number of frames sent.
func (m *Metrics) GetFramesSent() int64 {
	return m.framesSent.Load()
}

func (m *Metrics) getModelMetrics(model string) *ModelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	mm, ok := m.modelMetrics[model]
	if !ok {
		mm = &ModelMetrics{}
		m.modelMetrics[model] = mm
	}
	return mm
}

// GetAverageDuration returns the average stream duration in milliseconds for a model.
func (m *Metrics) GetAverageDuration(model string) int64 {
	mm := m.getModelMetrics(model)
	count := mm.streamCount.Load()
	if count == 0 {
		return 0
	}
	return mm.totalDuration.Load() / count
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.streamTotal.Store(0)
	m.streamFailed.Store(0)
	m.framesSent.Store(0)

	m.mu.Lock()
	m.modelMetrics = make(map[string]*ModelMetrics)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time view of current counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	models := make(map[string]*ModelMetricsSnapshot, len(m.modelMetrics))
	for model, mm := range m.modelMetrics {
		count := mm.streamCount.Load()
		var avg int64
		if count > 0 {
			avg = mm.totalDuration.Load() / count
		}
		models[model] = &ModelMetricsSnapshot{
			StreamCount:     count,
			TotalDuration:   mm.totalDuration.Load(),
			ErrorCount:      mm.errorCount.Load(),
			AverageDuration: avg,
		}
	}

	return &MetricsSnapshot{
		StreamTotal:  m.streamTotal.Load(),
		StreamFailed: m.streamFailed.Load(),
		FramesSent:   m.framesSent.Load(),
		ModelMetrics: models,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	StreamTotal  int64
	StreamFailed int64
	FramesSent   int64
	ModelMetrics map[string]*ModelMetricsSnapshot
}

// ModelMetricsSnapshot represents counters for a specific model.
type ModelMetricsSnapshot struct {
	StreamCount     int64
	TotalDuration   int64
	ErrorCount      int64
	AverageDuration int64
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.StreamTotal == 0 {
		return 100.0
	}
	return float64(s.StreamTotal-s.StreamFailed) / float64(s.StreamTotal) * 100.0
}
