// Package profiler - Per-stage wall clock and memory reporting.
package profiler

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// MetricsCollector contributes named values to a report.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// StageProfiler times the stages of an explanation run.
//
// Stages keep their first-seen order so the report reads like the run.
// It is safe for concurrent use.
type StageProfiler struct {
	mu         sync.Mutex
	startTime  time.Time
	order      []string
	stages     map[string]*TimeTracker
	metrics    map[string]*MetricTracker
	collectors []MetricsCollector
}

// TimeTracker tracks timing statistics for one stage.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Mean returns the mean stage duration.
func (t *TimeTracker) Mean() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.totalTime / time.Duration(t.count)
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	name  string
	sum   float64
	min   float64
	max   float64
	count int64
}

// Mean returns the mean recorded value.
func (m *MetricTracker) Mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// New creates a profiler whose uptime starts now.
func New() *StageProfiler {
	return &StageProfiler{
		startTime: time.Now(),
		stages:    make(map[string]*TimeTracker),
		metrics:   make(map[string]*MetricTracker),
	}
}

// AddMetricsCollector registers a collector queried on every report.
func (p *StageProfiler) AddMetricsCollector(collector MetricsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectors = append(p.collectors, collector)
}

// StartOperation begins timing a stage.
//
// Arguments:
// - name: The stage name
//
// Returns:
// - A function to call when the stage completes
//
// @example
// done := prof.StartOperation("saliency")
// defer done()
func (p *StageProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one completed stage duration.
func (p *StageProfiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.stages[name]
	if !exists {
		tracker = &TimeTracker{name: name, minTime: duration, maxTime: duration}
		p.stages[name] = tracker
		p.order = append(p.order, name)
	}

	tracker.totalTime += duration
	tracker.count++
	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// RecordMetric records a value for a custom metric.
func (p *StageProfiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordMetric(name, value)
}

func (p *StageProfiler) recordMetric(name string, value float64) {
	tracker, exists := p.metrics[name]
	if !exists {
		tracker = &MetricTracker{name: name, min: value, max: value}
		p.metrics[name] = tracker
	}

	tracker.sum += value
	tracker.count++
	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// Stage returns the tracker of a stage, or nil if it never ran.
func (p *StageProfiler) Stage(name string) *TimeTracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stages[name]
}

// Metric returns the tracker of a metric, or nil if it was never recorded.
func (p *StageProfiler) Metric(name string) *MetricTracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics[name]
}

// Report writes uptime, memory usage, metrics and stage timings to w.
func (p *StageProfiler) Report(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, collector := range p.collectors {
		for name, value := range collector.CollectMetrics() {
			p.recordMetric(name, value)
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintf(w, "PROFILER REPORT - %s\n", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(w, "Uptime: %v\n", time.Since(p.startTime).Truncate(time.Millisecond))

	fmt.Fprintf(w, "\nMEMORY USAGE:\n")
	fmt.Fprintf(w, "  Heap Alloc: %s\n", formatBytes(mem.HeapAlloc))
	fmt.Fprintf(w, "  Total Alloc: %s\n", formatBytes(mem.TotalAlloc))
	fmt.Fprintf(w, "  Sys: %s\n", formatBytes(mem.Sys))
	fmt.Fprintf(w, "  GC Cycles: %d\n", mem.NumGC)

	if len(p.metrics) > 0 {
		fmt.Fprintf(w, "\nCUSTOM METRICS:\n")
		for _, m := range p.metrics {
			fmt.Fprintf(w, "  %s: avg=%.4f, min=%.4f, max=%.4f, samples=%d\n",
				m.name, m.Mean(), m.min, m.max, m.count)
		}
	}

	if len(p.order) > 0 {
		fmt.Fprintf(w, "\nSTAGE TIMINGS:\n")
		for _, name := range p.order {
			t := p.stages[name]
			fmt.Fprintf(w, "  %s: total=%v, avg=%v, min=%v, max=%v, count=%d\n",
				name,
				t.totalTime.Truncate(time.Microsecond),
				t.Mean().Truncate(time.Microsecond),
				t.minTime.Truncate(time.Microsecond),
				t.maxTime.Truncate(time.Microsecond),
				t.count)
		}
	}
}

// formatBytes formats bytes into human readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
