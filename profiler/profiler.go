// Package profiler tracks operation timings and custom metrics for the
// running service and reports them periodically.
package profiler

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// RuntimeProfiler records how long pipeline stages take and a handful of
// custom metrics. It is safe for concurrent use.
type RuntimeProfiler struct {
	// Configuration
	reportInterval time.Duration
	maxSamples     int
	logger         *slog.Logger

	// State management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	// Custom metrics
	customMetrics map[string]*MetricTracker

	// Performance tracking
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a status report; zero disables
	// periodic reports.
	ReportInterval time.Duration
	// MaxSamples specifies the window of samples averages are computed over
	// (default: 600)
	MaxSamples int
	// Logger receives the status reports.
	Logger *slog.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger.With("system", "profiler"),
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting. It does nothing when reports are disabled
// or the profiler is already running.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running || rp.reportInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rp.cancel = cancel
	rp.running = true

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rp.emitStatusReport()
			}
		}
	}()
}

// Stop stops periodic reporting and waits for the reporter to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	cancel := rp.cancel
	rp.mu.Unlock()

	cancel()
	rp.wg.Wait()
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, 16),
			min:    value,
			max:    value,
		}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		// Remove oldest sample
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}

	tracker.count++
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		duration := time.Since(start)
		rp.RecordOperation(name, duration)
		return duration
	}
}

// RecordOperation records the completion time of an operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// TimingStats summarizes an operation's recent durations.
type TimingStats struct {
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg_ns"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
}

// MetricStats summarizes a custom metric's recent values.
type MetricStats struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// MemoryStats is the subset of runtime.MemStats worth reporting.
type MemoryStats struct {
	Alloc       uint64 `json:"alloc"`
	Sys         uint64 `json:"sys"`
	HeapObjects uint64 `json:"heap_objects"`
	GCCycles    uint32 `json:"gc_cycles"`
}

// Snapshot is a point-in-time view of the profiler.
type Snapshot struct {
	Uptime     time.Duration          `json:"uptime_ns"`
	Goroutines int                    `json:"goroutines"`
	Memory     MemoryStats            `json:"memory"`
	Operations map[string]TimingStats `json:"operations"`
	Metrics    map[string]MetricStats `json:"metrics"`
}

// GetCurrentStats returns the current profiling statistics as a snapshot.
func (rp *RuntimeProfiler) GetCurrentStats() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.RLock()
	defer rp.mu.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:       mem.Alloc,
			Sys:         mem.Sys,
			HeapObjects: mem.HeapObjects,
			GCCycles:    mem.NumGC,
		},
		Operations: make(map[string]TimingStats, len(rp.operationTimes)),
		Metrics:    make(map[string]MetricStats, len(rp.customMetrics)),
	}

	for name, tracker := range rp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		snap.Operations[name] = TimingStats{
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		}
	}
	for name, tracker := range rp.customMetrics {
		if len(tracker.values) == 0 {
			continue
		}
		snap.Metrics[name] = MetricStats{
			Count: tracker.count,
			Avg:   tracker.sum / float64(len(tracker.values)),
			Min:   tracker.min,
			Max:   tracker.max,
		}
	}
	return snap
}

// emitStatusReport logs one line per tracked operation and metric.
func (rp *RuntimeProfiler) emitStatusReport() {
	snap := rp.GetCurrentStats()

	rp.logger.Info("status",
		"uptime", snap.Uptime.Truncate(time.Second),
		"goroutines", snap.Goroutines,
		"alloc", formatBytes(snap.Memory.Alloc),
		"gc_cycles", snap.Memory.GCCycles,
	)

	for _, name := range sortedKeys(snap.Operations) {
		s := snap.Operations[name]
		rp.logger.Info("operation",
			"name", name,
			"avg", s.Avg.Truncate(time.Microsecond),
			"min", s.Min.Truncate(time.Microsecond),
			"max", s.Max.Truncate(time.Microsecond),
			"count", s.Count,
		)
	}
	for _, name := range sortedKeys(snap.Metrics) {
		s := snap.Metrics[name]
		rp.logger.Info("metric", "name", name, "avg", s.Avg, "min", s.Min, "max", s.Max, "count", s.Count)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
