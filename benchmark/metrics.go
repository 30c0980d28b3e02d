// Package benchmark measures the diagnosis pipeline over a corpus of images.
package benchmark

import (
	"runtime"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures the results of one scenario.
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	Images          int           `json:"images"`
	Runs            int           `json:"runs"`
	Errors          int           `json:"errors"`
	NoDetections    int           `json:"no_detections"`
	Detections      int           `json:"detections"`
	TotalDuration   time.Duration `json:"total_duration"`
	Latency         LatencyStats  `json:"latency"`
	Stages          StageStats    `json:"stages"`
	ImagesPerSecond float64       `json:"images_per_second"`
	ErrorRate       float64       `json:"error_rate"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
}

// LatencyStats summarizes per-image diagnosis latency.
type LatencyStats struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// StageStats holds the mean time spent in each pipeline stage.
type StageStats struct {
	Decode    time.Duration `json:"decode"`
	Detect    time.Duration `json:"detect"`
	Summarize time.Duration `json:"summarize"`
	Annotate  time.Duration `json:"annotate"`
}

// MemoryMetrics captures memory usage statistics.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// memoryDelta reports allocation growth between two samples and the
// absolute values of the later one.
func memoryDelta(before, after runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      after.Alloc,
		TotalAllocBytes: after.TotalAlloc - before.TotalAlloc,
		SysBytes:        after.Sys,
		NumGC:           after.NumGC - before.NumGC,
		HeapAllocBytes:  after.HeapAlloc,
		HeapSysBytes:    after.HeapSys,
	}
}

// latencyStats computes the latency summary. samples is sorted in place.
func latencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	xs := make([]float64, len(samples))
	for i, d := range samples {
		xs[i] = float64(d)
	}
	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, xs, nil))
	}
	return LatencyStats{
		Min:  samples[0],
		Mean: time.Duration(stat.Mean(xs, nil)),
		P50:  q(0.50),
		P95:  q(0.95),
		P99:  q(0.99),
		Max:  samples[len(samples)-1],
	}
}
