package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/util"
	"github.com/pkg/errors"
)

// Diagnoser runs the diagnosis pipeline on encoded image bytes.
type Diagnoser interface {
	Diagnose(ctx context.Context, data []byte, opts diagnosis.Options) (*diagnosis.Report, error)
}

// SuiteArgs are the arguments for creating a Suite.
type SuiteArgs struct {
	Service Diagnoser
	Corpus  []util.ImageFile
	// OutputDir receives result files from SaveResults.
	OutputDir string
	Logger    *slog.Logger
}

// Suite manages and executes benchmark scenarios.
type Suite struct {
	service   Diagnoser
	corpus    []util.ImageFile
	outputDir string
	logger    *slog.Logger

	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
func NewSuite(args SuiteArgs) (*Suite, error) {
	if args.Service == nil {
		return nil, errors.New("benchmark suite requires a diagnosis service")
	}
	if len(args.Corpus) == 0 {
		return nil, errors.New("benchmark suite requires at least one image")
	}
	logger := args.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Suite{
		service:   args.Service,
		corpus:    args.Corpus,
		outputDir: args.OutputDir,
		logger:    logger,
	}, nil
}

// AddScenario adds a scenario to the suite.
func (bs *Suite) AddScenario(scenario Scenario) error {
	if err := scenario.Validate(); err != nil {
		return err
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
	return nil
}

// Scenarios returns a copy of the queued scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]Scenario(nil), bs.scenarios...)
}

// RunScenario executes a single scenario. Each iteration diagnoses every
// image in the corpus once. Per-image failures are counted, not returned;
// only context cancellation aborts the run.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	opts := scenario.Options()

	for i := 0; i < scenario.WarmupRuns; i++ {
		for _, file := range bs.corpus {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "warmup")
			}
			_, _ = bs.service.Diagnose(ctx, file.Data, opts)
		}
	}

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
		Images:    len(bs.corpus),
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	samples := make([]time.Duration, 0, scenario.Iterations*len(bs.corpus))
	var stages StageStats
	start := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		for _, file := range bs.corpus {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
			}
			metrics.Runs++

			began := time.Now()
			report, err := bs.service.Diagnose(ctx, file.Data, opts)
			elapsed := time.Since(began)
			if err != nil {
				if ctx.Err() != nil {
					return nil, errors.Wrapf(ctx.Err(), "scenario %s", scenario.Name)
				}
				metrics.Errors++
				bs.logger.Debug("benchmark image failed", "scenario", scenario.Name, "path", file.Path, "error", err)
				continue
			}

			samples = append(samples, elapsed)
			stages.Decode += report.Timings.Decode
			stages.Detect += report.Timings.Detect
			stages.Summarize += report.Timings.Summarize
			stages.Annotate += report.Timings.Annotate
			if report.NoDetection {
				metrics.NoDetections++
			} else {
				metrics.Detections += len(report.Boxes)
			}
		}
	}

	metrics.TotalDuration = time.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)
	metrics.MemoryStats = memoryDelta(startMem, endMem)

	if n := time.Duration(len(samples)); n > 0 {
		metrics.Stages = StageStats{
			Decode:    stages.Decode / n,
			Detect:    stages.Detect / n,
			Summarize: stages.Summarize / n,
			Annotate:  stages.Annotate / n,
		}
	}
	metrics.Latency = latencyStats(samples)
	if secs := metrics.TotalDuration.Seconds(); secs > 0 {
		metrics.ImagesPerSecond = float64(len(samples)) / secs
	}
	if metrics.Runs > 0 {
		metrics.ErrorRate = float64(metrics.Errors) / float64(metrics.Runs)
	}

	return metrics, nil
}

// RunAllScenarios runs every queued scenario in order and keeps the results.
// A scenario that fails is logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) ([]PerformanceMetrics, error) {
	for _, scenario := range bs.Scenarios() {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return bs.Results(), err
			}
			bs.logger.Error("benchmark scenario failed", "scenario", scenario.Name, "error", err)
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Info("benchmark scenario completed",
			"scenario", scenario.Name,
			"images_per_second", fmt.Sprintf("%.2f", metrics.ImagesPerSecond),
			"p95", metrics.Latency.P95,
			"errors", metrics.Errors,
		)
	}
	return bs.Results(), nil
}

// Results returns a copy of the collected results.
func (bs *Suite) Results() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}

// SaveResults writes the results as JSON and a CSV summary into the output
// directory and returns the two paths.
func (bs *Suite) SaveResults(now time.Time) (string, string, error) {
	if bs.outputDir == "" {
		return "", "", errors.New("benchmark suite has no output directory")
	}
	results := bs.Results()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "create output directory")
	}

	timestamp := now.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "write results file")
	}
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "save summary csv")
	}
	return resultsFile, summaryFile, nil
}

var summaryHeader = []string{
	"scenario", "threshold", "draw_boxes", "images_per_second",
	"mean_ms", "p50_ms", "p95_ms", "p99_ms", "detections", "no_detections", "error_rate",
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	ms := func(d time.Duration) string {
		return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
	}
	for _, r := range results {
		row := []string{
			r.Scenario.Name,
			strconv.FormatFloat(float64(r.Scenario.Threshold), 'f', 2, 32),
			strconv.FormatBool(r.Scenario.DrawBoxes),
			strconv.FormatFloat(r.ImagesPerSecond, 'f', 2, 64),
			ms(r.Latency.Mean),
			ms(r.Latency.P50),
			ms(r.Latency.P95),
			ms(r.Latency.P99),
			strconv.Itoa(r.Detections),
			strconv.Itoa(r.NoDetections),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
