package benchmark

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/knowledge"
	"github.com/nvr-ai/leafscan/util"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiagnoser returns canned reports keyed by the image bytes.
type fakeDiagnoser struct {
	calls int
	fail  string
	opts  []diagnosis.Options
}

func (f *fakeDiagnoser) Diagnose(ctx context.Context, data []byte, opts diagnosis.Options) (*diagnosis.Report, error) {
	f.calls++
	f.opts = append(f.opts, opts)
	switch string(data) {
	case f.fail:
		return nil, &diagnosis.DecodeError{Err: errors.New("bad image")}
	case "empty":
		return &diagnosis.Report{NoDetection: true}, nil
	}
	return &diagnosis.Report{
		Boxes:   make([]inference.BoundingBox, 2),
		Timings: diagnosis.Timings{Decode: time.Millisecond, Detect: 4 * time.Millisecond},
	}, nil
}

func corpus(names ...string) []util.ImageFile {
	out := make([]util.ImageFile, len(names))
	for i, n := range names {
		out[i] = util.ImageFile{Path: n + ".png", Data: []byte(n)}
	}
	return out
}

func TestScenarioBuilder(t *testing.T) {
	s := NewScenarioBuilder("custom").
		WithThreshold(0.5).
		WithBoxes(false).
		WithIterations(3).
		WithWarmupRuns(0).
		Build()

	assert.Equal(t, "custom", s.Name)
	assert.Equal(t, float32(0.5), s.Threshold)
	assert.False(t, s.DrawBoxes)
	assert.Equal(t, 3, s.Iterations)
	assert.Equal(t, 0, s.WarmupRuns)
	assert.Equal(t, diagnosis.Options{Threshold: 0.5}, s.Options())
	require.NoError(t, s.Validate())
}

func TestScenarioValidate(t *testing.T) {
	cases := map[string]Scenario{
		"no name":         NewScenarioBuilder("").Build(),
		"threshold":       NewScenarioBuilder("x").WithThreshold(1.5).Build(),
		"iterations":      NewScenarioBuilder("x").WithIterations(0).Build(),
		"negative warmup": NewScenarioBuilder("x").WithWarmupRuns(-1).Build(),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Validate())
		})
	}
	assert.True(t, errors.Is(cases["threshold"].Validate(), diagnosis.ErrInvalidThreshold))
}

func TestDefaultScenarios(t *testing.T) {
	scenarios := DefaultScenarios()
	require.Len(t, scenarios, 4)
	for _, s := range scenarios {
		assert.NoError(t, s.Validate(), s.Name)
	}
}

func TestParseScenarios(t *testing.T) {
	scenarios, err := ParseScenarios([]byte(`
[[scenario]]
name = "strict"
threshold = 0.9
iterations = 2

[[scenario]]
name = "plain"
draw_boxes = false
`))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.Equal(t, "strict", scenarios[0].Name)
	assert.InDelta(t, 0.9, scenarios[0].Threshold, 1e-6)
	assert.Equal(t, 2, scenarios[0].Iterations)
	assert.True(t, scenarios[0].DrawBoxes)
	assert.Equal(t, 1, scenarios[0].WarmupRuns)

	assert.False(t, scenarios[1].DrawBoxes)
	assert.InDelta(t, 0.35, scenarios[1].Threshold, 1e-6)

	_, err = ParseScenarios([]byte(`title = "none"`))
	assert.Error(t, err)

	_, err = ParseScenarios([]byte("[[scenario]]\nthreshold = 0.5\n"))
	assert.Error(t, err)

	_, err = ParseScenarios([]byte("[[scenario]]\nname = \"bad\"\nthreshold = 2.0\n"))
	assert.Error(t, err)
}

func TestNewSuite(t *testing.T) {
	_, err := NewSuite(SuiteArgs{Corpus: corpus("a")})
	assert.Error(t, err)

	_, err = NewSuite(SuiteArgs{Service: &fakeDiagnoser{}})
	assert.Error(t, err)

	suite, err := NewSuite(SuiteArgs{Service: &fakeDiagnoser{}, Corpus: corpus("a")})
	require.NoError(t, err)
	assert.Empty(t, suite.Scenarios())
	assert.Empty(t, suite.Results())

	require.NoError(t, suite.AddScenario(NewScenarioBuilder("one").Build()))
	assert.Error(t, suite.AddScenario(NewScenarioBuilder("bad").WithIterations(0).Build()))
	assert.Len(t, suite.Scenarios(), 1)
}

func TestRunScenario(t *testing.T) {
	fake := &fakeDiagnoser{fail: "broken"}
	suite, err := NewSuite(SuiteArgs{Service: fake, Corpus: corpus("a", "empty", "broken")})
	require.NoError(t, err)

	s := NewScenarioBuilder("run").WithThreshold(0.6).WithIterations(2).WithWarmupRuns(1).Build()
	m, err := suite.RunScenario(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 9, fake.calls)
	assert.Equal(t, 3, m.Images)
	assert.Equal(t, 6, m.Runs)
	assert.Equal(t, 2, m.Errors)
	assert.Equal(t, 2, m.NoDetections)
	assert.Equal(t, 4, m.Detections)
	assert.InDelta(t, 2.0/6.0, m.ErrorRate, 1e-9)
	assert.Equal(t, 2*time.Millisecond, m.Stages.Detect)
	assert.LessOrEqual(t, m.Latency.Min, m.Latency.P50)
	assert.LessOrEqual(t, m.Latency.P50, m.Latency.Max)
	for _, opts := range fake.opts {
		assert.Equal(t, float32(0.6), opts.Threshold)
	}
}

func TestRunScenarioCancelled(t *testing.T) {
	suite, err := NewSuite(SuiteArgs{Service: &fakeDiagnoser{}, Corpus: corpus("a")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.RunScenario(ctx, NewScenarioBuilder("c").Build())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLatencyStats(t *testing.T) {
	assert.Equal(t, LatencyStats{}, latencyStats(nil))

	samples := []time.Duration{5, 1, 3, 2, 4}
	stats := latencyStats(samples)
	assert.Equal(t, time.Duration(1), stats.Min)
	assert.Equal(t, time.Duration(5), stats.Max)
	assert.Equal(t, time.Duration(3), stats.Mean)
	assert.Equal(t, time.Duration(3), stats.P50)
	assert.Equal(t, time.Duration(5), stats.P99)
}

func TestRunAllAndSave(t *testing.T) {
	dir := t.TempDir()
	suite, err := NewSuite(SuiteArgs{Service: &fakeDiagnoser{}, Corpus: corpus("a", "empty"), OutputDir: dir})
	require.NoError(t, err)
	for _, s := range DefaultScenarios() {
		require.NoError(t, suite.AddScenario(s))
	}

	results, err := suite.RunAllScenarios(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	jsonPath, csvPath, err := suite.SaveResults(now)
	require.NoError(t, err)
	assert.Contains(t, jsonPath, "benchmark_results_2026-10-15_12-00-00.json")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 4)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, summaryHeader, rows[0])
	assert.Equal(t, "default", rows[1][0])

	noDir, err := NewSuite(SuiteArgs{Service: &fakeDiagnoser{}, Corpus: corpus("a")})
	require.NoError(t, err)
	_, _, err = noDir.SaveResults(now)
	assert.Error(t, err)
}

func TestSuiteWithService(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	store, err := knowledge.LoadDefault()
	require.NoError(t, err)
	svc, err := diagnosis.NewService(diagnosis.ServiceArgs{
		Detector: &detectors.StaticDetector{
			Detections: []inference.BoundingBox{
				{Label: "Tomato leaf late blight", Confidence: 0.8, X1: 4, Y1: 4, X2: 40, Y2: 40},
			},
			Names: inference.Names{"Tomato leaf late blight"},
		},
		Knowledge: store,
	})
	require.NoError(t, err)

	suite, err := NewSuite(SuiteArgs{Service: svc, Corpus: []util.ImageFile{{Path: "leaf.png", Data: buf.Bytes()}}})
	require.NoError(t, err)

	m, err := suite.RunScenario(context.Background(), NewScenarioBuilder("svc").WithIterations(3).Build())
	require.NoError(t, err)
	assert.Equal(t, 3, m.Runs)
	assert.Zero(t, m.Errors)
	assert.Equal(t, 3, m.Detections)
	assert.Greater(t, m.ImagesPerSecond, 0.0)
}
