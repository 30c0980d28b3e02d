package benchmark

import (
	"os"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Scenario describes one benchmark run of the diagnosis pipeline.
type Scenario struct {
	Name       string  `json:"name"        toml:"name"`
	Threshold  float32 `json:"threshold"   toml:"threshold"`
	DrawBoxes  bool    `json:"draw_boxes"  toml:"draw_boxes"`
	Iterations int     `json:"iterations"  toml:"iterations"`
	WarmupRuns int     `json:"warmup_runs" toml:"warmup_runs"`
}

// Options returns the diagnosis options the scenario runs with.
func (s Scenario) Options() diagnosis.Options {
	return diagnosis.Options{Threshold: s.Threshold, DrawBoxes: s.DrawBoxes}
}

// Validate checks that the scenario can be run.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name is required")
	}
	if !diagnosis.ValidThreshold(s.Threshold) {
		return errors.Wrapf(diagnosis.ErrInvalidThreshold, "scenario %s: got %v", s.Name, s.Threshold)
	}
	if s.Iterations < 1 {
		return errors.Errorf("scenario %s: iterations must be at least 1, got %d", s.Name, s.Iterations)
	}
	if s.WarmupRuns < 0 {
		return errors.Errorf("scenario %s: warmup runs must not be negative, got %d", s.Name, s.WarmupRuns)
	}
	return nil
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder seeded with the default options.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	defaults := diagnosis.DefaultOptions()
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Threshold:  defaults.Threshold,
			DrawBoxes:  defaults.DrawBoxes,
			Iterations: 10,
			WarmupRuns: 1,
		},
	}
}

// WithThreshold sets the confidence threshold.
func (sb *ScenarioBuilder) WithThreshold(threshold float32) *ScenarioBuilder {
	sb.scenario.Threshold = threshold
	return sb
}

// WithBoxes sets whether the annotated image is drawn.
func (sb *ScenarioBuilder) WithBoxes(draw bool) *ScenarioBuilder {
	sb.scenario.DrawBoxes = draw
	return sb
}

// WithIterations sets the number of measured passes over the corpus.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of unmeasured passes over the corpus.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// DefaultScenarios covers the threshold and annotation combinations users
// pick most often.
func DefaultScenarios() []Scenario {
	return []Scenario{
		NewScenarioBuilder("default").Build(),
		NewScenarioBuilder("no_boxes").WithBoxes(false).Build(),
		NewScenarioBuilder("low_threshold").WithThreshold(0.1).Build(),
		NewScenarioBuilder("high_threshold").WithThreshold(0.8).Build(),
	}
}

// LoadScenarios reads scenarios from a TOML file of [[scenario]] tables.
// Fields a table leaves out take the builder defaults.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenarios %s", path)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes scenarios from TOML.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var raw struct {
		Scenarios []map[string]any `toml:"scenario"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse scenarios")
	}
	if len(raw.Scenarios) == 0 {
		return nil, errors.New("no [[scenario]] tables found")
	}

	out := make([]Scenario, 0, len(raw.Scenarios))
	for i, table := range raw.Scenarios {
		name, _ := table["name"].(string)
		if name == "" {
			return nil, errors.Errorf("scenario %d: name is required", i)
		}
		// Re-encode the table over a defaulted scenario so missing keys
		// keep the builder values.
		s := NewScenarioBuilder(name).Build()
		buf, err := toml.Marshal(table)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario %s", name)
		}
		if err := toml.Unmarshal(buf, &s); err != nil {
			return nil, errors.Wrapf(err, "scenario %s", name)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
