package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLeaf(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(3, 3, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagConfigPath, flagLogLevel = "", ""
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestClassesCmd(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "classes")
	require.NoError(t, err)
	assert.Contains(t, out, "Tomato leaf late blight")
	assert.Contains(t, out, "No treatment required.")
}

func TestDetectDryRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeLeaf(t, filepath.Join(dir, "a.png"))
	writeLeaf(t, filepath.Join(dir, "b.png"))
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "detect", "--dry-run", "--out", outDir, "--log-level", "error", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "No leaf detected"))

	for _, name := range []string{"a.leafscan.png", "b.leafscan.png"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	out, err = execute(t, "detect", "--dry-run", "--json", filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	assert.Contains(t, out, `"no_detection":true`)
}

func TestDetectErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeLeaf(t, filepath.Join(dir, "a.png"))

	_, err := execute(t, "detect", "--dry-run", "--confidence", "2", filepath.Join(dir, "a.png"))
	assert.ErrorIs(t, err, diagnosis.ErrInvalidThreshold)

	_, err = execute(t, "detect", "--dry-run", filepath.Join(dir, "missing.png"))
	assert.Error(t, err)

	_, err = execute(t, "detect", "--dry-run", "--log-level", "loud", filepath.Join(dir, "a.png"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o700))
	_, err = execute(t, "detect", "--dry-run", empty)
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	report := &diagnosis.Report{
		Summary: &diagnosis.Summary{
			Detections: 3,
			Unique:     2,
			Classes: []diagnosis.ClassSummary{
				{Label: "leaf_blight", BestConfidence: 0.7, Cause: "Fungus", Cure: "Fungicide", Known: true, Count: 2},
				{Label: "leaf_spot", BestConfidence: 0.456, Known: false, Count: 1},
			},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, "leaf.jpg", report)
	out := buf.String()

	assert.Contains(t, out, "Detected leaves: 3  Unique diseases: 2")
	assert.Contains(t, out, "- leaf_blight [0.70]")
	assert.Contains(t, out, "Cause: Fungus")
	assert.Contains(t, out, "Cure/Treatment: Fungicide")
	assert.Contains(t, out, "- leaf_spot [0.46]")
	assert.Contains(t, out, "Information not available for this class.")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "result.png", outputPath("result.png", "leaves/a.jpg", false))
	assert.Equal(t, filepath.Join("out", "a.leafscan.png"), outputPath("out", "leaves/a.jpg", true))
}

func TestBenchDryRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeLeaf(t, filepath.Join(dir, "a.png"))
	outDir := filepath.Join(dir, "bench")

	out, err := execute(t, "bench", "--dry-run", "--iterations", "2", "--warmup", "0",
		"--out", outDir, "--log-level", "error", filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	assert.Contains(t, out, "no_boxes")
	assert.Contains(t, out, "high_threshold")
	assert.Contains(t, out, "results: ")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	scenarios := filepath.Join(dir, "scenarios.toml")
	require.NoError(t, os.WriteFile(scenarios, []byte("[[scenario]]\nname = \"only\"\niterations = 1\n"), 0o600))
	out, err = execute(t, "bench", "--dry-run", "--scenarios", scenarios, "--log-level", "error", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "only")
	assert.NotContains(t, out, "no_boxes")
}
