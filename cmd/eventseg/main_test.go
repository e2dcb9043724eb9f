package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventseg/internal/monitoring"
	"github.com/banshee-data/eventseg/internal/security"
	"github.com/banshee-data/eventseg/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// stepTuning makes a clean 0 to 1 step decode to a single event.
const stepTuning = `p_new: 0.01
p_off: 0.1
defaults:
  p_lag_plus: 0
  p_lag_minus: 0
  alpha: 0.05
  r: 0.01
  c_stay_off: 0.000001
  c_stay_on: 0.000001
  c_turn_on: 100
  c_turning_on: 100
  c_turn_off: 100
  c_new_segment: 100
`

func writeFixtures(t *testing.T) (dir, features, tuning string) {
	t.Helper()
	dir = t.TempDir()

	var b strings.Builder
	b.WriteString("loudness\n")
	for _, v := range testutil.Step(40, 20, 0, 1) {
		fmt.Fprintf(&b, "%g\n", v)
	}
	features = filepath.Join(dir, "take 1.csv")
	require.NoError(t, os.WriteFile(features, []byte(b.String()), 0644))

	tuning = filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(tuning, []byte(stepTuning), 0644))
	return dir, features, tuning
}

func TestRunWritesOutputsAndStoresRun(t *testing.T) {
	dir, features, tuning := writeFixtures(t)
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "runs.db")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-features", features, "-config", tuning, "-out-dir", outDir,
		"-db", dbPath, "-workers", "2", "-quiet",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "40 frames, 1 features, 1 segments")
	assert.Contains(t, out, "segment 1: frames ")
	assert.Contains(t, out, "stored run ")

	for _, ext := range []string{".png", ".html", ".json"} {
		info, err := os.Stat(filepath.Join(outDir, security.OutputName(features, ext)))
		require.NoError(t, err, ext)
		assert.Greater(t, info.Size(), int64(0), ext)
	}
	assert.FileExists(t, filepath.Join(outDir, "take_1.json"))

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"-db", dbPath, "-list", "5"}, &stdout, &stderr))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "features=loudness segments=1")
}

func TestRunSelectUnknownFeature(t *testing.T) {
	_, features, tuning := writeFixtures(t)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-features", features, "-config", tuning, "-select", "pitch", "-quiet"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"pitch"`)
}

func TestRunRejectsOutputOutsideOutDir(t *testing.T) {
	dir, features, tuning := writeFixtures(t)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-features", features, "-config", tuning,
		"-out-dir", filepath.Join(dir, "out"), "-json", filepath.Join(dir, "elsewhere.json"), "-quiet",
	}, &stdout, &stderr)
	assert.ErrorIs(t, err, security.ErrOutsideAllowedDirs)
}

func TestRunCancelled(t *testing.T) {
	_, features, tuning := writeFixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"-features", features, "-config", tuning, "-quiet"}, &stdout, &stderr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing features", []string{"-quiet"}, "-features is required"},
		{"list without db", []string{"-list", "3"}, "-list requires -db"},
		{"missing file", []string{"-features", "/nonexistent/features.csv", "-quiet"}, "feature file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-h"}, &stdout, &stderr)
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, stderr.String(), "-features")
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), "eventseg dev"))
}
