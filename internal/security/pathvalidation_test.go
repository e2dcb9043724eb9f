package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	outDir := filepath.Join(tmpDir, "out")
	elsewhere := filepath.Join(tmpDir, "elsewhere")
	for _, d := range []string{outDir, elsewhere} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}

	// A symlinked directory inside outDir that points outside it.
	link := filepath.Join(outDir, "plots")
	if err := os.Symlink(elsewhere, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		dir       string
		wantError bool
	}{
		{"new file in directory", filepath.Join(outDir, "run.png"), outDir, false},
		{"new file in missing subdirectory", filepath.Join(outDir, "a", "b", "run.json"), outDir, false},
		{"directory itself", outDir, outDir, false},
		{"dot-dot escape", filepath.Join(outDir, "..", "run.png"), outDir, true},
		{"relative escape", "../../../etc/passwd", outDir, true},
		{"absolute outside", "/etc/passwd", outDir, true},
		{"file behind symlink", filepath.Join(link, "run.png"), outDir, true},
		{"symlink itself", link, outDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDirectory(tt.path, tt.dir)
			if (err != nil) != tt.wantError {
				t.Errorf("WithinDirectory(%q) error = %v, wantError %v", tt.path, err, tt.wantError)
			}
		})
	}
}

func TestWithinDirectoryMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	if err := WithinDirectory(filepath.Join(missing, "x.png"), missing); err == nil {
		t.Error("expected an error for a directory that does not exist")
	}
}

func TestValidateOutputPath(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	if err := ValidateOutputPath(filepath.Join(dirB, "run.html"), dirA, dirB); err != nil {
		t.Errorf("path in second dir rejected: %v", err)
	}

	err := ValidateOutputPath("/etc/eventseg.json", dirA, dirB)
	if !errors.Is(err, ErrOutsideAllowedDirs) {
		t.Errorf("expected ErrOutsideAllowedDirs, got %v", err)
	}
}

func TestValidateOutputPathDefaults(t *testing.T) {
	if err := ValidateOutputPath(filepath.Join(os.TempDir(), "eventseg.png")); err != nil {
		t.Errorf("temp dir path rejected: %v", err)
	}
	if err := ValidateOutputPath("eventseg.png"); err != nil {
		t.Errorf("relative path in working directory rejected: %v", err)
	}
	if err := ValidateOutputPath("/etc/passwd"); err == nil {
		t.Error("expected /etc/passwd to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"take 3 (final)", "take_3_final"},
		{"loud/../../etc", "loud_.._.._etc"},
		{"...", "unknown"},
		{"__a__", "a"},
		{"voice-01.v2", "voice-01.v2"},
		{"résumé", "r_sum"},
		{strings.Repeat("x", 300), strings.Repeat("x", maxNameLen)},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("/data/session 4/take#2.csv", ".png"); got != "take_2.png" {
		t.Errorf("OutputName = %q, want take_2.png", got)
	}
	if got := OutputName("", ".json"); got != "unknown.json" {
		t.Errorf("OutputName(\"\") = %q", got)
	}
}
